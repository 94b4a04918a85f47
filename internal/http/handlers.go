package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/peekop/internal/bidsource"
	"github.com/example/peekop/internal/config"
	"github.com/example/peekop/internal/directory"
	"github.com/example/peekop/internal/dispatch"
	"github.com/example/peekop/internal/eta"
	"github.com/example/peekop/internal/ingest"
	"github.com/example/peekop/internal/lifecycle"
	"github.com/example/peekop/internal/models"
	"github.com/example/peekop/internal/observability"
	"github.com/example/peekop/internal/payments"
	"github.com/example/peekop/internal/pricing"
	"github.com/example/peekop/internal/session"
	"github.com/example/peekop/internal/storage"
)

type Server struct {
	Lifecycle *lifecycle.Service
	Directory directory.Directory
	Quoter    pricing.Quoter
	Profiles  *session.Profiles
	Kafka     *ingest.KafkaProducer
	WSReg     *dispatch.WSRegistry

	logger *slog.Logger
	mux    *mux.Router
}

// NewServer wires the full stack from config: Redis-backed directory and
// session store when REDIS_ADDR is set, Postgres order store when PG_DSN is
// set, in-memory fallbacks otherwise.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	var dir directory.Directory
	if cfg.RedisAddr != "" {
		dir = directory.NewRedisDirectory(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey)
	} else {
		dir = directory.NewIndex()
	}

	var store storage.OrderStore
	if cfg.PGDSN != "" {
		if ps, err := storage.NewPostgresStore(cfg.PGDSN); err == nil {
			store = ps
		} else {
			logger.Warn("postgres unavailable, using memory store", "error", err)
		}
	}
	if store == nil {
		store = storage.NewMemoryStore()
	}

	var sessions session.Store
	if cfg.RedisAddr != "" {
		sessions = session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisSessionKey)
	} else {
		sessions = session.NewMemoryStore()
	}
	profiles := session.NewProfiles(sessions)

	quoter := pricing.NewStandardQuoter(pricing.DefaultTariff())
	quoter.Tariff.BidFloor = cfg.BidFloor
	if cfg.OSRMEndpoint != "" {
		quoter.ETAClient = eta.NewOSRMClient(cfg.OSRMEndpoint)
		quoter.ETACache = eta.NewCache(5 * time.Minute)
	}

	var kp *ingest.KafkaProducer
	if len(cfg.KafkaBrokers) > 0 {
		kp = ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
	}

	wsreg := dispatch.NewWSRegistry()
	var notify dispatch.Notifier = wsreg
	if cfg.PushEndpoint != "" {
		notify = dispatch.NewPushNotifier(cfg.PushEndpoint, cfg.PushKey, wsreg)
	}

	var escrow payments.Escrow = payments.NopEscrow{}
	if cfg.StripeAPIKey != "" {
		escrow = payments.NewStripeEscrow(cfg.StripeCurrency)
	}

	svc := lifecycle.NewService(dir, quoter, store, logger)
	svc.BidFloor = cfg.BidFloor
	svc.PointsPerRun = cfg.PointsPerRun
	svc.Profiles = profiles
	svc.Notify = notify
	svc.Escrow = escrow
	svc.Bids = bidFeed(cfg, dir, quoter)

	s := &Server{
		Lifecycle: svc,
		Directory: dir,
		Quoter:    quoter,
		Profiles:  profiles,
		Kafka:     kp,
		WSReg:     wsreg,
		logger:    logger,
		mux:       mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func bidFeed(cfg config.ServerConfig, dir directory.Directory, quoter *pricing.StandardQuoter) bidsource.BidSource {
	return bidsource.NewSynthetic(dir, quoter, cfg.BidWindow, cfg.BidMinCount, cfg.BidMaxCount, cfg.NearbyLimit)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/orders", s.handleCreateOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders", s.handleListOrders).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}", s.handleGetOrder).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}/offers", s.handlePlaceOffer).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/offers", s.handleListOffers).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/cancel", s.handleCancel).Methods("POST")
	s.mux.HandleFunc("/api/v1/quotes", s.handleQuote).Methods("POST")
	s.mux.HandleFunc("/api/v1/providers/nearby", s.handleNearbyProviders).Methods("GET")
	s.mux.HandleFunc("/api/v1/users/{id}/history", s.handleHistory).Methods("GET")
	s.mux.HandleFunc("/api/v1/users/{id}/profile", s.handleProfile).Methods("GET")
	s.mux.HandleFunc("/api/v1/users/{id}/favorites/{provider_id}", s.handleToggleFavorite).Methods("POST")
	s.mux.HandleFunc("/internal/provider/locations", s.handleProviderLocation).Methods("POST")
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/ws/customers/{user_id}", s.handleWS)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type createOrderRequest struct {
	Kind            models.OrderKind      `json:"kind"`
	Mode            models.FulfillMode    `json:"mode"`
	RequesterID     int64                 `json:"requester_id"`
	Pickup          models.Coord          `json:"pickup"`
	Dropoff         *models.Coord         `json:"dropoff,omitempty"`
	Note            string                `json:"note,omitempty"`
	Package         models.PackageDetails `json:"package,omitempty"`
	Urgency         models.Urgency        `json:"urgency,omitempty"`
	PassengerCount  int                   `json:"passenger_count,omitempty"`
	SpecialRequests int                   `json:"special_requests,omitempty"`
	DirectProvider  int64                 `json:"direct_provider_id,omitempty"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o, err := s.Lifecycle.CreateOrder(lifecycle.CreateRequest{
		Kind:            req.Kind,
		Mode:            req.Mode,
		RequesterID:     req.RequesterID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		Note:            req.Note,
		Package:         req.Package,
		Urgency:         req.Urgency,
		PassengerCount:  req.PassengerCount,
		SpecialRequests: req.SpecialRequests,
		DirectProvider:  req.DirectProvider,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.Lifecycle.GetOrder(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	state := models.OrderState(r.URL.Query().Get("state"))
	if !models.ValidOrderState(state) {
		http.Error(w, "unknown state "+string(state), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.Lifecycle.ListOrdersByState(state)})
}

type placeOfferRequest struct {
	Provider   models.ProviderSnapshot `json:"provider"`
	Amount     int64                   `json:"amount"`
	ETAMinutes int                     `json:"eta_minutes"`
	Note       string                  `json:"note,omitempty"`
}

func (s *Server) handlePlaceOffer(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req placeOfferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	of, err := s.Lifecycle.PlaceOffer(id, req.Provider, req.Amount, req.ETAMinutes, req.Note)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if of == nil {
		// order has left bidding; the offer was dropped by design
		writeJSON(w, http.StatusAccepted, map[string]any{"dropped": true})
		return
	}
	writeJSON(w, http.StatusCreated, of)
}

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	offers, err := s.Lifecycle.ListOffers(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"offers": offers})
}

type acceptRequest struct {
	OfferID    int64 `json:"offer_id,omitempty"`
	ProviderID int64 `json:"provider_id,omitempty"`
}

// handleAccept covers both accept paths: marketplace orders accept an offer
// id, direct orders confirm their pre-chosen provider id.
func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req acceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var o *models.Order
	var err error
	switch {
	case req.OfferID != 0:
		o, err = s.Lifecycle.AcceptOffer(id, req.OfferID)
	case req.ProviderID != 0:
		o, err = s.Lifecycle.AcceptDirect(id, req.ProviderID)
	default:
		http.Error(w, "offer_id or provider_id required", http.StatusBadRequest)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.Lifecycle.CompleteOrder(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := s.Lifecycle.CancelOrder(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	o := &models.Order{
		Kind:            req.Kind,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		Package:         req.Package,
		Urgency:         req.Urgency,
		PassengerCount:  req.PassengerCount,
		SpecialRequests: req.SpecialRequests,
	}
	writeJSON(w, http.StatusOK, s.Quoter.Quote(o))
}

func (s *Server) handleNearbyProviders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "lat and lng required", http.StatusBadRequest)
		return
	}
	limit := 8
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	providers := s.Directory.Available(models.Coord{Lat: lat, Lng: lng}, limit)
	writeJSON(w, http.StatusOK, map[string]any{"providers": providers})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": s.Lifecycle.History(id)})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	prof, err := s.Profiles.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	providerID, ok := pathID(w, r, "provider_id")
	if !ok {
		return
	}
	prof, err := s.Profiles.ToggleFavorite(r.Context(), id, providerID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, prof)
}

func (s *Server) handleProviderLocation(w http.ResponseWriter, r *http.Request) {
	var p models.Provider
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.Online = true
	// publish to kafka if configured
	if s.Kafka != nil {
		_ = s.Kafka.PublishLocation(p)
	}
	s.Directory.Upsert(p)
	observability.ProvidersOnline.Inc()
	w.WriteHeader(http.StatusNoContent)
}

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseInt(vars["user_id"], 10, 64)
	if err != nil {
		http.Error(w, "bad user id", http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(userID, conn)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	var (
		notFound      *lifecycle.OrderNotFoundError
		offerNotFound *lifecycle.OfferNotFoundError
		badProvider   *lifecycle.InvalidProviderError
		badAmount     *lifecycle.InvalidBidAmountError
		badOrder      *lifecycle.InvalidOrderError
		notBiddable   *lifecycle.OrderNotBiddableError
		notActive     *lifecycle.OrderNotActiveError
		notCancelable *lifecycle.OrderNotCancellableError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &offerNotFound):
		return http.StatusNotFound
	case errors.As(err, &badProvider), errors.As(err, &badAmount), errors.As(err, &badOrder):
		return http.StatusBadRequest
	case errors.As(err, &notBiddable), errors.As(err, &notActive), errors.As(err, &notCancelable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[key], 10, 64)
	if err != nil {
		http.Error(w, "bad "+key, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
