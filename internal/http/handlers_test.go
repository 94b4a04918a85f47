package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/example/peekop/internal/config"
	"github.com/example/peekop/internal/models"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.ServerConfig{
		RedisGeoKey: "providers_geo",
		BidFloor:    100,
		BidMinCount: 2, BidMaxCount: 2,
		BidWindow:    50 * time.Millisecond, // irrelevant here: tests drive offers directly
		NearbyLimit:  8,
		PointsPerRun: 25,
	}
	s := NewServer(cfg, slog.Default())
	// no synthetic feed in handler tests; offers come through the API
	s.Lifecycle.Bids = nil
	s.Directory.Upsert(models.Provider{ID: 1, Name: "Tunde", Rating: 4.7, Loc: models.Coord{Lat: 6.501, Lng: 3.4}, Online: true})
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func TestCreateAcceptCompleteOverHTTP(t *testing.T) {
	s := newTestServer(t)

	w := doJSON(t, s, "POST", "/api/v1/orders", map[string]any{
		"kind": "pickup", "mode": "marketplace", "requester_id": 10,
		"pickup":  map[string]float64{"lat": 6.5, "lng": 3.4},
		"dropoff": map[string]float64{"lat": 6.52, "lng": 3.41},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body)
	}
	var order models.Order
	if err := json.Unmarshal(w.Body.Bytes(), &order); err != nil {
		t.Fatal(err)
	}
	if order.State != models.StateBidding {
		t.Fatalf("expected bidding, got %s", order.State)
	}

	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/offers", order.ID), map[string]any{
		"provider": map[string]any{"id": 1, "name": "Tunde", "rating": 4.7},
		"amount":   1200, "eta_minutes": 10,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("offer: expected 201, got %d: %s", w.Code, w.Body)
	}
	var offer models.Offer
	if err := json.Unmarshal(w.Body.Bytes(), &offer); err != nil {
		t.Fatal(err)
	}

	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/accept", order.ID), map[string]any{"offer_id": offer.ID})
	if w.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", w.Code, w.Body)
	}
	var accepted models.Order
	_ = json.Unmarshal(w.Body.Bytes(), &accepted)
	if accepted.FinalFare != 1200 || accepted.Assigned == nil || accepted.Assigned.ID != 1 {
		t.Fatalf("unexpected accepted order: %+v", accepted)
	}

	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/complete", order.ID), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d: %s", w.Code, w.Body)
	}

	// second completion conflicts
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/complete", order.ID), nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 on double complete, got %d", w.Code)
	}

	// history shows the completed order
	w = doJSON(t, s, "GET", "/api/v1/users/10/history", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", w.Code)
	}
	var hist struct {
		Orders []models.Order `json:"orders"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &hist)
	if len(hist.Orders) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(hist.Orders))
	}
}

func TestErrorStatusMapping(t *testing.T) {
	s := newTestServer(t)

	// unknown order
	w := doJSON(t, s, "GET", "/api/v1/orders/999", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	// direct order against an unknown provider
	w = doJSON(t, s, "POST", "/api/v1/orders", map[string]any{
		"kind": "errand", "mode": "direct", "requester_id": 10,
		"pickup":             map[string]float64{"lat": 6.5, "lng": 3.4},
		"direct_provider_id": 404,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid provider, got %d", w.Code)
	}

	// below-floor bid
	w = doJSON(t, s, "POST", "/api/v1/orders", map[string]any{
		"kind": "pickup", "mode": "marketplace", "requester_id": 10,
		"pickup": map[string]float64{"lat": 6.5, "lng": 3.4},
	})
	var order models.Order
	_ = json.Unmarshal(w.Body.Bytes(), &order)
	w = doJSON(t, s, "POST", fmt.Sprintf("/api/v1/orders/%d/offers", order.ID), map[string]any{
		"provider": map[string]any{"id": 1}, "amount": 50, "eta_minutes": 5,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 below floor, got %d", w.Code)
	}
}

func TestQuoteEndpoint(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, "POST", "/api/v1/quotes", map[string]any{
		"kind":   "errand",
		"pickup": map[string]float64{"lat": 6.5, "lng": 3.4},
		"package": map[string]any{
			"size": "large", "fragile": true,
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var quote struct {
		Fare int64 `json:"fare"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &quote)
	if quote.Fare != 1700 {
		t.Fatalf("expected 1700 for large fragile errand at zero distance, got %d", quote.Fare)
	}
}

func TestNearbyProviders(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, "GET", "/api/v1/providers/nearby?lat=6.5&lng=3.4", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Providers []models.Provider `json:"providers"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Providers) != 1 || resp.Providers[0].ID != 1 {
		t.Fatalf("expected provider 1, got %v", resp.Providers)
	}
}
