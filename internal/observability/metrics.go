package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "peekop", Name: "orders_created_total", Help: "Orders created"}, []string{"kind", "mode"})
	OffersPlaced    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "peekop", Name: "offers_placed_total", Help: "Offers appended to bidding orders"})
	OffersDropped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "peekop", Name: "offers_dropped_total", Help: "Offers dropped because the order had left bidding"})
	OrdersAccepted  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "peekop", Name: "orders_accepted_total", Help: "Orders accepted"})
	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "peekop", Name: "orders_completed_total", Help: "Orders completed"})
	OrdersCancelled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "peekop", Name: "orders_cancelled_total", Help: "Orders cancelled"})
	ProvidersOnline = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "peekop", Name: "providers_online", Help: "Providers currently reporting online"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "peekop", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "peekop",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
