// Package metrics provides Prometheus instrumentation for the auction engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// BidsAccepted counts accepted bid records, partitioned by record kind.
	BidsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadex_bids_accepted_total",
		Help: "Total number of accepted bid records written to the ledger",
	}, []string{"kind"})

	// BidsRejected counts rejected submissions by rejection reason.
	BidsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadex_bids_rejected_total",
		Help: "Total number of rejected bid submissions",
	}, []string{"reason"})

	// AuctionExtensions counts anti-snipe end-time extensions.
	AuctionExtensions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadex_auction_extensions_total",
		Help: "Auction end times extended by the anti-snipe policy",
	})

	// AuctionsSettled counts settled auctions by outcome (sold, unsold).
	AuctionsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadex_auctions_settled_total",
		Help: "Auctions transitioned to a terminal state by the sweeper",
	}, []string{"outcome"})

	// BidLatency tracks bid submission processing latency.
	BidLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "leadex_bid_latency_seconds",
		Help:    "Bid submission processing latency in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "leadex_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadex_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadex_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
