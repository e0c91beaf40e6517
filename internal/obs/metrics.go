package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready to serve traffic.",
	})
)

// Auction domain metrics.
var (
	auctionsCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auctions_created_total",
		Help: "Total auctions created.",
	})

	bidsAcceptedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bids_accepted_total",
		Help: "Total bids accepted.",
	})

	bidsRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_rejected_total",
			Help: "Total bids rejected, labelled by reason.",
		},
		[]string{"reason"},
	)

	settlementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auction_settlements_total",
		Help: "Total auctions settled.",
	})

	refundWithdrawalsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "refund_withdrawals_total",
		Help: "Total refund withdrawals paid out.",
	})

	pendingPayouts = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pending_payouts",
		Help: "Payouts waiting for a transfer retry.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		auctionsCreatedTotal, bidsAcceptedTotal, bidsRejectedTotal,
		settlementsTotal, refundWithdrawalsTotal, pendingPayouts,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

func AuctionCreated()            { auctionsCreatedTotal.Inc() }
func BidAccepted()               { bidsAcceptedTotal.Inc() }
func BidRejected(reason string)  { bidsRejectedTotal.WithLabelValues(reason).Inc() }
func AuctionSettled()            { settlementsTotal.Inc() }
func RefundWithdrawn()           { refundWithdrawalsTotal.Inc() }
func SetPendingPayouts(n int)    { pendingPayouts.Set(float64(n)) }

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath collapses auction-scoped paths to a low-cardinality label,
// replacing the numeric id segment with ":id".
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	const prefix = "/v1/auctions/"
	if !strings.HasPrefix(path, prefix) {
		return path
	}
	rest := strings.TrimPrefix(path, prefix)
	parts := strings.Split(rest, "/")
	if parts[0] == "" {
		return path
	}
	if _, err := strconv.ParseUint(parts[0], 10, 64); err != nil {
		return path
	}
	parts[0] = ":id"
	return prefix + strings.Join(parts, "/")
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the instrumented chain.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
