package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the portal's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	payments      *prometheus.CounterVec
	sessions      *prometheus.CounterVec
}

func New(registry prometheus.Registerer) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Counter for HTTP requests by method, status, route",
		}, []string{"method", "status", "route"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "Histogram of latencies for HTTP requests by method, status, route",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status", "route"}),
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_verification_attempts_total",
			Help: "Identity verification attempts by result",
		}, []string{"result"}),
		payments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_payments_total",
			Help: "Payment captures by result",
		}, []string{"result"}),
		sessions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_session_events_total",
			Help: "Session changes by event",
		}, []string{"event"}),
	}
}

func (m *Metrics) VerificationAttempt(result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(result).Inc()
}

func (m *Metrics) Payment(result string) {
	if m == nil {
		return
	}
	m.payments.WithLabelValues(result).Inc()
}

func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(event).Inc()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Router reports the pattern a request matches, the way *http.ServeMux does.
type Router interface {
	Handler(r *http.Request) (http.Handler, string)
}

// Middleware counts requests by the route pattern they target. It may sit
// outside middleware that answers early, such as the access gate: when the
// mux never ran, the pattern is looked up on routes instead.
func (m *Metrics) Middleware(routes Router, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		route := r.Pattern
		if route == "" && routes != nil {
			_, route = routes.Handler(r)
		}
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(sw.status)
		m.requests.WithLabelValues(r.Method, status, route).Inc()
		m.duration.WithLabelValues(r.Method, status, route).Observe(time.Since(start).Seconds())
	})
}
