// Package metrics holds the Prometheus collectors shared by the HTTP layer
// and the reservation engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine counts reservation outcomes. A nil *Engine is valid and records nothing.
type Engine struct {
	conflicts       *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	holds           *prometheus.CounterVec
	waitlist        *prometheus.CounterVec
	outboxPublished prometheus.Counter
}

func NewEngine(reg prometheus.Registerer, namespace string) *Engine {
	e := &Engine{
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commitment_conflicts_total",
			Help:      "Inserts rejected because the interval was already occupied.",
		}, []string{"operation"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_transitions_total",
			Help:      "Booking status transitions by target status.",
		}, []string{"status"}),
		holds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "holds_total",
			Help:      "Hold lifecycle events.",
		}, []string{"event"}),
		waitlist: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "waitlist_events_total",
			Help:      "Waitlist joins, removals and notifications.",
		}, []string{"event"}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outbox_published_total",
			Help:      "Outbox events written to the broker.",
		}),
	}
	reg.MustRegister(e.conflicts, e.transitions, e.holds, e.waitlist, e.outboxPublished)
	return e
}

func (e *Engine) Conflict(operation string) {
	if e == nil {
		return
	}
	e.conflicts.WithLabelValues(operation).Inc()
}

func (e *Engine) Transition(status string) {
	if e == nil {
		return
	}
	e.transitions.WithLabelValues(status).Inc()
}

func (e *Engine) Hold(event string) {
	if e == nil {
		return
	}
	e.holds.WithLabelValues(event).Inc()
}

func (e *Engine) HoldsExpired(n int) {
	if e == nil || n <= 0 {
		return
	}
	e.holds.WithLabelValues("expired").Add(float64(n))
}

func (e *Engine) Waitlist(event string) {
	if e == nil {
		return
	}
	e.waitlist.WithLabelValues(event).Inc()
}

func (e *Engine) OutboxPublished(n int) {
	if e == nil || n <= 0 {
		return
	}
	e.outboxPublished.Add(float64(n))
}

// HTTP instruments requests by mux route template.
type HTTP struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTP(reg prometheus.Registerer, namespace string) *HTTP {
	h := &HTTP{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"route", "method", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	reg.MustRegister(h.requests, h.duration)
	return h
}

// Middleware is meant for mux.Router.Use so the route template is resolved.
func (h *HTTP) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		h.requests.WithLabelValues(route, r.Method, strconv.Itoa(sw.status)).Inc()
		h.duration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
