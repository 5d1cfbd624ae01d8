// Package metrics exposes Prometheus collectors for the marketplace.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bookswap"

// Metrics holds every collector the server records to.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LoginAttempts   *prometheus.CounterVec
	AccountLockouts prometheus.Counter
	Registrations   prometheus.Counter

	SwapRequests    prometheus.Counter
	SwapTransitions *prometheus.CounterVec
	CascadeRejects  *prometheus.CounterVec

	BooksCreated       prometheus.Counter
	BooksDeleted       prometheus.Counter
	ModerationDecision *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		LoginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome.",
		}, []string{"outcome"}),
		AccountLockouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "account_lockouts_total",
			Help:      "Accounts locked after repeated failed logins.",
		}),
		Registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "registrations_total",
			Help:      "Accounts created.",
		}),
		SwapRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_requests_total",
			Help:      "Swap requests created.",
		}),
		SwapTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_transitions_total",
			Help:      "Swap requests leaving the pending state, by resulting status.",
		}, []string{"status"}),
		CascadeRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swap_cascade_rejects_total",
			Help:      "Pending swap requests rejected as a side effect, by cause.",
		}, []string{"cause"}),
		BooksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_created_total",
			Help:      "Book listings created.",
		}),
		BooksDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "books_deleted_total",
			Help:      "Book listings deleted.",
		}),
		ModerationDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moderation_decisions_total",
			Help:      "Moderation decisions by resulting approval state.",
		}, []string{"approval"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPRequestDuration,
		m.LoginAttempts,
		m.AccountLockouts,
		m.Registrations,
		m.SwapRequests,
		m.SwapTransitions,
		m.CascadeRejects,
		m.BooksCreated,
		m.BooksDeleted,
		m.ModerationDecision,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordLogin counts a login attempt. outcome is one of success,
// invalid_credentials, locked or unknown_user.
func (m *Metrics) RecordLogin(outcome string) {
	m.LoginAttempts.WithLabelValues(outcome).Inc()
}

// RecordSwapTransition counts a request leaving pending, plus the competing
// requests rejected alongside it.
func (m *Metrics) RecordSwapTransition(status string, cascaded int) {
	m.SwapTransitions.WithLabelValues(status).Inc()
	if cascaded > 0 {
		m.CascadeRejects.WithLabelValues("approval").Add(float64(cascaded))
	}
}

// RecordBookDeleted counts a deleted listing and the pending requests it took with it.
func (m *Metrics) RecordBookDeleted(cascaded int) {
	m.BooksDeleted.Inc()
	if cascaded > 0 {
		m.CascadeRejects.WithLabelValues("book_deleted").Add(float64(cascaded))
	}
}

// PoolStats is the subset of *pgxpool.Stat exported as gauges.
type PoolStats interface {
	TotalConns() int32
	AcquiredConns() int32
	IdleConns() int32
	MaxConns() int32
}

// RegisterPool exports database pool gauges. stat is called on every scrape.
func (m *Metrics) RegisterPool(stat func() PoolStats) {
	gauge := func(name, help string, value func(PoolStats) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "db_pool",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(value(stat())) })
	}
	m.registry.MustRegister(
		gauge("total_conns", "Connections currently open in the pool.", PoolStats.TotalConns),
		gauge("acquired_conns", "Connections currently checked out.", PoolStats.AcquiredConns),
		gauge("idle_conns", "Idle connections.", PoolStats.IdleConns),
		gauge("max_conns", "Configured pool size.", PoolStats.MaxConns),
	)
}

// Middleware records request count and latency, labelled by chi route pattern
// so path parameters do not explode label cardinality.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		m.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
