// Package metrics exposes the emulator's Prometheus instrumentation:
// request counters and latency histograms, commit and transaction
// counters, and rules decision counts.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the emulator's collectors behind one registry
type Metrics struct {
	registry *prometheus.Registry

	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	CommitWrites          prometheus.Histogram
	TransactionsStarted   prometheus.Counter
	TransactionsCommitted prometheus.Counter
	TransactionsAborted   prometheus.Counter
	TransactionsExpired   prometheus.Counter

	RulesDecisions *prometheus.CounterVec
}

// New creates the collectors under the given namespace and registers
// them, along with the Go runtime and process collectors.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		CommitWrites: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "commit_writes",
			Help:      "Writes per commit request.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		}),
		TransactionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_started_total",
			Help:      "Transactions begun.",
		}),
		TransactionsCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_committed_total",
			Help:      "Transactions committed.",
		}),
		TransactionsAborted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_aborted_total",
			Help:      "Transactions aborted on conflict or rolled back.",
		}),
		TransactionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_expired_total",
			Help:      "Transactions reaped after the idle timeout.",
		}),
		RulesDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_decisions_total",
			Help:      "Security-rules decisions by operation and outcome.",
		}, []string{"op", "outcome"}),
	}

	reg.MustRegister(
		m.Requests, m.RequestDuration, m.CommitWrites,
		m.TransactionsStarted, m.TransactionsCommitted,
		m.TransactionsAborted, m.TransactionsExpired,
		m.RulesDecisions,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterDocumentCount registers a gauge backed by the store's live
// document count.
func (m *Metrics) RegisterDocumentCount(namespace string, count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "documents",
		Help:      "Documents currently stored.",
	}, func() float64 { return float64(count()) }))
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// statusRecorder captures the response code for labelling
type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments a route with request count and latency. The
// route label is fixed per handler so cardinality stays bounded.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			m.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			m.Requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
		})
	}
}
