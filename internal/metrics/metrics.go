// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "byb"

var (
	// LedgerMutations counts ledger operations by kind (add, toggle, remove, clear, import).
	LedgerMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "mutations_total",
		Help:      "Ledger mutations by operation.",
	}, []string{"op"})

	// Rollovers counts items carried into a newly opened day.
	Rollovers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ledger",
		Name:      "rolled_items_total",
		Help:      "Unfinished items carried over into a new day.",
	})

	// PersistenceErrors counts failed local store writes by component.
	PersistenceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "storage",
		Name:      "persistence_errors_total",
		Help:      "Local store operations that failed.",
	}, []string{"component"})

	// CommitResults counts remote writes made by wizard commits.
	CommitResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "wizard",
		Name:      "commit_results_total",
		Help:      "Remote writes issued by goal plan commits.",
	}, []string{"target", "result"})

	// WizardSessions tracks sessions currently held in the session cache.
	WizardSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "wizard",
		Name:      "sessions",
		Help:      "Wizard sessions held in memory.",
	})

	// SyncedRecords counts outbox rows pushed to the remote record store.
	SyncedRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "records_total",
		Help:      "Outbox rows processed by the sync worker.",
	}, []string{"table", "result"})

	// HTTPRequests counts served requests by route pattern and status code.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by route and status code.",
	}, []string{"method", "route", "code"})

	// HTTPDuration observes request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"route"})

	// RateLimited counts requests rejected by the rate limiter.
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the rate limiter.",
	})

	// SuspiciousRequests counts requests flagged by the security middleware.
	SuspiciousRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "suspicious_requests_total",
		Help:      "Requests flagged by input inspection.",
	}, []string{"reason"})
)

// Result label values.
const (
	ResultOK    = "ok"
	ResultError = "error"
	ResultLocal = "local_only"
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome maps an error to a result label.
func Outcome(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}
