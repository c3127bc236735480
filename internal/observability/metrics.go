// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"setup-outcome-lab/internal/settlement"
	"setup-outcome-lab/internal/storage/breaker"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "outcome_engine"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Batch metrics
	BatchRunsTotal     *prometheus.CounterVec
	BatchDuration      prometheus.Histogram
	VerdictsTotal      *prometheus.CounterVec
	SkippedClosedTotal prometheus.Counter
	EvaluationErrors   prometheus.Counter
	CandidatesRejected *prometheus.CounterVec
	CandlesFetched     prometheus.Histogram
	StoreUpsertsTotal  *prometheus.CounterVec

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec

	// Health metrics
	LastSuccessfulBatch prometheus.Gauge
}

// NewMetrics creates a Metrics instance registered with reg
// (prometheus.DefaultRegisterer when nil).
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Batch metrics
		BatchRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_runs_total",
			Help:      "Total number of outcome batches by status",
		}, []string{"status"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Outcome batch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		}),
		VerdictsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Total number of computed verdicts by status",
		}, []string{"status"}),
		SkippedClosedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_closed_total",
			Help:      "Total number of candidates skipped because their verdict was final",
		}),
		EvaluationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_errors_total",
			Help:      "Total number of per-candidate evaluation or persist failures",
		}),
		CandidatesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "candidates_rejected_total",
			Help:      "Total number of candidates rejected or failed by reason",
		}, []string{"reason"}),
		CandlesFetched: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "candles_fetched",
			Help:      "Number of bars fetched per evaluation",
			Buckets:   []float64{0, 1, 5, 10, 13, 20, 50},
		}),
		StoreUpsertsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_upserts_total",
			Help:      "Total number of verdict upserts by result",
		}, []string{"result"}),

		// Database metrics
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),
		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		}, []string{"name"}),

		// Health metrics
		LastSuccessfulBatch: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_batch_timestamp",
			Help:      "Unix timestamp of last successful outcome batch",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor returns a /metrics handler for a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordBatch records one finished batch.
func (m *Metrics) RecordBatch(res *settlement.BatchResult, duration time.Duration, err error) {
	m.BatchDuration.Observe(duration.Seconds())
	if err != nil || res == nil {
		m.BatchRunsTotal.WithLabelValues("error").Inc()
		return
	}
	m.BatchRunsTotal.WithLabelValues("success").Inc()
	m.LastSuccessfulBatch.SetToCurrentTime()

	mt := res.Metrics
	for status, n := range map[string]int{
		"hit_tp":    mt.HitTP,
		"hit_sl":    mt.HitSL,
		"expired":   mt.Expired,
		"ambiguous": mt.Ambiguous,
		"invalid":   mt.Invalid,
		"open":      mt.StillOpen,
	} {
		if n > 0 {
			m.VerdictsTotal.WithLabelValues(status).Add(float64(n))
		}
	}
	m.SkippedClosedTotal.Add(float64(mt.SkippedClosed))
	m.EvaluationErrors.Add(float64(mt.Errors))
	for reason, n := range res.Reasons {
		m.CandidatesRejected.WithLabelValues(reason).Add(float64(n))
	}
	for result, n := range map[string]int{
		"inserted":  res.Inserted,
		"updated":   res.Updated,
		"unchanged": res.Unchanged,
	} {
		if n > 0 {
			m.StoreUpsertsTotal.WithLabelValues(result).Add(float64(n))
		}
	}
}

// RecordCandlesFetched records the bar count of one evaluation.
func (m *Metrics) RecordCandlesFetched(n int) {
	m.CandlesFetched.Observe(float64(n))
}

// RecordDBQuery records database query metrics.
func (m *Metrics) RecordDBQuery(database, operation string, seconds float64, err error) {
	m.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		m.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// SetBreakerState records a circuit breaker transition.
func (m *Metrics) SetBreakerState(name string, state int) {
	m.BreakerState.WithLabelValues(name).Set(float64(state))
}

var (
	_ settlement.Recorder = (*Metrics)(nil)
	_ breaker.Observer    = (*Metrics)(nil)
)
