package observability

import (
	"time"

	"github.com/boddenberg/envelope-ledger/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the ledger.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	operationDuration  *prometheus.HistogramVec
	externalErrors     *prometheus.CounterVec
	transactions       *prometheus.CounterVec
	directoryInserts   *prometheus.CounterVec
	conflictsRecovered *prometheus.CounterVec
	splitViolations    *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// ledger metrics in it. A private registry lets tests build as many
// instances as they like.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		operationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_operation_duration_seconds",
				Help:    "Duration of ledger operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		transactions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Total committed transaction writes.",
			},
			[]string{"op"},
		),
		directoryInserts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_directory_inserts_total",
				Help: "Merchants and tags created on first use.",
			},
			[]string{"kind"},
		),
		conflictsRecovered: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_conflicts_recovered_total",
				Help: "Unique-key races resolved by re-reading the winner.",
			},
			[]string{"kind"},
		),
		splitViolations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_split_violations_total",
				Help: "Split sets rejected because they do not cover the amount.",
			},
			[]string{"op"},
		),
	}
}

// RecordOperationDuration records the duration of an operation.
func (m *Metrics) RecordOperationDuration(operation string, d time.Duration) {
	m.operationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrTransaction counts a committed create or update.
func (m *Metrics) IncrTransaction(op string) {
	m.transactions.WithLabelValues(op).Inc()
}

// IncrDirectoryInsert counts a merchant or tag created on first use.
func (m *Metrics) IncrDirectoryInsert(kind string) {
	m.directoryInserts.WithLabelValues(kind).Inc()
}

// IncrConflictRecovered counts a lost insert race that was re-read.
func (m *Metrics) IncrConflictRecovered(kind string) {
	m.conflictsRecovered.WithLabelValues(kind).Inc()
}

// IncrSplitViolation counts a rejected split set.
func (m *Metrics) IncrSplitViolation(op string) {
	m.splitViolations.WithLabelValues(op).Inc()
}

// Snapshot returns the counters behind GET /v1/stats.
func (m *Metrics) Snapshot() *domain.LedgerStats {
	return &domain.LedgerStats{
		TransactionsCreated: getCounterValue(m.transactions, "create"),
		TransactionsUpdated: getCounterValue(m.transactions, "update"),
		MerchantsCreated:    getCounterValue(m.directoryInserts, "merchant"),
		TagsCreated:         getCounterValue(m.directoryInserts, "tag"),
		ConflictsRecovered: getCounterValue(m.conflictsRecovered, "merchant") +
			getCounterValue(m.conflictsRecovered, "tag"),
		SplitViolations: getCounterValue(m.splitViolations, "create") +
			getCounterValue(m.splitViolations, "update"),
		Period: "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
