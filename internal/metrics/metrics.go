// Package metrics instruments ledger operations with Prometheus.
package metrics

import (
	"strings"
	"time"

	"github.com/campus-card/cardledger/internal/cardledger"
	"github.com/campus-card/cardledger/internal/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cardledger"

var _ cardledger.Observer = (*Ledger)(nil)

// Ledger collects operation and ledger entry metrics. It implements
// cardledger.Observer.
type Ledger struct {
	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
	entries    *prometheus.CounterVec
	amounts    *prometheus.CounterVec
}

// NewLedger creates the collectors and registers them with reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	l := &Ledger{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Ledger operations by outcome.",
			},
			[]string{"operation", "result"},
		),
		durations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of ledger operations in seconds.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_entries_total",
				Help:      "Committed ledger entries by kind.",
			},
			[]string{"kind"},
		),
		amounts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ledger_amount_total",
				Help:      "Absolute amount moved by committed ledger entries, by kind.",
			},
			[]string{"kind"},
		),
	}
	if reg != nil {
		reg.MustRegister(l.operations, l.durations, l.entries, l.amounts)
	}
	return l
}

// OperationDone records one finished operation.
func (l *Ledger) OperationDone(op string, err error, elapsed time.Duration) {
	label := strings.ReplaceAll(op, " ", "_")
	l.operations.WithLabelValues(label, result(err)).Inc()
	l.durations.WithLabelValues(label).Observe(elapsed.Seconds())
}

// EntryAppended records one committed ledger entry.
func (l *Ledger) EntryAppended(entry models.CardTx) {
	l.entries.WithLabelValues(entry.Kind).Inc()
	amount, _ := entry.Amount.Abs().Float64()
	l.amounts.WithLabelValues(entry.Kind).Add(amount)
}

// result maps an operation error to a low-cardinality label.
func result(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := cardledger.KindOf(err); kind != "" {
		return strings.ToLower(string(kind))
	}
	return "error"
}
