package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LedgerMetrics struct {
	actions  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   prometheus.Counter
}

var (
	ledgerOnce     sync.Once
	ledgerRegistry *LedgerMetrics
)

// Ledger returns the lazily registered ledger metrics.
func Ledger() *LedgerMetrics {
	ledgerOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lendcore_ledger_actions_total",
				Help: "Ledger actions by name and outcome (committed, reverted).",
			}, []string{"action", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lendcore_ledger_action_seconds",
				Help:    "Time spent executing ledger actions including commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"action"}),
			events: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lendcore_ledger_events_published_total",
				Help: "Events published after commit.",
			}),
		}
		prometheus.MustRegister(ledgerRegistry.actions, ledgerRegistry.duration, ledgerRegistry.events)
	})
	return ledgerRegistry
}

func (m *LedgerMetrics) ObserveAction(action string, committed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "reverted"
	if committed {
		outcome = "committed"
	}
	m.actions.WithLabelValues(action, outcome).Inc()
	m.duration.WithLabelValues(action).Observe(elapsed.Seconds())
}

func (m *LedgerMetrics) AddPublished(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.events.Add(float64(n))
}
