package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// FeedMetrics tracks the committed event feed.
type FeedMetrics struct {
	published   *prometheus.CounterVec
	sequence    prometheus.Gauge
	subscribers prometheus.Gauge
	dropped     prometheus.Counter
}

var (
	feedMetricsOnce sync.Once
	feedRegistry    *FeedMetrics
)

// Events returns the process wide feed metrics.
func Events() *FeedMetrics {
	feedMetricsOnce.Do(func() {
		feedRegistry = &FeedMetrics{
			published: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "feed",
				Name:      "events_total",
				Help:      "Committed ledger events by emitting module and type.",
			}, []string{"module", "type"}),
			sequence: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendcore",
				Subsystem: "feed",
				Name:      "last_sequence",
				Help:      "Sequence number of the newest committed event.",
			}),
			subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "lendcore",
				Subsystem: "feed",
				Name:      "subscribers",
				Help:      "Open event stream subscriptions.",
			}),
			dropped: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "lendcore",
				Subsystem: "feed",
				Name:      "subscribers_dropped_total",
				Help:      "Subscriptions cut off for falling behind.",
			}),
		}
		prometheus.MustRegister(
			feedRegistry.published,
			feedRegistry.sequence,
			feedRegistry.subscribers,
			feedRegistry.dropped,
		)
	})
	return feedRegistry
}

// RecordEvent counts one event. The module label is the type prefix before
// the first dot, so "market.mint" counts under "market".
func (m *FeedMetrics) RecordEvent(eventType string, sequence uint64) {
	if m == nil {
		return
	}
	normalized := strings.ToLower(strings.TrimSpace(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	module, _, found := strings.Cut(normalized, ".")
	if !found {
		module = "unknown"
	}
	m.published.WithLabelValues(module, normalized).Inc()
	m.sequence.Set(float64(sequence))
}

// SetSubscribers reports the number of open subscriptions.
func (m *FeedMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.subscribers.Set(float64(n))
}

// RecordDropped counts a subscription closed for lagging.
func (m *FeedMetrics) RecordDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
