package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type ComptrollerMetrics struct {
	hookDecisions    *prometheus.CounterVec
	rewardDistribute *prometheus.CounterVec
	rewardGranted    *prometheus.CounterVec
	payoutDeferred   *prometheus.CounterVec
	shortfalls       *prometheus.CounterVec
	adminChanges     *prometheus.CounterVec
}

var (
	comptrollerOnce     sync.Once
	comptrollerRegistry *ComptrollerMetrics
)

// Comptroller returns the lazily registered comptroller metrics.
func Comptroller() *ComptrollerMetrics {
	comptrollerOnce.Do(func() {
		comptrollerRegistry = &ComptrollerMetrics{
			hookDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "comptroller_hook_decisions_total",
				Help: "Policy hook verdicts segmented by action and result code.",
			}, []string{"action", "code"}),
			rewardDistribute: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "comptroller_reward_distributions_total",
				Help: "Count of non-zero reward distributions by reward type and side.",
			}, []string{"reward", "side"}),
			rewardGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "comptroller_reward_payouts_total",
				Help: "Count of successful reward payouts by reward type.",
			}, []string{"reward"}),
			payoutDeferred: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "comptroller_reward_payouts_deferred_total",
				Help: "Payouts left accrued because the vault could not cover them.",
			}, []string{"reward"}),
			shortfalls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "comptroller_liquidity_shortfalls_total",
				Help: "Liquidity computations that reported a shortfall, by caller.",
			}, []string{"caller"}),
			adminChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "comptroller_admin_changes_total",
				Help: "Accepted admin parameter changes by setter.",
			}, []string{"setter"}),
		}
		prometheus.MustRegister(
			comptrollerRegistry.hookDecisions,
			comptrollerRegistry.rewardDistribute,
			comptrollerRegistry.rewardGranted,
			comptrollerRegistry.payoutDeferred,
			comptrollerRegistry.shortfalls,
			comptrollerRegistry.adminChanges,
		)
	})
	return comptrollerRegistry
}

func (m *ComptrollerMetrics) ObserveHook(action, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.hookDecisions.WithLabelValues(action, code).Inc()
}

func (m *ComptrollerMetrics) ObserveDistribution(reward, side string) {
	if m == nil {
		return
	}
	m.rewardDistribute.WithLabelValues(reward, side).Inc()
}

func (m *ComptrollerMetrics) ObservePayout(reward string, deferred bool) {
	if m == nil {
		return
	}
	if deferred {
		m.payoutDeferred.WithLabelValues(reward).Inc()
		return
	}
	m.rewardGranted.WithLabelValues(reward).Inc()
}

func (m *ComptrollerMetrics) ObserveShortfall(caller string) {
	if m == nil {
		return
	}
	m.shortfalls.WithLabelValues(caller).Inc()
}

func (m *ComptrollerMetrics) ObserveAdminChange(setter string) {
	if m == nil {
		return
	}
	m.adminChanges.WithLabelValues(setter).Inc()
}
