package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ControllerMetrics exposes the risk-control counters. All observe methods
// are nil-receiver safe so callers never have to branch on whether metrics
// were wired.
type ControllerMetrics struct {
	gateDecisions   *prometheus.CounterVec
	liquidityChecks prometheus.Counter
	marketsListed   prometheus.Gauge
}

var (
	controllerOnce     sync.Once
	controllerRegistry *ControllerMetrics
)

func Controller() *ControllerMetrics {
	controllerOnce.Do(func() {
		controllerRegistry = &ControllerMetrics{
			gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "controller_gate_decisions_total",
				Help: "Count of gate hook outcomes by action and refusal code.",
			}, []string{"action", "code"}),
			liquidityChecks: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "controller_liquidity_checks_total",
				Help: "Count of account liquidity evaluations.",
			}),
			marketsListed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "controller_markets_listed",
				Help: "Number of markets currently listed or soft-delisted.",
			}),
		}
		prometheus.MustRegister(
			controllerRegistry.gateDecisions,
			controllerRegistry.liquidityChecks,
			controllerRegistry.marketsListed,
		)
	})
	return controllerRegistry
}

func (m *ControllerMetrics) ObserveGateDecision(action, code string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	if code == "" {
		code = "unknown"
	}
	m.gateDecisions.WithLabelValues(action, code).Inc()
}

func (m *ControllerMetrics) ObserveLiquidityCheck() {
	if m == nil {
		return
	}
	m.liquidityChecks.Inc()
}

func (m *ControllerMetrics) SetMarketsListed(count int) {
	if m == nil {
		return
	}
	m.marketsListed.Set(float64(count))
}

func (m *ControllerMetrics) InitGateAction(action string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "unknown"
	}
	m.gateDecisions.WithLabelValues(action, "ok").Add(0)
}
