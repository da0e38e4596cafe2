// Package metrics exposes the engine's Prometheus metrics: risk gate
// outcomes, execution slippage, event-bus backpressure, the
// circuit-breaker state, drawdown, and audit-chain integrity.
//
// Grounded on metrics/metrics.go's promauto.With(Registry) style
// (a package-private registry rather than the global default
// registerer, gauge/counter/histogram vecs labeled by domain
// dimensions), generalized from per-trader P&L gauges to this
// engine's risk/execution/audit domain.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry is the engine's private Prometheus registry; cmd/engine
// wires it to an HTTP handler rather than relying on the global
// DefaultRegisterer, so metrics registration can't collide with
// anything else in the process.
var Registry = prometheus.NewRegistry()

var (
	// RiskGateDecisions counts pre-trade gate evaluations by gate and
	// outcome (allow/deny). The engine records one observation per full
	// gate-chain run, under the gate label "chain".
	RiskGateDecisions = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantforge",
			Subsystem: "risk",
			Name:      "gate_decisions_total",
			Help:      "Pre-trade risk gate evaluations by gate and outcome",
		},
		[]string{"gate", "outcome"},
	)

	// RiskEventsTotal counts risk-pipeline events by module, kind, and
	// level.
	RiskEventsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantforge",
			Subsystem: "risk",
			Name:      "events_total",
			Help:      "Risk pipeline events by module, kind, and level",
		},
		[]string{"module", "kind", "level"},
	)

	// CircuitBreakerLevel reports the current circuit-breaker state as
	// an ordinal (0=normal .. 4=halted), per account.
	CircuitBreakerLevel = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quantforge",
			Subsystem: "risk",
			Name:      "circuit_breaker_level",
			Help:      "Circuit breaker state ordinal (0=normal .. 4=halted)",
		},
		[]string{"account"},
	)

	// DrawdownPct reports the current drawdown percentage per account.
	DrawdownPct = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quantforge",
			Subsystem: "risk",
			Name:      "drawdown_percent",
			Help:      "Current drawdown from equity high-water mark",
		},
		[]string{"account"},
	)

	// ExecutionSlippageBps observes realized slippage in basis points
	// per venue/symbol/execution-strategy.
	ExecutionSlippageBps = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantforge",
			Subsystem: "execution",
			Name:      "slippage_bps",
			Help:      "Realized execution slippage in basis points",
			Buckets:   []float64{1, 2, 5, 10, 20, 40, 60, 100, 200, 400},
		},
		[]string{"venue", "symbol", "strategy"},
	)

	// ExecutionOrdersTotal counts submitted orders by venue and
	// terminal status.
	ExecutionOrdersTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantforge",
			Subsystem: "execution",
			Name:      "orders_total",
			Help:      "Orders submitted by venue and terminal status",
		},
		[]string{"venue", "status"},
	)

	// EventBusDropped counts events dropped from a subscriber's bounded
	// queue on overflow, by topic.
	EventBusDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "quantforge",
			Subsystem: "eventbus",
			Name:      "dropped_total",
			Help:      "Events dropped from a subscriber queue on overflow",
		},
		[]string{"topic"},
	)

	// EventBusQueueDepth reports a subscriber's current queue depth.
	EventBusQueueDepth = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "quantforge",
			Subsystem: "eventbus",
			Name:      "queue_depth",
			Help:      "Current per-subscriber event queue depth",
		},
		[]string{"topic", "subscriber"},
	)

	// AuditChainIntact reports 1 while the last verified audit segment
	// passed integrity verification, 0 once a broken link is detected.
	AuditChainIntact = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "quantforge",
			Subsystem: "audit",
			Name:      "chain_intact",
			Help:      "1 if the last verified audit segment's hash chain is intact, 0 otherwise",
		},
	)

	// StrategyCallbackDurationMs observes OnBar/OnTicker/OnBook
	// callback latency per strategy instance.
	StrategyCallbackDurationMs = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "quantforge",
			Subsystem: "strategy",
			Name:      "callback_duration_ms",
			Help:      "Strategy callback latency in milliseconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"strategy", "callback"},
	)
)
