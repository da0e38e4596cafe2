// Package strategy hosts the strategy runtime: a registry
// of stateful strategies fed bar-by-bar market data, each polymorphic
// over a capability interface, producing Signals under a strict
// single-threaded-per-instance contract.
//
// Grounded on decision/localfunc.go's dispatch-by-algo-type structure
// (detectAlgoType → genetic | vwaper | scalper) generalized from an
// LLM-prompt-free scoring engine into a named strategy registry, and on
// decision/engine.go's StrategyEngine/Context/Decision shapes adapted
// from "decisions over a candidate-stock batch" into
// "callbacks over one symbol's bar stream".
package strategy

import (
	"fmt"

	"quantforge/internal/bar"
	"quantforge/internal/money"
)

// Side is the signal's trade direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Intent is what the signal asks the risk/execution pipeline to do.
type Intent string

const (
	IntentOpen   Intent = "open"
	IntentClose  Intent = "close"
	IntentReduce Intent = "reduce"
)

// OrderType mirrors the order types the execution layer accepts.
type OrderType string

const (
	TypeMarket    OrderType = "market"
	TypeLimit     OrderType = "limit"
	TypeStop      OrderType = "stop"
	TypeStopLimit OrderType = "stop_limit"
)

// Signal is a strategy's output: created by a strategy,
// consumed exactly once by the risk pipeline.
type Signal struct {
	ID           string
	Strategy     string
	Symbol       string
	Side         Side
	Intent       Intent
	Type         OrderType
	Qty          money.Decimal
	Notional     money.Decimal
	LimitPx      money.Decimal
	StopPx       money.Decimal
	StopLossPx   money.Decimal
	TakeProfitPx money.Decimal
	Urgency      float64 // in [0, 1]
	TsMs         int64
	Context      map[string]interface{} // opaque passthrough for audit/backtest
}

// Mode scales a strategy instance's aggressiveness without touching its
// core rule, adapted from a prior BuildSystemPrompt variant switch
// (aggressive/conservative/scalping prompt sections) — here it sets
// RiskPerTrade, the signal-strength threshold and a CooldownMs value
// instead of rewriting an LLM prompt. No code in the module reads
// CooldownMs.
type Mode string

const (
	ModeConservative Mode = "conservative"
	ModeBalanced     Mode = "balanced"
	ModeAggressive   Mode = "aggressive"
)

// ModeProfile holds the concrete scaling a Mode applies.
type ModeProfile struct {
	RiskPerTrade      float64 // fraction of equity risked per signal
	EntryThreshold    float64 // minimum composite signal-strength score (0-100)
	CooldownMs        int64
	PositionPercent   float64 // clamp: position notional <= PositionPercent * equity
}

var modeProfiles = map[Mode]ModeProfile{
	ModeAggressive:   {RiskPerTrade: 0.02, EntryThreshold: 55, CooldownMs: 30_000, PositionPercent: 0.25},
	ModeBalanced:     {RiskPerTrade: 0.01, EntryThreshold: 65, CooldownMs: 60_000, PositionPercent: 0.15},
	ModeConservative: {RiskPerTrade: 0.005, EntryThreshold: 75, CooldownMs: 120_000, PositionPercent: 0.08},
}

// Profile resolves a Mode to its scaling profile, defaulting to Balanced
// for an unrecognized or empty mode.
func (m Mode) Profile() ModeProfile {
	if p, ok := modeProfiles[m]; ok {
		return p
	}
	return modeProfiles[ModeBalanced]
}

// State is a strategy instance's lifecycle state.
type State string

const (
	StateCreated     State = "created"
	StateInitialized State = "initialized"
	StateRunning     State = "running"
	StateStopping    State = "stopping"
	StateStopped     State = "stopped"
)

// Config is the schema-validated per-strategy configuration, grounded on
// store.StrategyConfig's validate-before-start pattern.
type Config struct {
	Name           string
	Symbol         string
	Timeframe      bar.Timeframe
	Mode           Mode
	Params         map[string]float64 // strategy-specific numeric knobs
	UnknownsStrict bool               // reject unknown Params keys
}

// Validate enforces the "unknown fields are rejected;
// defaults are applied" rule for the fields this generic Config owns.
// Strategy-specific Params validation happens in each strategy's
// Initialize.
func (c Config) Validate(allowedParams map[string]bool) error {
	if c.Symbol == "" {
		return fmt.Errorf("strategy config: symbol is required")
	}
	if c.Timeframe == "" {
		return fmt.Errorf("strategy config: timeframe is required")
	}
	if c.UnknownsStrict {
		for k := range c.Params {
			if !allowedParams[k] {
				return fmt.Errorf("strategy config: unknown param %q", k)
			}
		}
	}
	return nil
}

// Strategy is the capability interface strategies implement: polymorphic
// over on_bar/on_ticker?/on_book?/initialize/state_snapshot. Name,
// Initialize, OnBar and StateSnapshot are mandatory; OnTicker/OnBook are
// satisfied by the
// optional TickerAware/BookAware interfaces below.
type Strategy interface {
	Name() string
	Initialize(cfg Config) error
	OnBar(b bar.Bar) ([]Signal, error)
	StateSnapshot() ([]byte, error)
}

// TickerAware is implemented by strategies that react to ticker updates
// (order-flow variants in particular).
type TickerAware interface {
	OnTicker(t bar.Ticker) ([]Signal, error)
}

// BookAware is implemented by strategies that react to order-book
// updates (order-flow / execution-feedback variants).
type BookAware interface {
	OnBook(ob bar.OrderBook) ([]Signal, error)
}

// Factory constructs a fresh, uninitialized Strategy instance.
type Factory func() Strategy
