// Package risk implements the engine's largest subsystem:
// ordered synchronous pre-trade gates, a risk-per-trade sizing formula,
// always-on continuous monitors with a circuit-breaker state machine,
// and a cooldown/escalation alert fan-out.
//
// Grounded structurally on other_examples's
// abdoElHodaky-tradSys/internal/risk/realtime_engine.go
// (PositionManager/LimitManager/VaRCalculator/CircuitBreaker/RiskEvent
// composition, go.uber.org/zap logging, object-pool-backed event
// channel), adapted onto this engine's own Signal/Account/Position
// shapes (from decision/engine.go) and gate-by-gate semantics (from
// new code with no direct analogue in prior trading-bot code — the
// teacher's risk logic is embedded inline in trader/auto_trader.go's
// enforce* methods, e.g. enforcePositionValueRatio,
// enforceMinPositionSize, enforceMaxPositions).
package risk

import (
	"quantforge/internal/logging"
	"quantforge/internal/money"
)

// Level is a risk event's severity.
type Level string

const (
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelDanger   Level = "danger"
	LevelCritical Level = "critical"
	LevelEmergency Level = "emergency"
)

// rank orders Level for escalation comparisons.
var rank = map[Level]int{
	LevelInfo: 0, LevelWarn: 1, LevelDanger: 2, LevelCritical: 3, LevelEmergency: 4,
}

func (l Level) rank() int { return rank[l] }

// step returns the next-higher level, saturating at emergency.
func (l Level) step() Level {
	order := []Level{LevelInfo, LevelWarn, LevelDanger, LevelCritical, LevelEmergency}
	for i, v := range order {
		if v == l && i+1 < len(order) {
			return order[i+1]
		}
	}
	return LevelEmergency
}

// Action is the idempotent action vocabulary the risk pipeline emits.
type Action string

const (
	ActionNotify            Action = "notify"
	ActionReduceNewExposure Action = "reduce_new_exposure"
	ActionPauseTrading      Action = "pause_trading"
	ActionCancelWorking     Action = "cancel_working"
	ActionForceClose        Action = "force_close"
)

// Event is the risk pipeline's event record, pre-hash: the audit sink
// computes hash/prev_hash when the engine hands it over through
// AppendRiskEvent.
type Event struct {
	Module  string
	Kind    string
	Level   Level
	Symbol  string
	Account string
	TsMs    int64
	Payload map[string]interface{}
}

// Position is a venue position snapshot, money.Decimal throughout.
type Position struct {
	Account      string
	Venue        string
	Symbol       string
	Qty          money.Decimal // signed
	AvgEntryPx   money.Decimal
	RealizedPnL  money.Decimal
	UnrealizedPnL money.Decimal
	MarginUsed   money.Decimal
	LiqPx        money.Decimal
	HasLiqPx     bool
	UpdatedTsMs  int64
}

// Account is a venue account snapshot.
type Account struct {
	AccountID   string
	Venue       string
	Equity      money.Decimal
	FreeMargin  money.Decimal
	UsedMargin  money.Decimal
	Positions   []Position
	TsMs        int64
}

// MarginRate returns free_margin / equity, the margin_rate
// derived field.
func (a Account) MarginRate() money.Decimal {
	if a.Equity.IsZero() {
		return money.Zero
	}
	return a.FreeMargin.Div(a.Equity)
}

func logDenied(gate, reason string) {
	logging.Warnf("risk: gate %s denied: %s", gate, reason)
}
