package risk

import (
	"sync"

	"quantforge/internal/logging"
	"quantforge/internal/money"
)

// CircuitBreaker tracks the state machine NORMAL -> L1 -> L2 -> L3 ->
// EMERGENCY, reusing the Level type's rank ordering
// (info=NORMAL, warn=L1, danger=L2, critical=L3, emergency=EMERGENCY).
type CircuitBreaker struct {
	mu            sync.Mutex
	level         Level
	lastEscalated int64 // ts_ms of last escalation, for cool-down de-escalation
	cooldownMs    int64
	manualHold    bool // manual override suppresses automatic de-escalation
}

// NewCircuitBreaker starts at NORMAL (Level "info") with the given
// automatic de-escalation cool-down.
func NewCircuitBreaker(cooldownMs int64) *CircuitBreaker {
	return &CircuitBreaker{level: LevelInfo, cooldownMs: cooldownMs}
}

// Level returns the current circuit-breaker level.
func (cb *CircuitBreaker) Level() Level {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.level
}

// Arm escalates the breaker to at least target (never de-escalates via
// Arm — only Cooldown steps it down), recording the escalation time.
func (cb *CircuitBreaker) Arm(target Level, nowMs int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if target.rank() > cb.level.rank() {
		cb.level = target
		logging.Warnf("risk: circuit breaker escalated to %s", target)
	}
	cb.lastEscalated = nowMs
}

// Cooldown de-escalates the breaker one step if the cool-down period has
// elapsed since the last escalation and price/vol have returned to
// normal (the caller passes conditionsNormal=true only when its own
// black-swan/vol checks agree). A manual hold suppresses this entirely.
func (cb *CircuitBreaker) Cooldown(nowMs int64, conditionsNormal bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.manualHold || cb.level == LevelInfo || !conditionsNormal {
		return
	}
	if nowMs-cb.lastEscalated < cb.cooldownMs {
		return
	}
	order := []Level{LevelInfo, LevelWarn, LevelDanger, LevelCritical, LevelEmergency}
	for i, v := range order {
		if v == cb.level && i > 0 {
			cb.level = order[i-1]
			logging.Infof("risk: circuit breaker de-escalated to %s", cb.level)
			break
		}
	}
	cb.lastEscalated = nowMs
}

// ManualOverride is always permitted; it sets the level
// directly and toggles the hold flag that blocks automatic de-escalation
// while held is true.
func (cb *CircuitBreaker) ManualOverride(level Level, held bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.level = level
	cb.manualHold = held
}

// DrawdownMonitor tracks high-water-mark minus equity, escalating
// ActionReduceNewExposure -> ActionPauseTrading -> ActionForceClose as
// the warn/danger/critical thresholds are crossed (below WarnPct it
// returns ActionNotify with fired=false). Grounded on trader/auto_trader.go's
// startDrawdownMonitor/checkPositionDrawdown/emergencyClosePosition,
// generalized from a single-position percentage check into an
// account-equity high-water-mark tracker.
type DrawdownMonitor struct {
	mu      sync.Mutex
	hwm     money.Decimal
	WarnPct float64
	DangerPct   float64
	CriticalPct float64
}

// NewDrawdownMonitor starts with a zero high-water mark; the first Check
// call seeds it.
func NewDrawdownMonitor(warnPct, dangerPct, criticalPct float64) *DrawdownMonitor {
	return &DrawdownMonitor{WarnPct: warnPct, DangerPct: dangerPct, CriticalPct: criticalPct}
}

// Check updates the high-water mark and returns the action to take, if
// any, for the current drawdown depth.
func (d *DrawdownMonitor) Check(equity money.Decimal) (action Action, level Level, drawdownPct float64, fired bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if equity.GreaterThan(d.hwm) {
		d.hwm = equity
	}
	if d.hwm.IsZero() {
		return "", "", 0, false
	}

	dd := d.hwm.Sub(equity)
	ddF, _ := dd.Float64()
	hwmF, _ := d.hwm.Float64()
	if hwmF == 0 {
		return "", "", 0, false
	}
	pct := ddF / hwmF

	switch {
	case pct >= d.CriticalPct:
		return ActionForceClose, LevelEmergency, pct, true
	case pct >= d.DangerPct:
		return ActionPauseTrading, LevelCritical, pct, true
	case pct >= d.WarnPct:
		return ActionReduceNewExposure, LevelDanger, pct, true
	default:
		return ActionNotify, LevelInfo, pct, false
	}
}

// MarginMonitor runs the same warn/danger/critical escalation pattern as
// DrawdownMonitor over margin_rate instead of equity drawdown.
type MarginMonitor struct {
	WarnRate     money.Decimal
	DangerRate   money.Decimal
	CriticalRate money.Decimal
}

func (m MarginMonitor) Check(acct Account) (action Action, level Level, fired bool) {
	rate := acct.MarginRate()
	switch {
	case !m.CriticalRate.IsZero() && rate.LessThan(m.CriticalRate):
		return ActionForceClose, LevelEmergency, true
	case !m.DangerRate.IsZero() && rate.LessThan(m.DangerRate):
		return ActionPauseTrading, LevelCritical, true
	case !m.WarnRate.IsZero() && rate.LessThan(m.WarnRate):
		return ActionReduceNewExposure, LevelDanger, true
	default:
		return "", "", false
	}
}

// ConcentrationMonitor flags any single-symbol position exceeding max
// fraction of equity on a continuous basis (distinct from the pre-trade
// gateConcentration check, which only evaluates new orders).
type ConcentrationMonitor struct {
	Max float64
}

func (c ConcentrationMonitor) Check(acct Account) (symbol string, fired bool) {
	if c.Max <= 0 || acct.Equity.IsZero() {
		return "", false
	}
	equityF, _ := acct.Equity.Float64()
	bySymbol := map[string]float64{}
	for _, p := range acct.Positions {
		notional, _ := money.Abs(p.Qty).Mul(p.AvgEntryPx).Float64()
		bySymbol[p.Symbol] += notional
	}
	for sym, notional := range bySymbol {
		if equityF > 0 && notional/equityF > c.Max {
			return sym, true
		}
	}
	return "", false
}

// LiquidationDistanceMonitor flags positions whose last price has
// approached their liquidation price within CriticalPct. Check only
// reports the condition; it does not put the position into a
// reduce-only mode.
type LiquidationDistanceMonitor struct {
	CriticalPct float64
}

func (l LiquidationDistanceMonitor) Check(pos Position, lastPx money.Decimal) (fired bool) {
	if !pos.HasLiqPx || lastPx.IsZero() {
		return false
	}
	distance := money.Abs(lastPx.Sub(pos.LiqPx))
	lastPxF, _ := lastPx.Float64()
	distF, _ := distance.Float64()
	if lastPxF == 0 {
		return false
	}
	return distF/lastPxF < l.CriticalPct
}

// BlackSwanDetector arms circuit-breaker levels from three independent
// signals: abnormal price velocity vs ATR, book-depth collapse, and
// cross-venue spread blowout — three OR'd conditions.
type BlackSwanDetector struct {
	PriceVelocityK float64 // price_move_over_window / window_mins > K * ATR
	DepthCollapsePct float64
	CrossVenueSpreadPct float64
}

func (b BlackSwanDetector) CheckPriceVelocity(priceMovePerMin, atr float64) bool {
	return atr > 0 && priceMovePerMin > b.PriceVelocityK*atr
}

func (b BlackSwanDetector) CheckDepthCollapse(depthDropPct float64) bool {
	return depthDropPct > b.DepthCollapsePct
}

func (b BlackSwanDetector) CheckCrossVenueSpread(spreadPct float64) bool {
	return spreadPct > b.CrossVenueSpreadPct
}
