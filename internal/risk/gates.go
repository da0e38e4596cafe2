package risk

import (
	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// GateVerdict is one gate's outcome on a candidate Signal.
type GateVerdict struct {
	Allow  bool
	Warn   bool
	Reason string
}

func allow() GateVerdict                { return GateVerdict{Allow: true} }
func deny(reason string) GateVerdict     { return GateVerdict{Allow: false, Reason: reason} }
func warn(reason string) GateVerdict     { return GateVerdict{Allow: true, Warn: true, Reason: reason} }

// Snapshot bundles the market/account context a gate needs, so each gate
// function stays a pure function of (signal, snapshot, limits).
type Snapshot struct {
	Account           Account
	CircuitLevel      Level
	TradingPaused     bool
	AccountPaused     map[string]bool
	AllowedSymbols    map[string]bool
	AllowedVenues     map[string]bool
	PerSymbolCapQty   money.Decimal
	PerAccountCapNotl money.Decimal
	MaxLeverage       money.Decimal
	ConcentrationMax  float64 // fraction of equity, e.g. 0.25
	MarginWarnRate    money.Decimal
	MarginCriticalRate money.Decimal
	DailyPnL          money.Decimal
	DailyLossLimit    money.Decimal
	EstimatedSlippage float64 // fraction, from the execution layer's slippage model
	MaxSlippageByUrgency func(urgency float64) float64
	LastFailureTsMs   map[SymbolSide]int64
	CooldownMs        int64
	NowMs             int64
}

// SymbolSide keys the cooldown gate's failure-timestamp map; exported so
// callers outside this package (the orchestrator's order-failure
// tracker) can build the map gateCooldown reads.
type SymbolSide struct {
	Symbol string
	Side   strategy.Side
}

// Gate is one ordered pre-trade check. Gate order is fixed by
// GateChain below and must never be reordered.
type Gate func(sig strategy.Signal, snap Snapshot) GateVerdict

// GateChain runs every gate in the fixed order above. The first
// denial is terminal; warnings accumulate and are returned alongside the
// final allow/deny outcome.
func GateChain(sig strategy.Signal, snap Snapshot) (finalAllow bool, reasons []string, warnings []string) {
	gates := []struct {
		name string
		fn   Gate
	}{
		{"circuit_breaker", gateCircuitBreaker},
		{"trading_paused", gateTradingPaused},
		{"allow_list", gateAllowList},
		{"position_limits", gatePositionLimits},
		{"leverage_cap", gateLeverageCap},
		{"concentration", gateConcentration},
		{"margin_headroom", gateMarginHeadroom},
		{"daily_loss", gateDailyLoss},
		{"liquidity_slippage", gateLiquiditySlippage},
		{"cooldown", gateCooldown},
	}

	for _, g := range gates {
		v := g.fn(sig, snap)
		if !v.Allow {
			logDenied(g.name, v.Reason)
			return false, []string{v.Reason}, warnings
		}
		if v.Warn {
			warnings = append(warnings, v.Reason)
		}
	}
	return true, nil, warnings
}

// 1. Circuit-breaker state: L2+ denies all new opening orders; closing/
// reducing orders remain allowed unless EMERGENCY.
func gateCircuitBreaker(sig strategy.Signal, snap Snapshot) GateVerdict {
	if snap.CircuitLevel == LevelEmergency {
		return deny("circuit breaker at EMERGENCY: all orders denied")
	}
	if snap.CircuitLevel.rank() >= LevelDanger.rank() && sig.Intent == strategy.IntentOpen {
		return deny("circuit breaker at L2+: new opening orders denied")
	}
	return allow()
}

// 2. Trading-paused flag (global or per-account).
func gateTradingPaused(sig strategy.Signal, snap Snapshot) GateVerdict {
	if snap.TradingPaused {
		return deny("trading paused globally")
	}
	if snap.AccountPaused != nil && snap.AccountPaused[snap.Account.AccountID] {
		return deny("trading paused for account " + snap.Account.AccountID)
	}
	return allow()
}

// 3. Symbol/venue allow-list.
func gateAllowList(sig strategy.Signal, snap Snapshot) GateVerdict {
	if len(snap.AllowedSymbols) > 0 && !snap.AllowedSymbols[sig.Symbol] {
		return deny("symbol " + sig.Symbol + " not in allow-list")
	}
	if len(snap.AllowedVenues) > 0 && !snap.AllowedVenues[snap.Account.Venue] {
		return deny("venue " + snap.Account.Venue + " not in allow-list")
	}
	return allow()
}

// 4. Position limits: requested qty + current exposure <= per-symbol
// cap AND aggregate notional <= per-account cap.
func gatePositionLimits(sig strategy.Signal, snap Snapshot) GateVerdict {
	if sig.Intent != strategy.IntentOpen {
		return allow()
	}
	current := money.Zero
	for _, p := range snap.Account.Positions {
		if p.Symbol == sig.Symbol {
			current = current.Add(money.Abs(p.Qty))
		}
	}
	if !snap.PerSymbolCapQty.IsZero() && current.Add(sig.Qty).GreaterThan(snap.PerSymbolCapQty) {
		return deny("per-symbol position cap exceeded")
	}
	aggregate := money.Zero
	for _, p := range snap.Account.Positions {
		aggregate = aggregate.Add(money.Abs(p.Qty).Mul(p.AvgEntryPx))
	}
	if !snap.PerAccountCapNotl.IsZero() && aggregate.Add(sig.Notional).GreaterThan(snap.PerAccountCapNotl) {
		return deny("per-account notional cap exceeded")
	}
	return allow()
}

// 5. Leverage cap.
func gateLeverageCap(sig strategy.Signal, snap Snapshot) GateVerdict {
	if sig.Intent != strategy.IntentOpen || snap.Account.Equity.IsZero() {
		return allow()
	}
	projectedUsed := snap.Account.UsedMargin.Add(sig.Notional)
	leverage := projectedUsed.Div(snap.Account.Equity)
	if !snap.MaxLeverage.IsZero() && leverage.GreaterThan(snap.MaxLeverage) {
		return deny("leverage cap exceeded")
	}
	return allow()
}

// 6. Concentration: no single symbol > concentration_max of equity.
func gateConcentration(sig strategy.Signal, snap Snapshot) GateVerdict {
	if sig.Intent != strategy.IntentOpen || snap.Account.Equity.IsZero() || snap.ConcentrationMax <= 0 {
		return allow()
	}
	symbolNotional := sig.Notional
	for _, p := range snap.Account.Positions {
		if p.Symbol == sig.Symbol {
			symbolNotional = symbolNotional.Add(money.Abs(p.Qty).Mul(p.AvgEntryPx))
		}
	}
	equityF, _ := snap.Account.Equity.Float64()
	notionalF, _ := symbolNotional.Float64()
	if equityF <= 0 {
		return allow()
	}
	if notionalF/equityF > snap.ConcentrationMax {
		return deny("single-symbol concentration exceeds cap")
	}
	return allow()
}

// 7. Margin headroom: projected margin_rate after the order >=
// warn_threshold; below critical => deny.
func gateMarginHeadroom(sig strategy.Signal, snap Snapshot) GateVerdict {
	if sig.Intent != strategy.IntentOpen || snap.Account.Equity.IsZero() {
		return allow()
	}
	projectedFree := snap.Account.FreeMargin.Sub(sig.Notional)
	projectedRate := projectedFree.Div(snap.Account.Equity)
	if !snap.MarginCriticalRate.IsZero() && projectedRate.LessThan(snap.MarginCriticalRate) {
		return deny("projected margin rate below critical threshold")
	}
	if !snap.MarginWarnRate.IsZero() && projectedRate.LessThan(snap.MarginWarnRate) {
		return warn("projected margin rate below warn threshold")
	}
	return allow()
}

// 8. Daily-loss guard: deny opening if realized+unrealized day-PnL <=
// -daily_loss_limit; allow closing.
func gateDailyLoss(sig strategy.Signal, snap Snapshot) GateVerdict {
	if sig.Intent != strategy.IntentOpen {
		return allow()
	}
	if snap.DailyLossLimit.IsZero() {
		return allow()
	}
	if snap.DailyPnL.LessThanOrEqual(snap.DailyLossLimit.Neg()) {
		return deny("daily loss limit breached")
	}
	return allow()
}

// 9. Liquidity/slippage gate: estimated slippage <= allowed for this
// urgency class.
func gateLiquiditySlippage(sig strategy.Signal, snap Snapshot) GateVerdict {
	if snap.MaxSlippageByUrgency == nil {
		return allow()
	}
	maxAllowed := snap.MaxSlippageByUrgency(sig.Urgency)
	if snap.EstimatedSlippage > maxAllowed {
		return deny("estimated slippage exceeds allowance for this urgency class")
	}
	return allow()
}

// 10. Cooldown: if a prior order for this (symbol, side) failed within
// cooldown_ms, deny.
func gateCooldown(sig strategy.Signal, snap Snapshot) GateVerdict {
	if snap.LastFailureTsMs == nil || snap.CooldownMs <= 0 {
		return allow()
	}
	key := SymbolSide{Symbol: sig.Symbol, Side: sig.Side}
	lastFail, ok := snap.LastFailureTsMs[key]
	if !ok {
		return allow()
	}
	if snap.NowMs-lastFail < snap.CooldownMs {
		return deny("cooldown active for this symbol/side after a recent failure")
	}
	return allow()
}
