package risk

import (
	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// SafekeepingSignal is the risk pipeline's own TP/SL enforcement output,
// independent of any strategy callback — it fires even if every
// strategy instance managing a symbol has stopped.
type SafekeepingSignal struct {
	Symbol string
	Side   strategy.Side
	Intent strategy.Intent
	Reason string
}

// CheckSafekeeping walks every position and emits a close signal
// for any whose stop-loss or take-profit has been crossed by the last
// traded price. Grounded on decision.HandlePositionSafekeeping
// (referenced throughout decision/localfunc.go's
// GetLocalFunctionDecision but not present in the retrieved pack) —
// reimplemented here as a risk-pipeline monitor tick rather than a
// decision-cycle step, since in this engine TP/SL enforcement must keep
// running even when no strategy is actively emitting new signals.
func CheckSafekeeping(positions []Position, lastPrice map[string]money.Decimal, stopLoss, takeProfit map[string]money.Decimal) []SafekeepingSignal {
	var out []SafekeepingSignal
	for _, p := range positions {
		if p.Qty.IsZero() {
			continue
		}
		last, ok := lastPrice[p.Symbol]
		if !ok {
			continue
		}
		long := p.Qty.IsPositive()

		if sl, ok := stopLoss[p.Symbol]; ok && !sl.IsZero() {
			if (long && last.LessThanOrEqual(sl)) || (!long && last.GreaterThanOrEqual(sl)) {
				out = append(out, closeSignal(p, "stop_loss_crossed"))
				continue
			}
		}
		if tp, ok := takeProfit[p.Symbol]; ok && !tp.IsZero() {
			if (long && last.GreaterThanOrEqual(tp)) || (!long && last.LessThanOrEqual(tp)) {
				out = append(out, closeSignal(p, "take_profit_crossed"))
			}
		}
	}
	return out
}

func closeSignal(p Position, reason string) SafekeepingSignal {
	side := strategy.Sell
	if p.Qty.IsNegative() {
		side = strategy.Buy
	}
	return SafekeepingSignal{Symbol: p.Symbol, Side: side, Intent: strategy.IntentClose, Reason: reason}
}
