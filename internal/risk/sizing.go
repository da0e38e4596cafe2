package risk

import (
	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// SizingParams carries the inputs the risk-per-trade sizing formula needs
// beyond the Signal and Account snapshot already on hand.
type SizingParams struct {
	RiskPerTrade     float64 // fraction of equity risked per trade
	PositionPercent  float64 // clamp: qty*entry_px <= PositionPercent*equity
	ConcentrationMax float64 // fraction of equity, same cap as gateConcentration
	EntryPx          money.Decimal
}

// Size computes the final order quantity:
//
//	qty = (equity * risk_per_trade) / |entry_px - stop_loss_px|
//
// then clamps by position_percent*equity/entry_px and by the
// concentration cap; if sig already carries a qty, the minimum of the
// computed and carried qty is taken.
func Size(sig strategy.Signal, acct Account, p SizingParams) money.Decimal {
	if p.EntryPx.IsZero() {
		return money.Zero
	}

	stopDistance := money.Abs(p.EntryPx.Sub(sig.StopLossPx))
	var riskQty money.Decimal
	if stopDistance.IsZero() {
		riskQty = money.Zero
	} else {
		riskBudget := acct.Equity.Mul(money.FromFloat(p.RiskPerTrade))
		riskQty = riskBudget.Div(stopDistance)
	}

	positionCapQty := money.Zero
	if p.PositionPercent > 0 {
		positionCapNotional := acct.Equity.Mul(money.FromFloat(p.PositionPercent))
		positionCapQty = positionCapNotional.Div(p.EntryPx)
	}

	concentrationCapQty := money.Zero
	if p.ConcentrationMax > 0 {
		concentrationCapNotional := acct.Equity.Mul(money.FromFloat(p.ConcentrationMax))
		concentrationCapQty = concentrationCapNotional.Div(p.EntryPx)
	}

	qty := riskQty
	if !positionCapQty.IsZero() {
		qty = money.Min(qty, positionCapQty)
	}
	if !concentrationCapQty.IsZero() {
		qty = money.Min(qty, concentrationCapQty)
	}

	if !sig.Qty.IsZero() {
		qty = money.Min(qty, sig.Qty)
	}

	return qty
}
