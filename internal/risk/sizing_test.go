package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

func TestSizeComputesRiskPerTradeFormula(t *testing.T) {
	acct := Account{Equity: money.FromFloat(10_000)}
	sig := strategy.Signal{StopLossPx: money.FromFloat(90)}
	p := SizingParams{RiskPerTrade: 0.01, EntryPx: money.FromFloat(100)}

	// risk_budget = 10_000*0.01 = 100; stop_distance = |100-90| = 10
	// qty = 100/10 = 10
	qty := Size(sig, acct, p)
	assert.True(t, qty.Equal(money.FromFloat(10)), "got %s", qty)
}

func TestSizeReturnsZeroWithNoEntryPx(t *testing.T) {
	acct := Account{Equity: money.FromFloat(10_000)}
	sig := strategy.Signal{StopLossPx: money.FromFloat(90)}
	qty := Size(sig, acct, SizingParams{RiskPerTrade: 0.01})
	assert.True(t, qty.IsZero())
}

func TestSizeReturnsZeroWithZeroStopDistance(t *testing.T) {
	acct := Account{Equity: money.FromFloat(10_000)}
	sig := strategy.Signal{StopLossPx: money.FromFloat(100)}
	qty := Size(sig, acct, SizingParams{RiskPerTrade: 0.01, EntryPx: money.FromFloat(100)})
	assert.True(t, qty.IsZero())
}

func TestSizeClampsToPositionPercent(t *testing.T) {
	acct := Account{Equity: money.FromFloat(10_000)}
	sig := strategy.Signal{StopLossPx: money.FromFloat(1)}
	// risk-per-trade formula would give a huge qty given the tiny stop
	// distance; position_percent must clamp it.
	p := SizingParams{RiskPerTrade: 0.5, PositionPercent: 0.1, EntryPx: money.FromFloat(100)}
	qty := Size(sig, acct, p)
	// cap = (10_000*0.1)/100 = 10
	assert.True(t, qty.Equal(money.FromFloat(10)), "got %s", qty)
}

func TestSizeClampsToConcentrationMax(t *testing.T) {
	acct := Account{Equity: money.FromFloat(10_000)}
	sig := strategy.Signal{StopLossPx: money.FromFloat(1)}
	p := SizingParams{RiskPerTrade: 0.5, ConcentrationMax: 0.05, EntryPx: money.FromFloat(100)}
	qty := Size(sig, acct, p)
	// cap = (10_000*0.05)/100 = 5
	assert.True(t, qty.Equal(money.FromFloat(5)), "got %s", qty)
}

func TestSizeTakesMinimumOfComputedAndSignalQty(t *testing.T) {
	acct := Account{Equity: money.FromFloat(10_000)}
	sig := strategy.Signal{StopLossPx: money.FromFloat(90), Qty: money.FromFloat(2)}
	p := SizingParams{RiskPerTrade: 0.01, EntryPx: money.FromFloat(100)}
	// computed qty would be 10, but sig already carries qty=2
	qty := Size(sig, acct, p)
	assert.True(t, qty.Equal(money.FromFloat(2)), "got %s", qty)
}
