package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

func baseSnapshot() Snapshot {
	return Snapshot{
		Account: Account{
			AccountID:  "acct-1",
			Venue:      "binance",
			Equity:     money.FromFloat(10_000),
			FreeMargin: money.FromFloat(8_000),
			UsedMargin: money.FromFloat(2_000),
		},
		CircuitLevel:   LevelInfo,
		AllowedSymbols: map[string]bool{"BTC-USDT": true},
		AllowedVenues:  map[string]bool{"binance": true},
	}
}

func baseSignal() strategy.Signal {
	return strategy.Signal{
		Symbol:   "BTC-USDT",
		Side:     strategy.Buy,
		Intent:   strategy.IntentOpen,
		Qty:      money.FromFloat(1),
		Notional: money.FromFloat(1_000),
		Urgency:  0.2,
	}
}

func TestGateChainAllowsCleanSignal(t *testing.T) {
	allowed, reasons, warnings := GateChain(baseSignal(), baseSnapshot())
	assert.True(t, allowed)
	assert.Empty(t, reasons)
	assert.Empty(t, warnings)
}

func TestGateCircuitBreakerDeniesEmergency(t *testing.T) {
	snap := baseSnapshot()
	snap.CircuitLevel = LevelEmergency
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "EMERGENCY")
}

func TestGateCircuitBreakerAllowsCloseAtDanger(t *testing.T) {
	snap := baseSnapshot()
	snap.CircuitLevel = LevelDanger
	sig := baseSignal()
	sig.Intent = strategy.IntentClose
	allowed, _, _ := GateChain(sig, snap)
	assert.True(t, allowed)
}

func TestGateCircuitBreakerDeniesOpenAtDanger(t *testing.T) {
	snap := baseSnapshot()
	snap.CircuitLevel = LevelDanger
	allowed, _, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
}

func TestGateTradingPausedGlobal(t *testing.T) {
	snap := baseSnapshot()
	snap.TradingPaused = true
	allowed, _, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
}

func TestGateTradingPausedPerAccount(t *testing.T) {
	snap := baseSnapshot()
	snap.AccountPaused = map[string]bool{"acct-1": true}
	allowed, _, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
}

func TestGateAllowListDeniesUnlistedSymbol(t *testing.T) {
	snap := baseSnapshot()
	sig := baseSignal()
	sig.Symbol = "ETH-USDT"
	allowed, reasons, _ := GateChain(sig, snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "not in allow-list")
}

func TestGateAllowListDeniesUnlistedVenue(t *testing.T) {
	snap := baseSnapshot()
	snap.AllowedVenues = map[string]bool{"bybit": true}
	allowed, _, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
}

func TestGatePositionLimitsPerSymbolCap(t *testing.T) {
	snap := baseSnapshot()
	snap.PerSymbolCapQty = money.FromFloat(0.5)
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "per-symbol")
}

func TestGatePositionLimitsPerAccountCap(t *testing.T) {
	snap := baseSnapshot()
	snap.PerAccountCapNotl = money.FromFloat(500)
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "per-account")
}

func TestGatePositionLimitsSkippedOnClose(t *testing.T) {
	snap := baseSnapshot()
	snap.PerSymbolCapQty = money.FromFloat(0.1)
	sig := baseSignal()
	sig.Intent = strategy.IntentClose
	allowed, _, _ := GateChain(sig, snap)
	assert.True(t, allowed)
}

func TestGateLeverageCapDenies(t *testing.T) {
	snap := baseSnapshot()
	snap.MaxLeverage = money.FromFloat(0.05)
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "leverage")
}

func TestGateConcentrationDenies(t *testing.T) {
	snap := baseSnapshot()
	snap.ConcentrationMax = 0.01
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "concentration")
}

func TestGateMarginHeadroomDeniesBelowCritical(t *testing.T) {
	snap := baseSnapshot()
	snap.MarginCriticalRate = money.FromFloat(0.9)
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "critical")
}

func TestGateMarginHeadroomWarnsBelowWarnThreshold(t *testing.T) {
	snap := baseSnapshot()
	snap.MarginWarnRate = money.FromFloat(0.9)
	allowed, _, warnings := GateChain(baseSignal(), snap)
	assert.True(t, allowed)
	assert.NotEmpty(t, warnings)
}

func TestGateDailyLossDenies(t *testing.T) {
	snap := baseSnapshot()
	snap.DailyLossLimit = money.FromFloat(100)
	snap.DailyPnL = money.FromFloat(-150)
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "daily loss")
}

func TestGateLiquiditySlippageDenies(t *testing.T) {
	snap := baseSnapshot()
	snap.EstimatedSlippage = 0.05
	snap.MaxSlippageByUrgency = func(u float64) float64 { return 0.01 }
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "slippage")
}

func TestGateCooldownDeniesRecentFailure(t *testing.T) {
	snap := baseSnapshot()
	key := SymbolSide{Symbol: "BTC-USDT", Side: strategy.Buy}
	snap.LastFailureTsMs = map[SymbolSide]int64{key: 1_000}
	snap.CooldownMs = 60_000
	snap.NowMs = 10_000
	allowed, reasons, _ := GateChain(baseSignal(), snap)
	assert.False(t, allowed)
	assert.Contains(t, reasons[0], "cooldown")
}

func TestGateCooldownAllowsAfterWindowElapses(t *testing.T) {
	snap := baseSnapshot()
	key := SymbolSide{Symbol: "BTC-USDT", Side: strategy.Buy}
	snap.LastFailureTsMs = map[SymbolSide]int64{key: 1_000}
	snap.CooldownMs = 60_000
	snap.NowMs = 100_000
	allowed, _, _ := GateChain(baseSignal(), snap)
	assert.True(t, allowed)
}

func TestGateCooldownIgnoresDifferentSide(t *testing.T) {
	snap := baseSnapshot()
	key := SymbolSide{Symbol: "BTC-USDT", Side: strategy.Sell}
	snap.LastFailureTsMs = map[SymbolSide]int64{key: 1_000}
	snap.CooldownMs = 60_000
	snap.NowMs = 10_000
	allowed, _, _ := GateChain(baseSignal(), snap)
	assert.True(t, allowed)
}

func TestGateChainFirstDenialIsTerminal(t *testing.T) {
	snap := baseSnapshot()
	snap.CircuitLevel = LevelEmergency
	snap.TradingPaused = true // would also deny, but circuit_breaker runs first
	_, reasons, _ := GateChain(baseSignal(), snap)
	assert.Contains(t, reasons[0], "EMERGENCY")
}
