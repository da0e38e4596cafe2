package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"quantforge/internal/money"
)

func TestCircuitBreakerArmEscalatesOnly(t *testing.T) {
	cb := NewCircuitBreaker(1000)
	cb.Arm(LevelDanger, 0)
	assert.Equal(t, LevelDanger, cb.Level())

	cb.Arm(LevelWarn, 100) // lower than current level, must not de-escalate
	assert.Equal(t, LevelDanger, cb.Level())

	cb.Arm(LevelEmergency, 200)
	assert.Equal(t, LevelEmergency, cb.Level())
}

func TestCircuitBreakerCooldownDeescalatesOneStepAtATime(t *testing.T) {
	cb := NewCircuitBreaker(1000)
	cb.Arm(LevelCritical, 0)

	cb.Cooldown(500, true) // cooldown hasn't elapsed yet
	assert.Equal(t, LevelCritical, cb.Level())

	cb.Cooldown(1500, true)
	assert.Equal(t, LevelDanger, cb.Level())

	cb.Cooldown(2500, true)
	assert.Equal(t, LevelWarn, cb.Level())
}

func TestCircuitBreakerCooldownRequiresConditionsNormal(t *testing.T) {
	cb := NewCircuitBreaker(1000)
	cb.Arm(LevelDanger, 0)
	cb.Cooldown(5000, false)
	assert.Equal(t, LevelDanger, cb.Level())
}

func TestCircuitBreakerManualHoldSuppressesCooldown(t *testing.T) {
	cb := NewCircuitBreaker(1000)
	cb.Arm(LevelDanger, 0)
	cb.ManualOverride(LevelDanger, true)
	cb.Cooldown(10_000, true)
	assert.Equal(t, LevelDanger, cb.Level())
}

func TestDrawdownMonitorEscalatesByDepth(t *testing.T) {
	d := NewDrawdownMonitor(0.05, 0.10, 0.20)
	d.Check(money.FromFloat(10_000)) // seeds high-water mark

	_, level, pct, fired := d.Check(money.FromFloat(9_400)) // 6% drawdown
	assert.True(t, fired)
	assert.Equal(t, LevelDanger, level)
	assert.InDelta(t, 0.06, pct, 0.001)

	action, level, _, fired := d.Check(money.FromFloat(8_900)) // 11% drawdown
	assert.True(t, fired)
	assert.Equal(t, LevelCritical, level)
	assert.Equal(t, ActionPauseTrading, action)

	action, level, _, fired = d.Check(money.FromFloat(7_900)) // 21% drawdown
	assert.True(t, fired)
	assert.Equal(t, LevelEmergency, level)
	assert.Equal(t, ActionForceClose, action)
}

func TestDrawdownMonitorNoFireBelowWarnThreshold(t *testing.T) {
	d := NewDrawdownMonitor(0.05, 0.10, 0.20)
	d.Check(money.FromFloat(10_000))
	_, _, _, fired := d.Check(money.FromFloat(9_800)) // 2% drawdown
	assert.False(t, fired)
}

func TestMarginMonitorFiresBelowWarnRate(t *testing.T) {
	m := MarginMonitor{WarnRate: money.FromFloat(0.2), DangerRate: money.FromFloat(0.1), CriticalRate: money.FromFloat(0.05)}
	acct := Account{Equity: money.FromFloat(1000), FreeMargin: money.FromFloat(150)} // rate = 0.15
	action, level, fired := m.Check(acct)
	assert.True(t, fired)
	assert.Equal(t, LevelDanger, level)
	assert.Equal(t, ActionReduceNewExposure, action)
}

func TestMarginMonitorNoFireAboveWarnRate(t *testing.T) {
	m := MarginMonitor{WarnRate: money.FromFloat(0.2), DangerRate: money.FromFloat(0.1), CriticalRate: money.FromFloat(0.05)}
	acct := Account{Equity: money.FromFloat(1000), FreeMargin: money.FromFloat(500)}
	_, _, fired := m.Check(acct)
	assert.False(t, fired)
}

func TestConcentrationMonitorFlagsOverweightSymbol(t *testing.T) {
	c := ConcentrationMonitor{Max: 0.25}
	acct := Account{
		Equity: money.FromFloat(1000),
		Positions: []Position{
			{Symbol: "BTC-USDT", Qty: money.FromFloat(10), AvgEntryPx: money.FromFloat(50)},
		},
	}
	symbol, fired := c.Check(acct)
	assert.True(t, fired)
	assert.Equal(t, "BTC-USDT", symbol)
}

func TestConcentrationMonitorNoFireWithinCap(t *testing.T) {
	c := ConcentrationMonitor{Max: 0.9}
	acct := Account{
		Equity: money.FromFloat(1000),
		Positions: []Position{
			{Symbol: "BTC-USDT", Qty: money.FromFloat(1), AvgEntryPx: money.FromFloat(50)},
		},
	}
	_, fired := c.Check(acct)
	assert.False(t, fired)
}

func TestLiquidationDistanceMonitorFiresNearLiqPx(t *testing.T) {
	l := LiquidationDistanceMonitor{CriticalPct: 0.05}
	pos := Position{HasLiqPx: true, LiqPx: money.FromFloat(95)}
	assert.True(t, l.Check(pos, money.FromFloat(98))) // 3% away
}

func TestLiquidationDistanceMonitorNoFireWithoutLiqPx(t *testing.T) {
	l := LiquidationDistanceMonitor{CriticalPct: 0.05}
	pos := Position{HasLiqPx: false}
	assert.False(t, l.Check(pos, money.FromFloat(98)))
}

func TestBlackSwanDetectorPriceVelocity(t *testing.T) {
	b := BlackSwanDetector{PriceVelocityK: 5}
	assert.True(t, b.CheckPriceVelocity(100, 10))  // 100 > 5*10
	assert.False(t, b.CheckPriceVelocity(10, 10))  // 10 <= 5*10
	assert.False(t, b.CheckPriceVelocity(100, 0))  // zero ATR never fires
}

func TestBlackSwanDetectorDepthAndSpread(t *testing.T) {
	b := BlackSwanDetector{DepthCollapsePct: 0.5, CrossVenueSpreadPct: 0.02}
	assert.True(t, b.CheckDepthCollapse(0.6))
	assert.False(t, b.CheckDepthCollapse(0.4))
	assert.True(t, b.CheckCrossVenueSpread(0.05))
	assert.False(t, b.CheckCrossVenueSpread(0.01))
}
