package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testEvent(level Level) Event {
	return Event{Module: "drawdown_monitor", Kind: "pause_trading", Level: level, Account: "acct-1", Symbol: "BTC-USDT"}
}

func TestAlertFanOutDeliversFirstTrigger(t *testing.T) {
	a := NewAlertFanOut()
	_, ok := a.Submit(testEvent(LevelWarn), 0)
	assert.True(t, ok)
}

func TestAlertFanOutSuppressesWithinCooldown(t *testing.T) {
	a := NewAlertFanOut()
	a.Submit(testEvent(LevelWarn), 0)
	_, ok := a.Submit(testEvent(LevelWarn), 1000) // within the 2-minute warn cooldown
	assert.False(t, ok)
}

func TestAlertFanOutDeliversAgainAfterCooldownElapses(t *testing.T) {
	a := NewAlertFanOut()
	a.Submit(testEvent(LevelWarn), 0)
	_, ok := a.Submit(testEvent(LevelWarn), 3*60_000)
	assert.True(t, ok)
}

func TestAlertFanOutEmergencyNeverSuppressed(t *testing.T) {
	a := NewAlertFanOut()
	a.Submit(testEvent(LevelEmergency), 0)
	_, ok := a.Submit(testEvent(LevelEmergency), 1)
	assert.True(t, ok)
}

func TestAlertFanOutEscalatesAfterTriggerBurst(t *testing.T) {
	a := NewAlertFanOut()
	// cooldown-suppressed duplicates still count toward escalation.
	a.Submit(testEvent(LevelWarn), 0)
	a.Submit(testEvent(LevelWarn), 1)
	deliver, ok := a.Submit(testEvent(LevelWarn), 2)
	assert.True(t, ok, "escalated event delivers independently of the warn-level cooldown")
	assert.Equal(t, LevelDanger, deliver.Level, "third trigger within the escalation window steps the level up")
}

func TestAlertFanOutEscalationWindowResets(t *testing.T) {
	a := NewAlertFanOut()
	a.Submit(testEvent(LevelWarn), 0)
	a.Submit(testEvent(LevelWarn), 1)
	// gap larger than EscalationWindowMs drops the earlier triggers from the window.
	deliver, ok := a.Submit(testEvent(LevelWarn), 10*60_000)
	assert.True(t, ok)
	assert.Equal(t, LevelWarn, deliver.Level)
}

func TestAlertFanOutCooldownAndEscalationAreIndependentKeys(t *testing.T) {
	a := NewAlertFanOut()
	a.Submit(testEvent(LevelWarn), 0)
	// a different symbol's cooldown/escalation state must not be affected.
	ev := testEvent(LevelWarn)
	ev.Symbol = "ETH-USDT"
	_, ok := a.Submit(ev, 500)
	assert.True(t, ok)
}
