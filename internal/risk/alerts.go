package risk

import "sync"

// alertKey identifies the dedup/cooldown bucket:
// (category, level, symbol?, account?).
type alertKey struct {
	category string
	level    Level
	symbol   string
	account  string
}

// AlertFanOut applies the cooldown/deduplication filter: repeated
// triggers within a level's cooldown window are
// suppressed from delivery but still counted, and a burst of suppressed
// triggers within the escalation window bumps the event's level one
// step. Escalation and cooldown are deliberately independent counters
// over the same key (see DESIGN.md's Open Question resolution) so a
// cooldown-suppressed duplicate still escalates.
type AlertFanOut struct {
	mu sync.Mutex

	// CooldownMsByLevel controls how long a given level suppresses
	// repeat deliveries for the same key (info: long, emergency: short,
	// repeat deliveries).
	CooldownMsByLevel map[Level]int64
	EscalationWindowMs int64
	EscalationTriggerCount int // triggers within the window before bumping level

	lastDeliveredMs map[alertKey]int64
	triggerTimes    map[alertKey][]int64
}

// NewAlertFanOut constructs a fan-out with the usual info-long/
// emergency-short cooldown shape as sensible defaults.
func NewAlertFanOut() *AlertFanOut {
	return &AlertFanOut{
		CooldownMsByLevel: map[Level]int64{
			LevelInfo:      10 * 60_000,
			LevelWarn:      2 * 60_000,
			LevelDanger:    60_000,
			LevelCritical:  15_000,
			LevelEmergency: 0, // never suppressed
		},
		EscalationWindowMs:     5 * 60_000,
		EscalationTriggerCount: 3,
		lastDeliveredMs:        make(map[alertKey]int64),
		triggerTimes:           make(map[alertKey][]int64),
	}
}

// Submit records one trigger of ev at nowMs and returns the event to
// actually deliver (with its level possibly escalated) and whether
// delivery should proceed at all (false if cooldown-suppressed).
func (a *AlertFanOut) Submit(ev Event, nowMs int64) (deliver Event, shouldDeliver bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := alertKey{category: ev.Module + ":" + ev.Kind, level: ev.Level, symbol: ev.Symbol, account: ev.Account}

	times := append(a.triggerTimes[key], nowMs)
	cutoff := nowMs - a.EscalationWindowMs
	filtered := times[:0]
	for _, t := range times {
		if t >= cutoff {
			filtered = append(filtered, t)
		}
	}
	a.triggerTimes[key] = filtered

	effectiveLevel := ev.Level
	if len(filtered) >= a.EscalationTriggerCount {
		effectiveLevel = ev.Level.step()
	}

	escKey := key
	escKey.level = effectiveLevel
	last, seen := a.lastDeliveredMs[escKey]
	cooldown := a.CooldownMsByLevel[effectiveLevel]
	if seen && nowMs-last < cooldown {
		return ev, false
	}

	a.lastDeliveredMs[escKey] = nowMs
	ev.Level = effectiveLevel
	return ev, true
}
