package risk

import (
	"sync"

	"quantforge/internal/money"
)

// CrossAccountAggregator sums equity, exposure, and a VaR-like rollup
// across every managed account and escalates via the same action
// vocabulary applied system-wide when a global threshold is crossed.
// Prior trading-bot code here was single-account (it manages exactly
// one AutoTrader/account); this is new code grounded on its
// AccountInfo/PositionInfo shapes, generalized into a
// map[accountID]Account so one process can risk-manage many accounts
// at once.
type CrossAccountAggregator struct {
	mu       sync.Mutex
	accounts map[string]Account

	GlobalEquityFloor   money.Decimal // force_close everything if total equity drops below this
	GlobalExposureCap   money.Decimal // pause_trading system-wide above this aggregate notional
}

// NewCrossAccountAggregator constructs an aggregator with the given
// global thresholds (zero value disables a threshold).
func NewCrossAccountAggregator(equityFloor, exposureCap money.Decimal) *CrossAccountAggregator {
	return &CrossAccountAggregator{
		accounts:          make(map[string]Account),
		GlobalEquityFloor: equityFloor,
		GlobalExposureCap: exposureCap,
	}
}

// Update refreshes one account's snapshot.
func (c *CrossAccountAggregator) Update(acct Account) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accounts[acct.AccountID] = acct
}

// Rollup is the aggregated view across every tracked account.
type Rollup struct {
	TotalEquity   money.Decimal
	TotalExposure money.Decimal
	AccountCount  int
}

// Compute returns the current cross-account rollup.
func (c *CrossAccountAggregator) Compute() Rollup {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := Rollup{TotalEquity: money.Zero, TotalExposure: money.Zero}
	for _, acct := range c.accounts {
		r.TotalEquity = r.TotalEquity.Add(acct.Equity)
		for _, p := range acct.Positions {
			r.TotalExposure = r.TotalExposure.Add(money.Abs(p.Qty).Mul(p.AvgEntryPx))
		}
		r.AccountCount++
	}
	return r
}

// Check evaluates the rollup against global thresholds and returns the
// system-wide action to take, if any.
func (c *CrossAccountAggregator) Check() (action Action, level Level, fired bool) {
	r := c.Compute()
	if !c.GlobalEquityFloor.IsZero() && r.TotalEquity.LessThan(c.GlobalEquityFloor) {
		return ActionForceClose, LevelEmergency, true
	}
	if !c.GlobalExposureCap.IsZero() && r.TotalExposure.GreaterThan(c.GlobalExposureCap) {
		return ActionPauseTrading, LevelCritical, true
	}
	return "", "", false
}
