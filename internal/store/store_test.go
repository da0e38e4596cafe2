package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantforge/internal/execution"
	"quantforge/internal/money"
	"quantforge/internal/risk"
	"quantforge/internal/strategy"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type testStrategyConfig struct {
	Symbol string `json:"symbol"`
	Period int    `json:"period"`
}

func TestStrategyConfigRoundTrip(t *testing.T) {
	s := openTestStore(t)
	cfg := testStrategyConfig{Symbol: "BTC-USDT", Period: 14}
	require.NoError(t, s.UpsertStrategyConfig("trend-follow", cfg, true))

	var loaded testStrategyConfig
	found, err := s.LoadStrategyConfig("trend-follow", &loaded)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, cfg, loaded)

	active, err := s.ListActiveStrategies()
	require.NoError(t, err)
	assert.Equal(t, []string{"trend-follow"}, active)
}

func TestPositionUpsertIsIdempotentOnKey(t *testing.T) {
	s := openTestStore(t)
	p := risk.Position{
		Account: "acct-1", Venue: "binance", Symbol: "BTC-USDT",
		Qty: money.FromFloat(1.5), AvgEntryPx: money.FromFloat(50000),
		RealizedPnL: money.Zero, UnrealizedPnL: money.Zero, MarginUsed: money.Zero,
		LiqPx: money.Zero, UpdatedTsMs: 1000,
	}
	require.NoError(t, s.UpsertPosition(p))
	p.Qty = money.FromFloat(2.0)
	p.UpdatedTsMs = 2000
	require.NoError(t, s.UpsertPosition(p))

	positions, err := s.Positions("acct-1")
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.True(t, positions[0].Qty.Equal(money.FromFloat(2.0)))
	assert.Equal(t, int64(2000), positions[0].UpdatedTsMs)
}

func TestOrderAndFillLifecycle(t *testing.T) {
	s := openTestStore(t)
	o := execution.Order{
		ID: "ord-1", Symbol: "ETH-USDT", Venue: "bybit", Side: strategy.Buy, Type: strategy.TypeMarket,
		Qty: money.FromFloat(10), FilledQty: money.Zero, AvgFillPx: money.Zero,
		Status: execution.StatusNew, CreatedTsMs: 1, UpdatedTsMs: 1,
	}
	require.NoError(t, s.UpsertOrder(o))

	open, err := s.OpenOrders()
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "ord-1", open[0].ID)

	o.FilledQty = money.FromFloat(10)
	o.AvgFillPx = money.FromFloat(3000)
	o.Status = execution.StatusFilled
	o.UpdatedTsMs = 2
	require.NoError(t, s.UpsertOrder(o))
	require.NoError(t, s.RecordFill(execution.Fill{OrderID: "ord-1", Qty: money.FromFloat(10), Px: money.FromFloat(3000), TsMs: 2}))

	open, err = s.OpenOrders()
	require.NoError(t, err)
	assert.Len(t, open, 0)
}

func TestRiskEventHistory(t *testing.T) {
	s := openTestStore(t)
	ev := risk.Event{
		Module: "circuit_breaker", Kind: "drawdown_breach", Level: risk.LevelDanger,
		Symbol: "BTC-USDT", Account: "acct-1", TsMs: 1000,
		Payload: map[string]interface{}{"drawdown_pct": 12.5},
	}
	require.NoError(t, s.RecordRiskEvent(ev))

	events, err := s.RecentRiskEvents(0, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "drawdown_breach", events[0].Kind)
	assert.Equal(t, 12.5, events[0].Payload["drawdown_pct"])
}
