package engine

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quantforge/internal/audit"
	"quantforge/internal/bar"
	"quantforge/internal/config"
	"quantforge/internal/eventbus"
	"quantforge/internal/money"
	"quantforge/internal/risk"
	"quantforge/internal/store"
	"quantforge/internal/strategy"
)

// echoStrategy emits one open-buy signal the first time it sees a bar,
// then stays quiet; enough to exercise the feed/dispatch path without a
// live connector.
type echoStrategy struct {
	fired bool
}

func (e *echoStrategy) Name() string { return "echo" }

func (e *echoStrategy) Initialize(cfg strategy.Config) error { return nil }

func (e *echoStrategy) OnBar(b bar.Bar) ([]strategy.Signal, error) {
	if e.fired {
		return nil, nil
	}
	e.fired = true
	return []strategy.Signal{{
		ID:         "sig-1",
		Symbol:     b.Symbol,
		Side:       strategy.Buy,
		Intent:     strategy.IntentOpen,
		Type:       strategy.TypeMarket,
		LimitPx:    money.FromFloat(b.Close),
		StopLossPx: money.FromFloat(b.Close - 1),
		TsMs:       b.TsMs,
	}}, nil
}

func (e *echoStrategy) StateSnapshot() ([]byte, error) { return nil, nil }

func testOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()
	bus := eventbus.New()
	registry := strategy.NewRegistry()
	registry.Register("echo", func() strategy.Strategy { return &echoStrategy{} })

	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	sink, err := audit.NewSink(t.TempDir(), []byte("integrity-key"), audit.SegmentConfig{RetentionDays: 7})
	require.NoError(t, err)
	t.Cleanup(func() { sink.Close() })

	cfg := &config.EngineConfig{
		MonitorTickInterval:   20 * time.Millisecond,
		ShutdownGraceDeadline: time.Second,
	}

	return New(cfg, bus, registry, st, sink, nil)
}

func TestOrchestratorLifecycle(t *testing.T) {
	o := testOrchestrator(t)
	assert.Equal(t, StateStopped, o.State())

	require.NoError(t, o.Start())
	assert.Equal(t, StateRunning, o.State())

	require.NoError(t, o.Start()) // idempotent

	require.NoError(t, o.Stop())
	assert.Equal(t, StateStopped, o.State())

	require.NoError(t, o.Stop()) // idempotent
}

func TestRunStopStrategy(t *testing.T) {
	o := testOrchestrator(t)
	require.NoError(t, o.Start())
	defer o.Stop()

	cfg := strategy.Config{Symbol: "BTC-USDT", Timeframe: bar.Timeframe("1m")}
	require.NoError(t, o.RunStrategy("trend-1", "echo", cfg))

	status := o.Status()
	assert.Contains(t, status.Strategies, "trend-1")

	err := o.RunStrategy("trend-1", "echo", cfg)
	assert.Error(t, err)

	require.NoError(t, o.StopStrategy("trend-1"))
	status = o.Status()
	assert.NotContains(t, status.Strategies, "trend-1")

	err = o.StopStrategy("trend-1")
	assert.Error(t, err)
}

func TestDispatchSignalWithNoAccountIsDeniedSafely(t *testing.T) {
	o := testOrchestrator(t)
	require.NoError(t, o.Start())
	defer o.Stop()

	cfg := strategy.Config{Symbol: "ETH-USDT", Timeframe: bar.Timeframe("1m")}
	require.NoError(t, o.RunStrategy("echo-1", "echo", cfg))

	o.bus.Publish(eventbus.Event{
		Name:         eventbus.Bar,
		PartitionKey: "ETH-USDT",
		Payload: bar.Bar{
			Symbol: "ETH-USDT", Timeframe: bar.Timeframe("1m"), TsMs: 1,
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 10,
		},
	})

	// Give the feed goroutine a moment to process; a zero-equity account
	// sizes the signal down to zero and the dispatch path returns before
	// ever reaching the (nil) execution manager, rather than panicking.
	time.Sleep(50 * time.Millisecond)
}

func TestUpdateAccountFeedsMonitorTick(t *testing.T) {
	o := testOrchestrator(t)
	o.UpdateAccount(risk.Account{AccountID: "acct-1", Venue: "binance", Equity: money.NewFromInt(10000)})

	require.NoError(t, o.Start())
	time.Sleep(60 * time.Millisecond)
	require.NoError(t, o.Stop())

	positions, err := o.QueryAccount("acct-1")
	require.NoError(t, err)
	assert.Empty(t, positions)
}
