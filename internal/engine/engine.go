// Package engine wires every other internal package into the running
// trading engine: strategy instances subscribe to the event spine,
// signals flow through the risk pipeline and execution layer, and a
// periodic monitor tick drives the circuit breaker, drawdown, and
// cross-account checks. Lifecycle follows
// trader/auto_trader.go's Run/Stop shape (a stop channel plus
// sync.WaitGroup guarding a ticker-driven loop), generalized from one
// trading-cycle goroutine into one goroutine per strategy instance
// plus a shared monitor goroutine.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quantforge/internal/audit"
	"quantforge/internal/bar"
	"quantforge/internal/config"
	"quantforge/internal/eventbus"
	"quantforge/internal/exchange"
	"quantforge/internal/execution"
	"quantforge/internal/indicator"
	"quantforge/internal/logging"
	"quantforge/internal/marketdata"
	"quantforge/internal/metrics"
	"quantforge/internal/money"
	"quantforge/internal/risk"
	"quantforge/internal/store"
	"quantforge/internal/strategy"
)

// State is the orchestrator's own lifecycle, distinct from a strategy
// Instance's state machine.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// runningStrategy bundles a live strategy instance with the
// subscription and goroutine feeding it bars.
type runningStrategy struct {
	inst   *strategy.Instance
	sub    *eventbus.Subscription
	cancel chan struct{}
}

// Orchestrator owns every wired component and the engine's own
// lifecycle state machine.
type Orchestrator struct {
	cfg        *config.EngineConfig
	bus        *eventbus.Bus
	registry   *strategy.Registry
	auditSink  *audit.Sink
	st         *store.Store
	connectors map[string]exchange.Connector // keyed by venue name
	managers   map[string]*execution.Manager // keyed by venue name
	planner    *execution.Planner
	aggregator *risk.CrossAccountAggregator
	alerts     *risk.AlertFanOut

	md           *marketdata.Engine
	mdCtx        context.Context
	mdCancel     context.CancelFunc
	marginMon    risk.MarginMonitor
	concMon      risk.ConcentrationMonitor
	liqMon       risk.LiquidationDistanceMonitor
	blackSwan    risk.BlackSwanDetector

	mu             sync.RWMutex
	state          State
	startedAt      time.Time
	strategies     map[string]*runningStrategy
	breakers       map[string]*risk.CircuitBreaker // keyed by account
	drawdowns      map[string]*risk.DrawdownMonitor
	accounts       map[string]risk.Account
	symbolTf       map[string]bar.Timeframe // symbols currently fed by a running strategy
	fedSymbols     map[string]bool          // symbols with a market-data feed already spawned
	pausedGlobal   bool
	pausedAccounts map[string]bool
	failures       map[risk.SymbolSide]int64 // last order-failure ts, for the cooldown gate
	stopLoss       map[string]money.Decimal  // per-symbol, from the most recent signal carrying one
	takeProfit     map[string]money.Decimal

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New constructs an Orchestrator in the stopped state. Connectors must
// already be authenticated; managers are built lazily per venue the
// first time a signal targets it.
func New(cfg *config.EngineConfig, bus *eventbus.Bus, registry *strategy.Registry, st *store.Store, auditSink *audit.Sink, connectors map[string]exchange.Connector) *Orchestrator {
	mdCtx, mdCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		cfg:        cfg,
		bus:        bus,
		registry:   registry,
		auditSink:  auditSink,
		st:         st,
		connectors: connectors,
		managers:   make(map[string]*execution.Manager),
		planner:    execution.NewPlanner(nil),
		aggregator: risk.NewCrossAccountAggregator(money.FromFloat(cfg.GlobalEquityFloor), money.FromFloat(cfg.GlobalExposureCap)),
		alerts:     risk.NewAlertFanOut(),
		md:         marketdata.New(bus, 2000),
		mdCtx:      mdCtx,
		mdCancel:   mdCancel,
		marginMon:  risk.MarginMonitor{WarnRate: money.FromFloat(cfg.MarginWarnRate), DangerRate: money.FromFloat((cfg.MarginWarnRate + cfg.MarginCriticalRate) / 2), CriticalRate: money.FromFloat(cfg.MarginCriticalRate)},
		concMon:    risk.ConcentrationMonitor{Max: cfg.ConcentrationMaxPct},
		liqMon:     risk.LiquidationDistanceMonitor{CriticalPct: 0.02},
		blackSwan:  risk.BlackSwanDetector{PriceVelocityK: 5, DepthCollapsePct: 0.5, CrossVenueSpreadPct: 0.02},
		state:      StateStopped,
		strategies: make(map[string]*runningStrategy),
		breakers:   make(map[string]*risk.CircuitBreaker),
		drawdowns:  make(map[string]*risk.DrawdownMonitor),
		accounts:   make(map[string]risk.Account),
		symbolTf:       make(map[string]bar.Timeframe),
		fedSymbols:     make(map[string]bool),
		pausedAccounts: make(map[string]bool),
		failures:       make(map[risk.SymbolSide]int64),
		stopLoss:       make(map[string]money.Decimal),
		takeProfit:     make(map[string]money.Decimal),
	}
}

// UpdateAccount refreshes one account's snapshot, used by the
// connectors' balance/position polling to keep the risk pipeline and
// monitor tick current. Registers a circuit breaker and drawdown
// monitor for the account on first sight.
func (o *Orchestrator) UpdateAccount(acct risk.Account) {
	o.mu.Lock()
	if _, ok := o.breakers[acct.AccountID]; !ok {
		o.breakers[acct.AccountID] = risk.NewCircuitBreaker(5 * 60_000)
	}
	if _, ok := o.drawdowns[acct.AccountID]; !ok {
		o.drawdowns[acct.AccountID] = risk.NewDrawdownMonitor(o.cfg.DrawdownWarnPct, o.cfg.DrawdownDangerPct, o.cfg.DrawdownCriticalPct)
	}
	o.accounts[acct.AccountID] = acct
	o.mu.Unlock()
	o.aggregator.Update(acct)
}

// Start transitions stopped → starting → running and launches the
// periodic monitor task. Calling Start on an already-running
// orchestrator is a no-op, matching AutoTrader.Stop's own idempotence
// on the opposite transition.
func (o *Orchestrator) Start() error {
	o.mu.Lock()
	if o.state == StateRunning || o.state == StateStarting {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStarting
	o.stopCh = make(chan struct{})
	o.startedAt = time.Now()
	o.mu.Unlock()

	logging.Infof("engine: starting")

	o.wg.Add(1)
	go o.monitorLoop()

	o.mu.Lock()
	o.state = StateRunning
	o.mu.Unlock()

	o.bus.Publish(eventbus.Event{Name: eventbus.EngineStarted, Payload: o.startedAt})
	logging.Infof("engine: running")
	return nil
}

// Stop transitions running → stopping → stopped, propagating
// cancellation to every running strategy and waiting up to
// ShutdownGraceDeadline for every task to exit before recording a
// shutdownForced risk event (store and audit sink) and returning anyway.
func (o *Orchestrator) Stop() error {
	o.mu.Lock()
	if o.state == StateStopped || o.state == StateStopping {
		o.mu.Unlock()
		return nil
	}
	o.state = StateStopping
	names := make([]string, 0, len(o.strategies))
	for name := range o.strategies {
		names = append(names, name)
	}
	o.mu.Unlock()

	for _, name := range names {
		_ = o.StopStrategy(name)
	}

	o.mdCancel()
	close(o.stopCh)

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	grace := o.cfg.ShutdownGraceDeadline
	if grace <= 0 {
		grace = 30 * time.Second
	}
	select {
	case <-done:
	case <-time.After(grace):
		o.recordRiskEvent(risk.Event{Module: "engine", Kind: "shutdownForced", Level: risk.LevelCritical, TsMs: nowMs()})
		logging.Warnf("engine: shutdown grace deadline exceeded, forcing stop")
	}

	if o.auditSink != nil {
		_ = o.auditSink.Close()
	}

	o.mu.Lock()
	o.state = StateStopped
	o.mu.Unlock()

	o.bus.Publish(eventbus.Event{Name: eventbus.EngineStopped, Payload: time.Now()})
	logging.Infof("engine: stopped")
	return nil
}

// State returns the orchestrator's current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// RunStrategy creates, initializes, and starts a named strategy type
// under the given config, then spawns its feeding goroutine. name is
// the operator-chosen instance name (distinct from stratType, the
// registered factory key), so the same strategy type can run multiple
// times over different symbols.
func (o *Orchestrator) RunStrategy(name, stratType string, cfg strategy.Config) error {
	o.mu.Lock()
	if _, exists := o.strategies[name]; exists {
		o.mu.Unlock()
		return newErr(KindValidation, "RunStrategy", fmt.Errorf("strategy %q already running", name))
	}
	o.mu.Unlock()

	impl, err := o.registry.Create(stratType)
	if err != nil {
		return newErr(KindValidation, "RunStrategy", err)
	}
	inst := strategy.NewInstance(impl)
	if err := inst.Initialize(cfg); err != nil {
		return newErr(KindValidation, "RunStrategy", err)
	}
	if err := inst.Start(); err != nil {
		return newErr(KindInternal, "RunStrategy", err)
	}

	sub := o.bus.Subscribe(eventbus.DefaultQueueDepth, eventbus.Bar, eventbus.Ticker)
	rs := &runningStrategy{inst: inst, sub: sub, cancel: make(chan struct{})}

	o.mu.Lock()
	o.strategies[name] = rs
	o.symbolTf[cfg.Symbol] = cfg.Timeframe
	o.mu.Unlock()

	o.ensureMarketFeed(cfg.Symbol, cfg.Timeframe)

	o.wg.Add(1)
	go o.feedStrategy(name, cfg.Symbol, rs)

	if cfg.Name == "" {
		cfg.Name = name
	}
	o.bus.Publish(eventbus.Event{Name: eventbus.StrategyStarted, PartitionKey: cfg.Symbol, Payload: name})
	return nil
}

// StopStrategy stops and unregisters a running strategy instance.
func (o *Orchestrator) StopStrategy(name string) error {
	o.mu.Lock()
	rs, ok := o.strategies[name]
	if ok {
		delete(o.strategies, name)
	}
	o.mu.Unlock()
	if !ok {
		return newErr(KindValidation, "StopStrategy", fmt.Errorf("strategy %q not running", name))
	}

	rs.inst.Stop()
	close(rs.cancel)
	rs.sub.Unsubscribe()
	o.bus.Publish(eventbus.Event{Name: eventbus.StrategyStopped, Payload: name})
	return nil
}

// ensureMarketFeed spawns, once per symbol, one polling goroutine per
// connected venue feeding o.md via FetchOHLCV on cfg.ScanInterval plus
// streaming goroutines over StreamTicker/StreamBook, so the bar/ticker
// events RunStrategy subscribes to actually carry live data instead of
// the event spine staying silent for that symbol.
func (o *Orchestrator) ensureMarketFeed(symbol string, tf bar.Timeframe) {
	o.mu.Lock()
	if o.fedSymbols[symbol] {
		o.mu.Unlock()
		return
	}
	o.fedSymbols[symbol] = true
	o.mu.Unlock()

	for venue, conn := range o.connectors {
		o.wg.Add(3)
		go o.pollBars(venue, conn, symbol, tf)
		go o.streamTicker(venue, conn, symbol)
		go o.streamBook(venue, conn, symbol)
	}
}

func (o *Orchestrator) pollBars(venue string, conn exchange.Connector, symbol string, tf bar.Timeframe) {
	defer o.wg.Done()
	interval := o.cfg.ScanInterval
	if interval <= 0 {
		interval = 3 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.mdCtx.Done():
			return
		case <-ticker.C:
			bars, err := conn.FetchOHLCV(o.mdCtx, symbol, tf, 2)
			if err != nil {
				logging.Warnf("marketdata: %s fetch_ohlcv %s failed: %v", venue, symbol, err)
				continue
			}
			for _, b := range bars {
				o.md.FeedBar(b)
			}
		}
	}
}

func (o *Orchestrator) streamTicker(venue string, conn exchange.Connector, symbol string) {
	defer o.wg.Done()
	ch, err := conn.StreamTicker(o.mdCtx, symbol)
	if err != nil {
		logging.Warnf("marketdata: %s stream_ticker %s failed: %v", venue, symbol, err)
		return
	}
	for {
		select {
		case <-o.mdCtx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			o.md.FeedTicker(t)
		}
	}
}

func (o *Orchestrator) streamBook(venue string, conn exchange.Connector, symbol string) {
	defer o.wg.Done()
	ch, err := conn.StreamBook(o.mdCtx, symbol)
	if err != nil {
		logging.Warnf("marketdata: %s stream_book %s failed: %v", venue, symbol, err)
		return
	}
	for {
		select {
		case <-o.mdCtx.Done():
			return
		case ob, ok := <-ch:
			if !ok {
				return
			}
			o.md.FeedBook(ob)
		}
	}
}

func (o *Orchestrator) timeframeFor(symbol string) bar.Timeframe {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.symbolTf[symbol]
}

// feedStrategy pumps bar/ticker events matching symbol into inst,
// dispatching any produced signals to the risk/execution pipeline.
// Runs single-threaded per instance, satisfying the
// "at-most-one concurrent callback per instance" contract by
// construction (one goroutine, one instance).
func (o *Orchestrator) feedStrategy(name, symbol string, rs *runningStrategy) {
	defer o.wg.Done()
	for {
		select {
		case <-rs.cancel:
			return
		case <-o.stopCh:
			return
		default:
		}

		ev, ok := rs.sub.Next()
		if !ok {
			return
		}

		var sigs []strategy.Signal
		var err error
		switch ev.Name {
		case eventbus.Bar:
			b, isBar := ev.Payload.(bar.Bar)
			if isBar && b.Symbol == symbol {
				start := time.Now()
				sigs, err = rs.inst.OnBar(b)
				metrics.StrategyCallbackDurationMs.WithLabelValues(name, "on_bar").Observe(float64(time.Since(start).Microseconds()) / 1000)
			}
		case eventbus.Ticker:
			t, isTicker := ev.Payload.(bar.Ticker)
			if isTicker && t.Symbol == symbol {
				sigs, err = rs.inst.OnTicker(t)
			}
		}
		if err != nil {
			logging.Warnf("engine: strategy %s callback error: %v", name, err)
			continue
		}
		for _, sig := range sigs {
			o.dispatchSignal(name, sig)
		}
	}
}

// dispatchSignal runs one signal through the gate chain, sizing,
// execution planning, and submission, recording the outcome to the
// audit sink and metrics regardless of verdict.
func (o *Orchestrator) dispatchSignal(stratName string, sig strategy.Signal) {
	snap := o.snapshotFor(sig)

	allowed, reasons, warnings := risk.GateChain(sig, snap)
	outcome := "allow"
	if !allowed {
		outcome = "deny"
	}
	metrics.RiskGateDecisions.WithLabelValues("chain", outcome).Inc()

	if !allowed {
		o.bus.Publish(eventbus.Event{Name: eventbus.SignalRejected, PartitionKey: sig.Symbol, Payload: sig})
		o.auditAppend("signalRejected", "info", map[string]interface{}{
			"strategy": stratName, "symbol": sig.Symbol, "reasons": reasons,
		})
		return
	}
	if len(warnings) > 0 {
		o.auditAppend("signalWarned", "warn", map[string]interface{}{
			"strategy": stratName, "symbol": sig.Symbol, "warnings": warnings,
		})
	}

	profile := strategy.ModeBalanced.Profile()
	qty := risk.Size(sig, snap.Account, risk.SizingParams{
		RiskPerTrade:     profile.RiskPerTrade,
		PositionPercent:  profile.PositionPercent,
		ConcentrationMax: snap.ConcentrationMax,
		EntryPx:          sig.LimitPx,
	})
	if qty.IsZero() {
		o.auditAppend("signalRejected", "info", map[string]interface{}{
			"strategy": stratName, "symbol": sig.Symbol, "reason": "zero sized",
		})
		return
	}
	sig.Qty = qty

	o.trackSafekeepingLevels(sig)
	o.submitPlan(stratName, sig, snap)
}

// trackSafekeepingLevels records the stop-loss/take-profit a dispatched
// opening signal carries, so CheckSafekeeping's monitor-tick pass has
// something to compare the last traded price against even once the
// strategy instance that opened the position has moved on.
func (o *Orchestrator) trackSafekeepingLevels(sig strategy.Signal) {
	if sig.StopLossPx.IsZero() && sig.TakeProfitPx.IsZero() {
		return
	}
	o.mu.Lock()
	if !sig.StopLossPx.IsZero() {
		o.stopLoss[sig.Symbol] = sig.StopLossPx
	}
	if !sig.TakeProfitPx.IsZero() {
		o.takeProfit[sig.Symbol] = sig.TakeProfitPx
	}
	o.mu.Unlock()
}

// submitPlan plans and submits sig (already sized) against the venue
// snap.Account resolves to, recording every order-submission failure
// against the cooldown gate's failure tracker.
func (o *Orchestrator) submitPlan(stratName string, sig strategy.Signal, snap risk.Snapshot) {
	venue := snap.Account.Venue
	mgr := o.managerFor(venue)
	if mgr == nil {
		logging.Warnf("engine: no execution manager for venue %s", venue)
		return
	}

	book, _ := o.md.LastBook(sig.Symbol)
	adv := o.md.ADV(sig.Symbol, o.timeframeFor(sig.Symbol))
	mktSnap := execution.MarketSnapshot{Book: book, ADV: adv}

	plan := o.planner.Plan(sig, mktSnap, nowMs(), "")
	for _, slice := range plan.Slices {
		order, err := mgr.Submit(sig, slice, nowMs())
		if err != nil {
			o.recordFailure(sig.Symbol, sig.Side)
			o.auditAppend("orderFailed", "danger", map[string]interface{}{
				"strategy": stratName, "symbol": sig.Symbol, "error": err.Error(),
			})
			continue
		}
		metrics.ExecutionOrdersTotal.WithLabelValues(venue, string(order.Status)).Inc()
		if o.st != nil {
			_ = o.st.UpsertOrder(order)
		}
		o.bus.Publish(eventbus.Event{Name: eventbus.OrderSubmitted, PartitionKey: sig.Symbol, Payload: order})
		o.auditAppend("orderSubmitted", "info", map[string]interface{}{
			"strategy": stratName, "order_id": order.ID, "symbol": order.Symbol, "qty": order.Qty.String(),
		})
	}
}

// dispatchClose runs a close-intent signal (qty already set by the
// caller, typically to an existing position's full size) through the
// gate chain and straight to submission, bypassing risk.Size's
// opening-order sizing formula entirely.
func (o *Orchestrator) dispatchClose(stratName string, sig strategy.Signal) {
	snap := o.snapshotFor(sig)
	allowed, reasons, _ := risk.GateChain(sig, snap)
	if !allowed {
		o.auditAppend("signalRejected", "info", map[string]interface{}{
			"strategy": stratName, "symbol": sig.Symbol, "reasons": reasons,
		})
		return
	}
	o.submitPlan(stratName, sig, snap)
}

// recordFailure timestamps an order-submission failure for (symbol,
// side), feeding gateCooldown on the next signal for that pair.
func (o *Orchestrator) recordFailure(symbol string, side strategy.Side) {
	o.mu.Lock()
	o.failures[risk.SymbolSide{Symbol: symbol, Side: side}] = nowMs()
	o.mu.Unlock()
}

// managerFor lazily builds (and caches) an execution.Manager for venue,
// backed by that venue's connector.
func (o *Orchestrator) managerFor(venue string) *execution.Manager {
	o.mu.Lock()
	defer o.mu.Unlock()
	if mgr, ok := o.managers[venue]; ok {
		return mgr
	}
	conn, ok := o.connectors[venue]
	if !ok {
		return nil
	}
	mgr := execution.NewManager(conn, o.onFill)
	o.managers[venue] = mgr
	return mgr
}

// onFill is the execution manager's fill callback: it persists the
// fill, republishes it on the spine, and feeds the audit sink.
func (o *Orchestrator) onFill(order execution.Order, fill execution.Fill) {
	if o.st != nil {
		_ = o.st.UpsertOrder(order)
		_ = o.st.RecordFill(fill)
	}
	name := eventbus.OrderPartial
	if order.Status == execution.StatusFilled {
		name = eventbus.OrderFilled
	}
	o.bus.Publish(eventbus.Event{Name: name, PartitionKey: order.Symbol, Payload: order})
	o.auditAppend("orderFilled", "info", map[string]interface{}{
		"order_id": order.ID, "fill_qty": fill.Qty.String(), "fill_px": fill.Px.String(),
	})
}

// snapshotFor builds the risk.Snapshot a gate chain needs for sig,
// reading the account cache UpdateAccount keeps current and the
// engine-wide config/pause/failure state every gate consults. A
// strategy whose signal carries no resolvable account yet (no
// UpdateAccount call has landed for it) gets the zero Account. The
// equity-based gates let a zero-equity account through, but risk.Size
// then sizes any opening order to zero, so dispatchSignal drops it
// before submission. Resolving "the" account for a symbol-only signal is the same
// first-found simplification dispatchSignal's caller relies on
// elsewhere (Signal carries no account field to key off instead).
func (o *Orchestrator) snapshotFor(sig strategy.Signal) risk.Snapshot {
	o.mu.RLock()
	var acct risk.Account
	for _, a := range o.accounts {
		acct = a
		break
	}
	cb, hasBreaker := o.breakers[acct.AccountID]
	allowedSymbols := make(map[string]bool, len(o.symbolTf))
	for sym := range o.symbolTf {
		allowedSymbols[sym] = true
	}
	tradingPaused := o.pausedGlobal
	accountPaused := make(map[string]bool, len(o.pausedAccounts))
	for id, p := range o.pausedAccounts {
		accountPaused[id] = p
	}
	lastFailure := make(map[risk.SymbolSide]int64, len(o.failures))
	for k, v := range o.failures {
		lastFailure[k] = v
	}
	o.mu.RUnlock()

	level := risk.LevelInfo
	if hasBreaker {
		level = cb.Level()
	}

	allowedVenues := make(map[string]bool, len(o.cfg.ExchangeAllowList))
	for _, v := range o.cfg.ExchangeAllowList {
		allowedVenues[v] = true
	}

	dailyPnL := money.Zero
	for _, p := range acct.Positions {
		dailyPnL = dailyPnL.Add(p.RealizedPnL).Add(p.UnrealizedPnL)
	}
	dailyLossLimit := money.Zero
	if o.cfg.DailyLossLimitPct > 0 {
		dailyLossLimit = acct.Equity.Mul(money.FromFloat(o.cfg.DailyLossLimitPct))
	}
	perAccountCap := money.Zero
	if o.cfg.PerAccountCapNotlPct > 0 {
		perAccountCap = acct.Equity.Mul(money.FromFloat(o.cfg.PerAccountCapNotlPct))
	}

	book, _ := o.md.LastBook(sig.Symbol)
	slip := execution.WalkBook(book, sig.Side, sig.Qty)

	return risk.Snapshot{
		Account:            acct,
		CircuitLevel:       level,
		TradingPaused:      tradingPaused,
		AccountPaused:      accountPaused,
		AllowedSymbols:     allowedSymbols,
		AllowedVenues:      allowedVenues,
		PerSymbolCapQty:    money.FromFloat(o.cfg.PerSymbolCapQty),
		PerAccountCapNotl:  perAccountCap,
		MaxLeverage:        money.FromFloat(o.cfg.MaxLeverage),
		ConcentrationMax:   o.cfg.ConcentrationMaxPct,
		MarginWarnRate:     money.FromFloat(o.cfg.MarginWarnRate),
		MarginCriticalRate: money.FromFloat(o.cfg.MarginCriticalRate),
		DailyPnL:           dailyPnL,
		DailyLossLimit:     dailyLossLimit,
		EstimatedSlippage:  slip.BasisPoints / 10_000,
		MaxSlippageByUrgency: func(urgency float64) float64 {
			return 0.002 + 0.01*urgency // 20bps floor up to 120bps for urgency=1
		},
		LastFailureTsMs: lastFailure,
		CooldownMs:      o.cfg.OrderFailureCooldownMs,
		NowMs:           nowMs(),
	}
}

// monitorLoop is the periodic 1s monitor task: circuit breaker,
// drawdown, and cross-account checks, feeding both the audit sink and
// Prometheus. Mirrors auto_trader.go's startDrawdownMonitor ticker
// shape, generalized across every account rather than one trader.
func (o *Orchestrator) monitorLoop() {
	defer o.wg.Done()

	interval := o.cfg.MonitorTickInterval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			o.runMonitorTick()
		}
	}
}

func (o *Orchestrator) runMonitorTick() {
	rollup := o.aggregator.Compute()
	aggAction, aggLevel, aggFired := o.aggregator.Check()
	if aggFired {
		o.emitRiskEvent(risk.Event{Module: "aggregator", Kind: string(aggAction), Level: aggLevel, TsMs: nowMs(),
			Payload: map[string]interface{}{"equity": rollup.TotalEquity.String()}})
		if aggAction == risk.ActionPauseTrading || aggAction == risk.ActionForceClose {
			o.mu.Lock()
			o.pausedGlobal = true
			o.mu.Unlock()
		}
	}

	o.mu.RLock()
	type accountState struct {
		cb   *risk.CircuitBreaker
		dd   *risk.DrawdownMonitor
		acct risk.Account
	}
	states := make(map[string]accountState, len(o.breakers))
	for acctID, cb := range o.breakers {
		states[acctID] = accountState{cb: cb, dd: o.drawdowns[acctID], acct: o.accounts[acctID]}
	}
	o.mu.RUnlock()

	lastPrice := o.lastPriceSnapshot()

	for acctID, st := range states {
		metrics.CircuitBreakerLevel.WithLabelValues(acctID).Set(float64(levelOrdinal(st.cb.Level())))

		conditionsFired := false

		if st.dd != nil {
			action, level, pct, fired := st.dd.Check(st.acct.Equity)
			metrics.DrawdownPct.WithLabelValues(acctID).Set(pct)
			if fired {
				conditionsFired = true
				st.cb.Arm(level, nowMs())
				o.emitRiskEvent(risk.Event{
					Module: "drawdown_monitor", Kind: string(action), Level: level,
					Account: acctID, TsMs: nowMs(),
					Payload: map[string]interface{}{"drawdown_pct": pct},
				})
			}
		}

		if maction, mlevel, mfired := o.marginMon.Check(st.acct); mfired {
			conditionsFired = true
			st.cb.Arm(mlevel, nowMs())
			o.emitRiskEvent(risk.Event{
				Module: "margin_monitor", Kind: string(maction), Level: mlevel,
				Account: acctID, TsMs: nowMs(),
				Payload: map[string]interface{}{"margin_rate": st.acct.MarginRate().String()},
			})
		}

		if sym, cfired := o.concMon.Check(st.acct); cfired {
			o.emitRiskEvent(risk.Event{
				Module: "concentration_monitor", Kind: string(risk.ActionReduceNewExposure), Level: risk.LevelWarn,
				Account: acctID, Symbol: sym, TsMs: nowMs(),
			})
		}

		for _, pos := range st.acct.Positions {
			last, ok := lastPrice[pos.Symbol]
			if !ok {
				continue
			}
			if o.liqMon.Check(pos, last) {
				o.emitRiskEvent(risk.Event{
					Module: "liquidation_distance_monitor", Kind: string(risk.ActionReduceNewExposure), Level: risk.LevelDanger,
					Account: acctID, Symbol: pos.Symbol, TsMs: nowMs(),
				})
			}
		}

		st.cb.Cooldown(nowMs(), !conditionsFired)
		o.mu.Lock()
		o.pausedAccounts[acctID] = levelOrdinal(st.cb.Level()) >= levelOrdinal(risk.LevelCritical)
		o.mu.Unlock()
	}

	for symbol := range o.symbolTf {
		o.checkBlackSwan(symbol)
	}

	o.runSafekeeping(lastPrice)
}

// lastPriceSnapshot builds a symbol->last-traded-price map from every
// symbol a running strategy tracks plus every symbol any account holds
// a position in, so both the liquidation-distance monitor and the
// safekeeping pass have a last price to compare against.
func (o *Orchestrator) lastPriceSnapshot() map[string]money.Decimal {
	o.mu.RLock()
	symbols := make(map[string]bool, len(o.symbolTf))
	for sym := range o.symbolTf {
		symbols[sym] = true
	}
	for _, acct := range o.accounts {
		for _, p := range acct.Positions {
			symbols[p.Symbol] = true
		}
	}
	o.mu.RUnlock()

	out := make(map[string]money.Decimal, len(symbols))
	for sym := range symbols {
		if t, ok := o.md.LastTicker(sym); ok {
			out[sym] = money.FromFloat(t.Last)
		}
	}
	return out
}

// checkBlackSwan runs the three black-swan conditions for symbol.
// Price velocity is computed from the retained bar history; depth
// collapse and cross-venue spread run with a conservative zero input
// (never fires) until a depth-history/cross-venue feed exists to
// supply them — they are still wired and invoked so that feed only has
// to start publishing, not be threaded through a new call site.
func (o *Orchestrator) checkBlackSwan(symbol string) {
	tf := o.timeframeFor(symbol)
	bars := o.md.Series(symbol, tf, 20)
	if len(bars) < 5 {
		return
	}
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		highs[i], lows[i], closes[i] = b.High, b.Low, b.Close
	}
	atr, ok := indicator.Last(indicator.ATR(highs, lows, closes, 14))
	if ok {
		last, prev := bars[len(bars)-1], bars[len(bars)-2]
		if spanMin := timeframeMinutes(tf); spanMin > 0 {
			priceMovePerMin := absFloat(last.Close-prev.Close) / spanMin
			if o.blackSwan.CheckPriceVelocity(priceMovePerMin, atr) {
				o.armAllBreakers(risk.LevelCritical)
				o.emitRiskEvent(risk.Event{
					Module: "black_swan_detector", Kind: string(risk.ActionPauseTrading), Level: risk.LevelCritical,
					Symbol: symbol, TsMs: nowMs(), Payload: map[string]interface{}{"signal": "price_velocity"},
				})
			}
		}
	}
	if o.blackSwan.CheckDepthCollapse(0) {
		o.armAllBreakers(risk.LevelCritical)
		o.emitRiskEvent(risk.Event{Module: "black_swan_detector", Kind: string(risk.ActionPauseTrading), Level: risk.LevelCritical, Symbol: symbol, TsMs: nowMs(), Payload: map[string]interface{}{"signal": "depth_collapse"}})
	}
	if o.blackSwan.CheckCrossVenueSpread(0) {
		o.armAllBreakers(risk.LevelCritical)
		o.emitRiskEvent(risk.Event{Module: "black_swan_detector", Kind: string(risk.ActionPauseTrading), Level: risk.LevelCritical, Symbol: symbol, TsMs: nowMs(), Payload: map[string]interface{}{"signal": "cross_venue_spread"}})
	}
}

func (o *Orchestrator) armAllBreakers(level risk.Level) {
	o.mu.RLock()
	cbs := make([]*risk.CircuitBreaker, 0, len(o.breakers))
	for _, cb := range o.breakers {
		cbs = append(cbs, cb)
	}
	o.mu.RUnlock()
	for _, cb := range cbs {
		cb.Arm(level, nowMs())
	}
}

// runSafekeeping converts any stop-loss/take-profit crossing
// CheckSafekeeping reports into a close order, routed through
// dispatchClose so it still passes the gate chain (circuit breaker,
// trading-paused) even though no strategy instance produced it.
func (o *Orchestrator) runSafekeeping(lastPrice map[string]money.Decimal) {
	o.mu.RLock()
	accounts := make([]risk.Account, 0, len(o.accounts))
	for _, a := range o.accounts {
		accounts = append(accounts, a)
	}
	stopLoss := make(map[string]money.Decimal, len(o.stopLoss))
	for k, v := range o.stopLoss {
		stopLoss[k] = v
	}
	takeProfit := make(map[string]money.Decimal, len(o.takeProfit))
	for k, v := range o.takeProfit {
		takeProfit[k] = v
	}
	o.mu.RUnlock()

	for _, acct := range accounts {
		for _, sk := range risk.CheckSafekeeping(acct.Positions, lastPrice, stopLoss, takeProfit) {
			qty := money.Zero
			for _, p := range acct.Positions {
				if p.Symbol == sk.Symbol {
					qty = money.Abs(p.Qty)
					break
				}
			}
			if qty.IsZero() {
				continue
			}
			sig := strategy.Signal{
				ID:       "safekeeping-" + acct.AccountID + "-" + sk.Symbol,
				Strategy: "safekeeping",
				Symbol:   sk.Symbol,
				Side:     sk.Side,
				Intent:   sk.Intent,
				Type:     strategy.TypeMarket,
				Qty:      qty,
				TsMs:     nowMs(),
				Context:  map[string]interface{}{"reason": sk.Reason},
			}
			o.dispatchClose("safekeeping", sig)
			o.emitRiskEvent(risk.Event{
				Module: "safekeeping", Kind: sk.Reason, Level: risk.LevelWarn,
				Account: acct.AccountID, Symbol: sk.Symbol, TsMs: nowMs(),
			})
		}
	}
}

func timeframeMinutes(tf bar.Timeframe) float64 {
	switch tf {
	case "1m":
		return 1
	case "5m":
		return 5
	case "15m":
		return 15
	case "1h":
		return 60
	case "4h":
		return 240
	case "1d":
		return 1440
	default:
		return 0
	}
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

// emitRiskEvent runs ev through the alert fan-out's cooldown/escalation
// filter and, only if it survives, publishes it on the spine, records
// it to the store, and folds it into the audit chain: the three places
// every delivered risk event must land. A cooldown-suppressed event
// still counts toward that key's escalation window even though nothing
// is delivered for it.
func (o *Orchestrator) emitRiskEvent(ev risk.Event) {
	deliver, shouldDeliver := o.alerts.Submit(ev, nowMs())
	if !shouldDeliver {
		return
	}
	o.bus.Publish(eventbus.Event{Name: eventbus.RiskEvent, PartitionKey: deliver.Symbol, Payload: deliver})
	o.recordRiskEvent(deliver)
	metrics.RiskEventsTotal.WithLabelValues(deliver.Module, deliver.Kind, string(deliver.Level)).Inc()
}

func (o *Orchestrator) recordRiskEvent(ev risk.Event) {
	if o.st != nil {
		_ = o.st.RecordRiskEvent(ev)
	}
	if o.auditSink != nil {
		_, _ = o.auditSink.AppendRiskEvent(audit.RiskEvent{
			Module: ev.Module, Kind: ev.Kind, Level: string(ev.Level),
			Symbol: ev.Symbol, Account: ev.Account, TsMs: ev.TsMs, Payload: ev.Payload,
		})
	}
}

func (o *Orchestrator) auditAppend(kind, level string, data map[string]interface{}) {
	if o.auditSink == nil {
		return
	}
	if _, err := o.auditSink.Append(kind, level, data, nil); err != nil {
		logging.Warnf("engine: audit append failed: %v", err)
	}
}

// Status is the engine.status() control-surface response: lifecycle
// state, uptime, and the names of running strategies. It carries no
// executor statistics and no risk-pipeline status.
type Status struct {
	State      State
	UptimeMs   int64
	Strategies []string
}

// Status returns a point-in-time snapshot for the control surface.
func (o *Orchestrator) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	names := make([]string, 0, len(o.strategies))
	for name := range o.strategies {
		names = append(names, name)
	}
	uptime := int64(0)
	if !o.startedAt.IsZero() {
		uptime = time.Since(o.startedAt).Milliseconds()
	}
	return Status{State: o.state, UptimeMs: uptime, Strategies: names}
}

// QueryAccount returns the stored positions for account, the
// engine.query_account() control-surface response's core.
func (o *Orchestrator) QueryAccount(account string) ([]risk.Position, error) {
	if o.st == nil {
		return nil, newErr(KindInternal, "QueryAccount", fmt.Errorf("store not wired"))
	}
	positions, err := o.st.Positions(account)
	if err != nil {
		return nil, newErr(KindInternal, "QueryAccount", err)
	}
	return positions, nil
}

func levelOrdinal(l risk.Level) int {
	switch l {
	case risk.LevelInfo:
		return 0
	case risk.LevelWarn:
		return 1
	case risk.LevelDanger:
		return 2
	case risk.LevelCritical:
		return 3
	case risk.LevelEmergency:
		return 4
	default:
		return 0
	}
}

func nowMs() int64 { return time.Now().UnixMilli() }
