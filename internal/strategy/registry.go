package strategy

import (
	"fmt"
	"sync"

	"quantforge/internal/bar"
	"quantforge/internal/logging"
)

// Registry maps strategy type names to Factory constructors, the
// registry/factory pattern implied by "a registry of
// stateful strategies", generalized from a prior hardcoded
// switch-on-algoType (detectAlgoType) into an extensible map; the
// built-in types are registered by NewDefaultRegistry (bootstrap.go).
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a named Factory. Re-registering the same name overwrites
// it (useful for tests stubbing a strategy type).
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Create instantiates a new, uninitialized Strategy of the named type.
func (r *Registry) Create(name string) (Strategy, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("strategy: unknown type %q", name)
	}
	return f(), nil
}

// Instance wraps a Strategy with its lifecycle state machine and the
// single-threaded-callback guarantee required ("the
// runtime guarantees at-most-one concurrent callback per instance").
type Instance struct {
	mu       sync.Mutex
	impl     Strategy
	cfg      Config
	state    State
	drainAck chan struct{} // unused: no method of Instance creates or closes it
}

// NewInstance wraps impl in an unstarted (created) Instance.
func NewInstance(impl Strategy) *Instance {
	return &Instance{impl: impl, state: StateCreated}
}

// Initialize validates cfg against the strategy's schema and transitions
// created → initialized.
func (inst *Instance) Initialize(cfg Config) error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateCreated {
		return fmt.Errorf("strategy %s: Initialize called in state %s", inst.impl.Name(), inst.state)
	}
	if err := inst.impl.Initialize(cfg); err != nil {
		return err
	}
	inst.cfg = cfg
	inst.state = StateInitialized
	return nil
}

// Start transitions initialized → running.
func (inst *Instance) Start() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateInitialized {
		return fmt.Errorf("strategy %s: Start called in state %s", inst.impl.Name(), inst.state)
	}
	inst.state = StateRunning
	return nil
}

// Stop transitions running → stopping. In-flight callbacks (there are
// none concurrently, by construction) are allowed to complete; the next
// call to OnBar/OnTicker/OnBook after Stop is a no-op returning no
// signals, per the "no new signals are accepted" rule during
// stopping. Callers should call Stopped() once satisfied no further
// callback is pending.
func (inst *Instance) Stop() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateRunning {
		inst.state = StateStopping
	}
}

// Stopped finalizes stopping → stopped.
func (inst *Instance) Stopped() {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	inst.state = StateStopped
}

// State returns the current lifecycle state.
func (inst *Instance) State() State {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state
}

// Config returns the validated configuration this instance was started
// with.
func (inst *Instance) Config() Config {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.cfg
}

// OnBar delivers a bar under the instance's mutex, enforcing at-most-one
// concurrent callback, and is a no-op once stopping/stopped.
func (inst *Instance) OnBar(b bar.Bar) ([]Signal, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateRunning {
		return nil, nil
	}
	sigs, err := inst.impl.OnBar(b)
	if err != nil {
		logging.Warnf("strategy %s: OnBar error for %s: %v", inst.impl.Name(), b.Symbol, err)
		return nil, err
	}
	return stampSignals(sigs, inst.impl.Name(), b.TsMs), nil
}

// OnTicker delivers a ticker if the wrapped strategy implements
// TickerAware; otherwise it is a silent no-op.
func (inst *Instance) OnTicker(t bar.Ticker) ([]Signal, error) {
	ta, ok := inst.impl.(TickerAware)
	if !ok {
		return nil, nil
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateRunning {
		return nil, nil
	}
	sigs, err := ta.OnTicker(t)
	if err != nil {
		return nil, err
	}
	return stampSignals(sigs, inst.impl.Name(), t.TsMs), nil
}

// OnBook delivers an order book update if the wrapped strategy
// implements BookAware.
func (inst *Instance) OnBook(ob bar.OrderBook) ([]Signal, error) {
	ba, ok := inst.impl.(BookAware)
	if !ok {
		return nil, nil
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateRunning {
		return nil, nil
	}
	sigs, err := ba.OnBook(ob)
	if err != nil {
		return nil, err
	}
	return stampSignals(sigs, inst.impl.Name(), ob.TsMs), nil
}

// StateSnapshot serializes the wrapped strategy's state, used only for
// crash-recovery/backtest determinism ("not a migration
// format").
func (inst *Instance) StateSnapshot() ([]byte, error) {
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.impl.StateSnapshot()
}

func stampSignals(sigs []Signal, strategyName string, tsMs int64) []Signal {
	for i := range sigs {
		if sigs[i].Strategy == "" {
			sigs[i].Strategy = strategyName
		}
		if sigs[i].TsMs == 0 {
			sigs[i].TsMs = tsMs
		}
	}
	return sigs
}
