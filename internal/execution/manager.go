package execution

import (
	"fmt"
	"sync"

	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// Venue is the minimal surface the execution layer needs from a venue
// connector: submit, cancel, and poll an order's current fill state.
// internal/exchange's concrete connectors satisfy this.
type Venue interface {
	SubmitOrder(o Order) (venueOrderID string, err error)
	CancelOrder(symbol, venueOrderID string) error
	OrderStatus(symbol, venueOrderID string) (status OrderStatus, filledQty, avgPx money.Decimal, err error)
}

// Manager owns the live Order set and turns Signals/ExecutionPlans into
// venue calls, folding fill reports back onto each Order. Grounded on
// recordAndConfirmOrder/recordPositionChange's poll-until-filled idiom,
// generalized from "one order, fixed 5-attempt poll loop, write to sqlite"
// into "any number of concurrently tracked orders, pluggable venue,
// fill events published on the event spine instead of written straight
// to a position table" (internal/store persists the same data
// asynchronously off Fill events rather than inline in the hot path).
type Manager struct {
	mu     sync.Mutex
	venue  Venue
	orders map[string]*Order // keyed by internal Order.ID
	onFill func(Order, Fill)
}

// NewManager constructs a Manager against the given venue connector.
// onFill, if non-nil, is invoked (outside the lock) after every fill is
// folded in — the engine wires this to publish orderFilled/orderPartial
// on the event spine.
func NewManager(venue Venue, onFill func(Order, Fill)) *Manager {
	return &Manager{venue: venue, orders: make(map[string]*Order), onFill: onFill}
}

// Submit sends one slice of an ExecutionPlan (or a whole immediate
// order) to the venue and begins tracking it.
func (m *Manager) Submit(sig strategy.Signal, slice Slice, nowMs int64) (Order, error) {
	o := Order{
		ID:             fmt.Sprintf("%s-%d", sig.ID, nowMs),
		Symbol:         sig.Symbol,
		Side:           sig.Side,
		Type:           sig.Type,
		Qty:            slice.Qty,
		Status:         StatusNew,
		CreatedTsMs:    nowMs,
		UpdatedTsMs:    nowMs,
		ParentSignalID: sig.ID,
	}

	venueID, err := m.venue.SubmitOrder(o)
	if err != nil {
		o.Status = StatusRejected
		m.track(o)
		return o, err
	}
	o.ClientID = venueID
	m.track(o)
	return o, nil
}

func (m *Manager) track(o Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := o
	m.orders[o.ID] = &cp
}

// Cancel requests cancellation of a tracked order.
func (m *Manager) Cancel(orderID string) error {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("execution: unknown order %q", orderID)
	}
	return m.venue.CancelOrder(o.Symbol, o.ClientID)
}

// CancelAll requests cancellation of every order still open
// (new/partial) for the given symbol, or every symbol if empty.
func (m *Manager) CancelAll(symbol string) []error {
	m.mu.Lock()
	var targets []*Order
	for _, o := range m.orders {
		if (symbol == "" || o.Symbol == symbol) && (o.Status == StatusNew || o.Status == StatusPartial) {
			targets = append(targets, o)
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, o := range targets {
		if err := m.venue.CancelOrder(o.Symbol, o.ClientID); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Poll checks one tracked order's venue status and folds in any new
// fill. Returns the updated Order and whether a new fill occurred.
func (m *Manager) Poll(orderID string, nowMs int64) (Order, bool, error) {
	m.mu.Lock()
	o, ok := m.orders[orderID]
	m.mu.Unlock()
	if !ok {
		return Order{}, false, fmt.Errorf("execution: unknown order %q", orderID)
	}

	status, filledQty, avgPx, err := m.venue.OrderStatus(o.Symbol, o.ClientID)
	if err != nil {
		return *o, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	prevFilled := o.FilledQty
	newlyFilled := filledQty.Sub(prevFilled)
	changed := newlyFilled.IsPositive()

	o.FilledQty = filledQty
	o.AvgFillPx = avgPx
	o.Status = status
	o.UpdatedTsMs = nowMs

	if changed && m.onFill != nil {
		fill := Fill{OrderID: o.ID, Qty: newlyFilled, Px: avgPx, TsMs: nowMs}
		cp := *o
		go m.onFill(cp, fill)
	}
	return *o, changed, nil
}

// Get returns a snapshot of one tracked order.
func (m *Manager) Get(orderID string) (Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return Order{}, false
	}
	return *o, true
}

// Open returns every order still in a non-terminal state.
func (m *Manager) Open(symbol string) []Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if (symbol == "" || o.Symbol == symbol) && (o.Status == StatusNew || o.Status == StatusPartial) {
			out = append(out, *o)
		}
	}
	return out
}
