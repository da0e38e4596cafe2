// Package execution implements the execution layer: order
// submission/cancellation, execution-strategy planning (immediate/
// TWAP/VWAP/iceberg/adaptive), the book-walk slippage model, and
// partial-fill accounting.
//
// Grounded on trader/auto_trader.go's executeWithSmartOrders/
// calculateSmartLimitPrice/execute{Open,Close}{Long,Short}WithRecord
// order-submission idiom, generalized from "one smart-limit order per
// decision" into the full {immediate,twap,vwap,iceberg,adaptive}
// planner this package implements.
package execution

import (
	"quantforge/internal/bar"
	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// OrderStatus is the Order status set; transitions are
// monotone: new -> partial -> {filled, cancelled, rejected}.
type OrderStatus string

const (
	StatusNew       OrderStatus = "new"
	StatusPartial   OrderStatus = "partial"
	StatusFilled    OrderStatus = "filled"
	StatusCancelled OrderStatus = "cancelled"
	StatusRejected  OrderStatus = "rejected"
)

// Order is the engine's order record.
type Order struct {
	ID             string
	ClientID       string
	Symbol         string
	Venue          string
	Side           strategy.Side
	Type           strategy.OrderType
	Qty            money.Decimal
	FilledQty      money.Decimal
	AvgFillPx      money.Decimal
	Status         OrderStatus
	CreatedTsMs    int64
	UpdatedTsMs    int64
	ParentSignalID string
	SliceOf        string // non-empty if this Order is one slice of a plan
}

// Remaining returns qty not yet filled.
func (o Order) Remaining() money.Decimal {
	return o.Qty.Sub(o.FilledQty)
}

// Fill is one execution report folded into an Order.
type Fill struct {
	OrderID string
	Qty     money.Decimal
	Px      money.Decimal
	TsMs    int64
}

// PlanStrategy is the execution-strategy set this package implements.
type PlanStrategy string

const (
	PlanImmediate PlanStrategy = "immediate"
	PlanTWAP      PlanStrategy = "twap"
	PlanVWAP      PlanStrategy = "vwap"
	PlanIceberg   PlanStrategy = "iceberg"
	PlanAdaptive  PlanStrategy = "adaptive"
)

// Slice is one scheduled child order of an ExecutionPlan.
type Slice struct {
	Qty         money.Decimal
	ScheduledTsMs int64
	DisplayQty  money.Decimal // <= Qty; zero means fully visible
}

// ExecutionPlan is the engine's execution plan record. Invariant:
// sum(slice.qty) == total_qty at construction.
type ExecutionPlan struct {
	Strategy   PlanStrategy
	Slices     []Slice
	TotalQty   money.Decimal
	StartedTsMs  int64
	FinishedTsMs int64 // zero means not yet finished
}

// MarketSnapshot bundles what plan_execution needs to decide a strategy
// and weight its slices.
type MarketSnapshot struct {
	Book           bar.OrderBook
	ADV            money.Decimal // average daily volume, for the small-size/immediate threshold
	VolumeCurve    []float64     // historical intraday volume-curve weights, sums to 1
}

// SplitMethod is iceberg's display-size progression.
type SplitMethod string

const (
	SplitLinear      SplitMethod = "linear"
	SplitExponential SplitMethod = "exponential"
	SplitAdaptive    SplitMethod = "adaptive"
)
