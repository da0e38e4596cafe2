package execution

import (
	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// Planner turns a risk-approved Signal into an ExecutionPlan, choosing
// among immediate/TWAP/VWAP/iceberg/adaptive the way a human execution
// desk would: small orders relative to ADV go out immediately, larger
// ones get sliced.
type Planner struct {
	SmallOrderADVFraction float64 // orders below this fraction of ADV execute immediately
	DefaultSliceCount     int
	DefaultHorizonMs      int64
	Curve                 *VolumeCurve
}

// NewPlanner constructs a planner with sane desk defaults.
func NewPlanner(curve *VolumeCurve) *Planner {
	return &Planner{
		SmallOrderADVFraction: 0.001,
		DefaultSliceCount:     6,
		DefaultHorizonMs:      5 * 60_000,
		Curve:                 curve,
	}
}

// Plan builds an ExecutionPlan for sig given market. strategyHint, if
// non-empty, forces a specific PlanStrategy instead of the size-based
// default choice (the book-walk slippage estimate can suggest a split
// even for an order the size heuristic alone would send immediately).
func (p *Planner) Plan(sig strategy.Signal, snap MarketSnapshot, nowMs int64, strategyHint PlanStrategy) ExecutionPlan {
	qty := sig.Qty
	advFraction := 0.0
	if snap.ADV.IsPositive() {
		advFraction, _ = qty.Div(snap.ADV).Float64()
	}

	slip := WalkBook(snap.Book, sig.Side, qty)

	chosen := strategyHint
	if chosen == "" {
		switch {
		case advFraction <= p.SmallOrderADVFraction && !slip.SuggestSplit:
			chosen = PlanImmediate
		case slip.Class == SlippageExtreme:
			chosen = PlanIceberg
		case len(snap.VolumeCurve) > 0 || p.Curve != nil:
			chosen = PlanVWAP
		default:
			chosen = PlanTWAP
		}
	}

	switch chosen {
	case PlanImmediate:
		return p.planImmediate(qty, nowMs)
	case PlanTWAP:
		return p.planTWAP(qty, nowMs)
	case PlanVWAP:
		return p.planVWAP(qty, nowMs, snap.VolumeCurve)
	case PlanIceberg:
		return p.planIceberg(qty, nowMs, slip)
	case PlanAdaptive:
		return p.planAdaptive(qty, nowMs, slip)
	default:
		return p.planImmediate(qty, nowMs)
	}
}

func (p *Planner) planImmediate(qty money.Decimal, nowMs int64) ExecutionPlan {
	return ExecutionPlan{
		Strategy:    PlanImmediate,
		TotalQty:    qty,
		StartedTsMs: nowMs,
		Slices:      []Slice{{Qty: qty, ScheduledTsMs: nowMs}},
	}
}

// planTWAP splits qty into DefaultSliceCount equal slices spread evenly
// across DefaultHorizonMs.
func (p *Planner) planTWAP(qty money.Decimal, nowMs int64) ExecutionPlan {
	n := p.DefaultSliceCount
	if n < 1 {
		n = 1
	}
	slices := equalSlices(qty, n, nowMs, p.DefaultHorizonMs)
	return ExecutionPlan{Strategy: PlanTWAP, TotalQty: qty, StartedTsMs: nowMs, Slices: slices}
}

// planVWAP weights slices by the historical intraday volume curve
// instead of splitting evenly, so participation tracks the market's
// natural volume shape.
func (p *Planner) planVWAP(qty money.Decimal, nowMs int64, snapCurve []float64) ExecutionPlan {
	n := p.DefaultSliceCount
	if n < 1 {
		n = 1
	}
	weights := snapCurve
	if len(weights) == 0 && p.Curve != nil {
		weights = p.Curve.Weights()
	}
	if len(weights) == 0 {
		uniform := 1.0 / float64(n)
		weights = make([]float64, n)
		for i := range weights {
			weights[i] = uniform
		}
	}
	// Resample weights onto n buckets if the curve has a different
	// bucket count, by nearest-neighbor.
	bucketed := resampleWeights(weights, n)

	qtyF, _ := qty.Float64()
	slices := make([]Slice, 0, n)
	stepMs := p.DefaultHorizonMs / int64(n)
	allocated := money.Zero
	for i, w := range bucketed {
		sliceQty := money.FromFloat(qtyF * w)
		if i == n-1 {
			sliceQty = qty.Sub(allocated)
		}
		allocated = allocated.Add(sliceQty)
		slices = append(slices, Slice{Qty: sliceQty, ScheduledTsMs: nowMs + int64(i)*stepMs})
	}
	return ExecutionPlan{Strategy: PlanVWAP, TotalQty: qty, StartedTsMs: nowMs, Slices: slices}
}

// planIceberg shows only a small display quantity per slice, sized by
// split, so the full order never rests visibly on the book at once.
func (p *Planner) planIceberg(qty money.Decimal, nowMs int64, slip SlippageEstimate) ExecutionPlan {
	n := p.DefaultSliceCount * 2 // icebergs run more, smaller slices than TWAP
	slices := equalSlices(qty, n, nowMs, p.DefaultHorizonMs)
	displayFraction := 0.2
	if slip.Class == SlippageExtreme {
		displayFraction = 0.1
	}
	for i := range slices {
		df, _ := slices[i].Qty.Float64()
		slices[i].DisplayQty = money.FromFloat(df * displayFraction)
	}
	return ExecutionPlan{Strategy: PlanIceberg, TotalQty: qty, StartedTsMs: nowMs, Slices: slices}
}

// planAdaptive starts with TWAP-shaped slices but front-loads more size
// into earlier slices when current slippage is already elevated,
// trading a worse average price now against more market-impact risk
// later.
func (p *Planner) planAdaptive(qty money.Decimal, nowMs int64, slip SlippageEstimate) ExecutionPlan {
	n := p.DefaultSliceCount
	if n < 1 {
		n = 1
	}
	weights := make([]float64, n)
	sum := 0.0
	frontLoad := 1.0
	if slip.Class == SlippageHigh || slip.Class == SlippageExtreme {
		frontLoad = 1.6
	}
	denom := float64(n)
	if n > 1 {
		denom = float64(n - 1)
	}
	for i := range weights {
		// Linear decay from frontLoad down to 1.0 across the slices.
		decay := frontLoad - (frontLoad-1.0)*float64(i)/denom
		weights[i] = decay
		sum += decay
	}
	qtyF, _ := qty.Float64()
	stepMs := p.DefaultHorizonMs / int64(n)
	slices := make([]Slice, 0, n)
	allocated := money.Zero
	for i, w := range weights {
		sliceQty := money.FromFloat(qtyF * w / sum)
		if i == n-1 {
			sliceQty = qty.Sub(allocated)
		}
		allocated = allocated.Add(sliceQty)
		slices = append(slices, Slice{Qty: sliceQty, ScheduledTsMs: nowMs + int64(i)*stepMs})
	}
	return ExecutionPlan{Strategy: PlanAdaptive, TotalQty: qty, StartedTsMs: nowMs, Slices: slices}
}

func equalSlices(qty money.Decimal, n int, nowMs, horizonMs int64) []Slice {
	per := qty.Div(money.NewFromInt(int64(n)))
	stepMs := horizonMs / int64(n)
	slices := make([]Slice, n)
	allocated := money.Zero
	for i := 0; i < n; i++ {
		q := per
		if i == n-1 {
			q = qty.Sub(allocated)
		}
		allocated = allocated.Add(q)
		slices[i] = Slice{Qty: q, ScheduledTsMs: nowMs + int64(i)*stepMs}
	}
	return slices
}

func resampleWeights(weights []float64, n int) []float64 {
	if len(weights) == n {
		return weights
	}
	out := make([]float64, n)
	sum := 0.0
	for i := range out {
		srcIdx := i * len(weights) / n
		out[i] = weights[srcIdx]
		sum += out[i]
	}
	if sum <= 0 {
		uniform := 1.0 / float64(n)
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}
