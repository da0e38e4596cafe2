package execution

import (
	"quantforge/internal/bar"
	"quantforge/internal/money"
	"quantforge/internal/strategy"
)

// SlippageClass buckets estimated slippage into the severity set gates
// and sizing consult.
type SlippageClass string

const (
	SlippageLow      SlippageClass = "low"
	SlippageMedium   SlippageClass = "medium"
	SlippageHigh     SlippageClass = "high"
	SlippageExtreme  SlippageClass = "extreme"
)

// SlippageEstimate is the result of walking the book for a given side
// and quantity.
type SlippageEstimate struct {
	Class        SlippageClass
	VWAPPx       money.Decimal // volume-weighted fill price if filled entirely at current depth
	MidPx        money.Decimal
	BasisPoints  float64 // (vwap - mid) / mid in bps, sign per side
	FullyFillable bool   // false if qty exceeds total visible depth
	SuggestSplit bool
}

// classThresholds maps basis-point deviation to severity. Widening
// these per symbol is left to the caller; these are sane defaults for
// a liquid perp/spot book.
var classThresholds = []struct {
	bps   float64
	class SlippageClass
}{
	{5, SlippageLow},
	{20, SlippageMedium},
	{60, SlippageHigh},
}

// WalkBook estimates the volume-weighted average fill price for buying
// or selling qty against the given book, classifying the resulting
// slippage against mid. Grounded on the same walk-the-book idea used
// for smart limit pricing against best bid/ask, generalized here from
// "peek at best quote" into "walk multiple levels until qty is filled".
func WalkBook(book bar.OrderBook, side strategy.Side, qty money.Decimal) SlippageEstimate {
	midF, hasMid := book.Mid()
	mid := money.FromFloat(midF)
	if !hasMid {
		mid = money.Zero
	}
	levels := book.Asks
	if side == strategy.Sell {
		levels = book.Bids
	}

	remaining := qty
	filledNotional := money.Zero
	filledQty := money.Zero
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(money.Zero) {
			break
		}
		take := lvl.Size
		if take.GreaterThan(remaining) {
			take = remaining
		}
		filledNotional = filledNotional.Add(take.Mul(lvl.Price))
		filledQty = filledQty.Add(take)
		remaining = remaining.Sub(take)
	}

	fullyFillable := remaining.LessThanOrEqual(money.Zero)

	vwapPx := mid
	if filledQty.IsPositive() {
		vwapPx = filledNotional.Div(filledQty)
	}

	bps := 0.0
	if mid.IsPositive() {
		delta := vwapPx.Sub(mid)
		if side == strategy.Sell {
			delta = mid.Sub(vwapPx)
		}
		bps, _ = delta.Div(mid).Mul(money.NewFromInt(10000)).Float64()
	}

	class := SlippageLow
	for _, t := range classThresholds {
		if bps > t.bps {
			class = nextClass(t.class)
		}
	}
	if !fullyFillable {
		class = SlippageExtreme
	}

	return SlippageEstimate{
		Class:         class,
		VWAPPx:        vwapPx,
		MidPx:         mid,
		BasisPoints:   bps,
		FullyFillable: fullyFillable,
		SuggestSplit:  class == SlippageHigh || class == SlippageExtreme,
	}
}

func nextClass(c SlippageClass) SlippageClass {
	switch c {
	case SlippageLow:
		return SlippageMedium
	case SlippageMedium:
		return SlippageHigh
	default:
		return SlippageExtreme
	}
}

// DefaultMaxSlippageBps maps a signal's urgency (0-1) onto the maximum
// basis-point slippage the risk pipeline's liquidity/slippage gate
// allows: the more urgent the signal, the more slippage it tolerates.
func DefaultMaxSlippageBps(urgency float64) float64 {
	switch {
	case urgency >= 0.75:
		return 60
	case urgency >= 0.5:
		return 20
	case urgency >= 0.25:
		return 10
	default:
		return 5
	}
}
