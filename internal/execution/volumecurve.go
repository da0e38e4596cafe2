package execution

import (
	"sync"
)

// VolumeCurve accumulates, across multiple trading sessions, what
// fraction of a session's total volume trades in each intraday bucket
// (e.g. one bucket per 5-minute interval since session open). A VWAP
// execution plan slices its total quantity in proportion to this curve
// so its own participation tracks the market's natural volume shape
// instead of spreading evenly like TWAP.
//
// Generalized from a single-symbol, single-day volume/VWAP collector
// into a multi-session curve estimator: that collector tracked one
// day's bars to compute same-day VWAP/slope/stretch for an entry
// decision; this collector instead accumulates bucket volume shares
// across many closed sessions to produce a forward-looking slice-weight
// curve for a different symbol's execution.
type VolumeCurve struct {
	mu sync.Mutex

	buckets     int       // number of intraday buckets the session is divided into
	totals      []float64 // running sum of volume observed in each bucket across sessions
	sessions    int       // number of completed sessions folded in
	curBucket   []float64 // volume accumulating for the in-progress session
	curFilled   bool
}

// NewVolumeCurve constructs a curve with the given bucket count.
func NewVolumeCurve(buckets int) *VolumeCurve {
	if buckets < 1 {
		buckets = 1
	}
	return &VolumeCurve{
		buckets:   buckets,
		totals:    make([]float64, buckets),
		curBucket: make([]float64, buckets),
	}
}

// Observe folds one bar's volume into the in-progress session's bucket,
// indexed by its position within the session (0 is session open).
func (c *VolumeCurve) Observe(bucketIndex int, volume float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if bucketIndex < 0 {
		bucketIndex = 0
	}
	if bucketIndex >= c.buckets {
		bucketIndex = c.buckets - 1
	}
	c.curBucket[bucketIndex] += volume
	c.curFilled = true
}

// CloseSession folds the in-progress session into the running totals
// and resets for the next session.
func (c *VolumeCurve) CloseSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.curFilled {
		return
	}
	for i, v := range c.curBucket {
		c.totals[i] += v
		c.curBucket[i] = 0
	}
	c.sessions++
	c.curFilled = false
}

// Weights returns the current estimated volume-curve weights, one per
// bucket, summing to 1. With no completed sessions it falls back to a
// uniform curve so a cold-started plan still slices sensibly.
func (c *VolumeCurve) Weights() []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]float64, c.buckets)
	sum := 0.0
	for _, v := range c.totals {
		sum += v
	}
	if c.sessions == 0 || sum <= 0 {
		uniform := 1.0 / float64(c.buckets)
		for i := range out {
			out[i] = uniform
		}
		return out
	}
	for i, v := range c.totals {
		out[i] = v / sum
	}
	return out
}

// Sessions reports how many complete sessions have been folded in.
func (c *VolumeCurve) Sessions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions
}
