// Package indicator implements the pure, stateless functions from a bar
// series to a derived indicator series. Every function
// follows a prior market/data.go calculate* style — float64
// throughout, warmup-aware, "too short ⇒ empty result, never panic"
// (an underfilled-window error condition) — generalized from single-value
// returns (prior code only ever needed the latest value) into full
// series so strategies can inspect slope/crossovers, not just the tip.
package indicator

import "math"

// Series is a derived indicator output aligned 1:1 with however many
// trailing input closes had enough warmup; Series[i] corresponds to
// closes[len(closes)-len(Series)+i].
type Series []float64

// SMA computes the simple moving average over period. Returns an empty
// Series if len(closes) < period.
func SMA(closes []float64, period int) Series {
	if period <= 0 || len(closes) < period {
		return Series{}
	}
	out := make(Series, 0, len(closes)-period+1)
	sum := 0.0
	for i, c := range closes {
		sum += c
		if i >= period {
			sum -= closes[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// EMA computes the exponential moving average, seeded with an SMA over
// the first period closes exactly as a prior calculateEMA helper does.
func EMA(closes []float64, period int) Series {
	if period <= 0 || len(closes) < period {
		return Series{}
	}
	sum := 0.0
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	ema := sum / float64(period)
	out := make(Series, 0, len(closes)-period+1)
	out = append(out, ema)

	mult := 2.0 / float64(period+1)
	for i := period; i < len(closes); i++ {
		ema = (closes[i]-ema)*mult + ema
		out = append(out, ema)
	}
	return out
}

// WMA computes the linearly-weighted moving average (most recent bar
// weighted highest); prior code did not include this one but
// MACD-adjacent literature universally pairs it with EMA/SMA.
func WMA(closes []float64, period int) Series {
	if period <= 0 || len(closes) < period {
		return Series{}
	}
	denom := float64(period*(period+1)) / 2
	out := make(Series, 0, len(closes)-period+1)
	for end := period; end <= len(closes); end++ {
		sum := 0.0
		for i := 0; i < period; i++ {
			weight := float64(i + 1)
			sum += closes[end-period+i] * weight
		}
		out = append(out, sum/denom)
	}
	return out
}

// VWMA computes the volume-weighted moving average.
func VWMA(closes, volumes []float64, period int) Series {
	if period <= 0 || len(closes) < period || len(closes) != len(volumes) {
		return Series{}
	}
	out := make(Series, 0, len(closes)-period+1)
	for end := period; end <= len(closes); end++ {
		var pv, v float64
		for i := end - period; i < end; i++ {
			pv += closes[i] * volumes[i]
			v += volumes[i]
		}
		if v == 0 {
			out = append(out, closes[end-1])
			continue
		}
		out = append(out, pv/v)
	}
	return out
}

// Last returns the final element of a Series and whether it is non-empty.
func Last(s Series) (float64, bool) {
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

func maxFloat(a, b float64) float64 {
	return math.Max(a, b)
}

func absFloat(a float64) float64 {
	return math.Abs(a)
}
