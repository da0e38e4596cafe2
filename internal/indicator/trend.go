package indicator

import "math"

// ADX computes the average directional index over period, classifying
// trend strength (not direction) — used by the trend-following strategy
// variant to decide whether dual-SMA/MACD signals should be trusted.
func ADX(highs, lows, closes []float64, period int) Series {
	n := len(closes)
	if period <= 0 || n <= period*2 || n != len(highs) || n != len(lows) {
		return Series{}
	}

	plusDM := make([]float64, n)
	minusDM := make([]float64, n)
	tr := make([]float64, n)
	for i := 1; i < n; i++ {
		upMove := highs[i] - highs[i-1]
		downMove := lows[i-1] - lows[i]
		if upMove > downMove && upMove > 0 {
			plusDM[i] = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM[i] = downMove
		}
		tr1 := highs[i] - lows[i]
		tr2 := absFloat(highs[i] - closes[i-1])
		tr3 := absFloat(lows[i] - closes[i-1])
		tr[i] = maxFloat(tr1, maxFloat(tr2, tr3))
	}

	smooth := func(vals []float64) []float64 {
		out := make([]float64, len(vals))
		sum := 0.0
		for i := 1; i <= period; i++ {
			sum += vals[i]
		}
		out[period] = sum
		for i := period + 1; i < len(vals); i++ {
			out[i] = out[i-1] - out[i-1]/float64(period) + vals[i]
		}
		return out
	}
	smTR := smooth(tr)
	smPlusDM := smooth(plusDM)
	smMinusDM := smooth(minusDM)

	dx := make([]float64, n)
	for i := period; i < n; i++ {
		if smTR[i] == 0 {
			continue
		}
		plusDI := 100 * smPlusDM[i] / smTR[i]
		minusDI := 100 * smMinusDM[i] / smTR[i]
		denom := plusDI + minusDI
		if denom == 0 {
			continue
		}
		dx[i] = 100 * absFloat(plusDI-minusDI) / denom
	}

	start := period * 2
	if start >= n {
		return Series{}
	}
	sum := 0.0
	for i := period; i < start; i++ {
		sum += dx[i]
	}
	adx := sum / float64(period)
	out := make(Series, 0, n-start)
	out = append(out, adx)
	for i := start; i < n; i++ {
		adx = (adx*float64(period-1) + dx[i]) / float64(period)
		out = append(out, adx)
	}
	return out
}

// ParabolicSAR computes the parabolic stop-and-reverse series with the
// conventional af step 0.02 and max 0.2.
func ParabolicSAR(highs, lows []float64) Series {
	n := len(highs)
	if n < 2 || n != len(lows) {
		return Series{}
	}
	const afStep = 0.02
	const afMax = 0.2

	out := make(Series, n)
	uptrend := highs[1] >= highs[0]
	af := afStep
	var ep, sar float64
	if uptrend {
		sar = lows[0]
		ep = highs[0]
	} else {
		sar = highs[0]
		ep = lows[0]
	}
	out[0] = sar

	for i := 1; i < n; i++ {
		sar = sar + af*(ep-sar)
		if uptrend {
			if lows[i] < sar {
				uptrend = false
				sar = ep
				ep = lows[i]
				af = afStep
			} else {
				if highs[i] > ep {
					ep = highs[i]
					af = math.Min(af+afStep, afMax)
				}
			}
		} else {
			if highs[i] > sar {
				uptrend = true
				sar = ep
				ep = highs[i]
				af = afStep
			} else {
				if lows[i] < ep {
					ep = lows[i]
					af = math.Min(af+afStep, afMax)
				}
			}
		}
		out[i] = sar
	}
	return out
}

// OBV computes on-balance volume, a cumulative running series.
func OBV(closes, volumes []float64) Series {
	n := len(closes)
	if n == 0 || n != len(volumes) {
		return Series{}
	}
	out := make(Series, n)
	for i := 1; i < n; i++ {
		switch {
		case closes[i] > closes[i-1]:
			out[i] = out[i-1] + volumes[i]
		case closes[i] < closes[i-1]:
			out[i] = out[i-1] - volumes[i]
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// VolumeROC computes the rate of change of volume over period bars.
func VolumeROC(volumes []float64, period int) Series {
	return ROC(volumes, period)
}

// Momentum computes closes[i] - closes[i-period].
func Momentum(closes []float64, period int) Series {
	if period <= 0 || len(closes) <= period {
		return Series{}
	}
	out := make(Series, 0, len(closes)-period)
	for i := period; i < len(closes); i++ {
		out = append(out, closes[i]-closes[i-period])
	}
	return out
}

// ROC computes the percentage rate of change over period.
func ROC(closes []float64, period int) Series {
	if period <= 0 || len(closes) <= period {
		return Series{}
	}
	out := make(Series, 0, len(closes)-period)
	for i := period; i < len(closes); i++ {
		if closes[i-period] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (closes[i]-closes[i-period])/closes[i-period]*100)
	}
	return out
}
