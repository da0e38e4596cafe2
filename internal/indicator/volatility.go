package indicator

import "math"

// TrueRange returns the per-bar true range series (needs the prior
// close, so output has length len(closes)-1).
func TrueRange(highs, lows, closes []float64) Series {
	n := len(closes)
	if n < 2 || n != len(highs) || n != len(lows) {
		return Series{}
	}
	out := make(Series, 0, n-1)
	for i := 1; i < n; i++ {
		tr1 := highs[i] - lows[i]
		tr2 := absFloat(highs[i] - closes[i-1])
		tr3 := absFloat(lows[i] - closes[i-1])
		out = append(out, maxFloat(tr1, maxFloat(tr2, tr3)))
	}
	return out
}

// ATR computes Wilder-smoothed average true range, matching the
// teacher's calculateATR recurrence generalized to a full series.
func ATR(highs, lows, closes []float64, period int) Series {
	n := len(closes)
	if period <= 0 || n <= period || n != len(highs) || n != len(lows) {
		return Series{}
	}
	trs := make([]float64, n)
	for i := 1; i < n; i++ {
		tr1 := highs[i] - lows[i]
		tr2 := absFloat(highs[i] - closes[i-1])
		tr3 := absFloat(lows[i] - closes[i-1])
		trs[i] = maxFloat(tr1, maxFloat(tr2, tr3))
	}

	sum := 0.0
	for i := 1; i <= period; i++ {
		sum += trs[i]
	}
	atr := sum / float64(period)
	out := make(Series, 0, n-period)
	out = append(out, atr)

	for i := period + 1; i < n; i++ {
		atr = (atr*float64(period-1) + trs[i]) / float64(period)
		out = append(out, atr)
	}
	return out
}

// BollingerBands returns the middle (SMA), upper, and lower bands at
// numStdDev standard deviations over period.
func BollingerBands(closes []float64, period int, numStdDev float64) (mid, upper, lower Series) {
	mid = SMA(closes, period)
	if len(mid) == 0 {
		return Series{}, Series{}, Series{}
	}
	upper = make(Series, len(mid))
	lower = make(Series, len(mid))
	for i := range mid {
		end := period + i
		variance := 0.0
		for j := end - period; j < end; j++ {
			d := closes[j] - mid[i]
			variance += d * d
		}
		stddev := math.Sqrt(variance / float64(period))
		upper[i] = mid[i] + numStdDev*stddev
		lower[i] = mid[i] - numStdDev*stddev
	}
	return mid, upper, lower
}

// BollingerBandwidth computes (upper-lower)/middle, used by the
// volatility-regime / Bollinger-width-squeeze strategy.
func BollingerBandwidth(closes []float64, period int, numStdDev float64) Series {
	mid, upper, lower := BollingerBands(closes, period, numStdDev)
	if len(mid) == 0 {
		return Series{}
	}
	out := make(Series, len(mid))
	for i := range mid {
		if mid[i] == 0 {
			out[i] = 0
			continue
		}
		out[i] = (upper[i] - lower[i]) / mid[i]
	}
	return out
}

// KeltnerChannels returns the middle (EMA), upper, and lower channels
// using an ATR multiple, the trend-following sibling of Bollinger bands.
func KeltnerChannels(highs, lows, closes []float64, emaPeriod, atrPeriod int, atrMult float64) (mid, upper, lower Series) {
	mid = EMA(closes, emaPeriod)
	atr := ATR(highs, lows, closes, atrPeriod)
	if len(mid) == 0 || len(atr) == 0 {
		return Series{}, Series{}, Series{}
	}
	n := len(mid)
	if len(atr) < n {
		n = len(atr)
	}
	mid = mid[len(mid)-n:]
	atr = atr[len(atr)-n:]
	upper = make(Series, n)
	lower = make(Series, n)
	for i := 0; i < n; i++ {
		upper[i] = mid[i] + atrMult*atr[i]
		lower[i] = mid[i] - atrMult*atr[i]
	}
	return mid, upper, lower
}

// PercentileRankVolatility computes, for each point, what percentile the
// trailing-window ATR reading falls at relative to a longer lookback —
// used to classify "is current volatility high for this instrument".
func PercentileRankVolatility(atr Series, lookback int) Series {
	if lookback <= 0 || len(atr) < lookback {
		return Series{}
	}
	out := make(Series, 0, len(atr)-lookback+1)
	for end := lookback; end <= len(atr); end++ {
		window := atr[end-lookback : end]
		current := window[len(window)-1]
		below := 0
		for _, v := range window {
			if v <= current {
				below++
			}
		}
		out = append(out, float64(below)/float64(len(window))*100)
	}
	return out
}
