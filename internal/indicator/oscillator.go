package indicator

import "math"

// RSI computes the Wilder-smoothed relative strength index, the same
// smoothing recurrence as a prior calculateRSI helper, generalized to
// return the whole smoothed series rather than only the final value.
func RSI(closes []float64, period int) Series {
	if period <= 0 || len(closes) <= period {
		return Series{}
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains += change
		} else {
			losses += -change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	out := make(Series, 0, len(closes)-period)
	out = append(out, rsiFromAverages(avgGain, avgLoss))

	for i := period + 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			avgGain = (avgGain*float64(period-1) + change) / float64(period)
			avgLoss = (avgLoss * float64(period-1)) / float64(period)
		} else {
			avgGain = (avgGain * float64(period-1)) / float64(period)
			avgLoss = (avgLoss*float64(period-1) + (-change)) / float64(period)
		}
		out = append(out, rsiFromAverages(avgGain, avgLoss))
	}
	return out
}

func rsiFromAverages(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

// Stochastic computes %K over period using high/low/close series.
func Stochastic(highs, lows, closes []float64, period int) Series {
	n := len(closes)
	if period <= 0 || n < period || n != len(highs) || n != len(lows) {
		return Series{}
	}
	out := make(Series, 0, n-period+1)
	for end := period; end <= n; end++ {
		hh, ll := highs[end-period], lows[end-period]
		for i := end - period; i < end; i++ {
			hh = maxFloat(hh, highs[i])
			ll = math.Min(ll, lows[i])
		}
		if hh == ll {
			out = append(out, 50)
			continue
		}
		k := (closes[end-1] - ll) / (hh - ll) * 100
		out = append(out, k)
	}
	return out
}

// WilliamsR computes Williams %R, the mirrored-range counterpart of
// Stochastic %K (%R = %K - 100).
func WilliamsR(highs, lows, closes []float64, period int) Series {
	k := Stochastic(highs, lows, closes, period)
	out := make(Series, len(k))
	for i, v := range k {
		out[i] = v - 100
	}
	return out
}

// CCI computes the commodity channel index over period.
func CCI(highs, lows, closes []float64, period int) Series {
	n := len(closes)
	if period <= 0 || n < period || n != len(highs) || n != len(lows) {
		return Series{}
	}
	typical := make([]float64, n)
	for i := range closes {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3
	}
	out := make(Series, 0, n-period+1)
	for end := period; end <= n; end++ {
		sum := 0.0
		for i := end - period; i < end; i++ {
			sum += typical[i]
		}
		mean := sum / float64(period)
		meanDev := 0.0
		for i := end - period; i < end; i++ {
			meanDev += absFloat(typical[i] - mean)
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (typical[end-1]-mean)/(0.015*meanDev))
	}
	return out
}

// MACD returns the MACD line, signal line (9-period EMA of the MACD
// line), and histogram, following a prior calculateMACD formula
// (EMA12 - EMA26) generalized into the full three-series indicator.
func MACD(closes []float64) (line, signal, histogram Series) {
	if len(closes) < 26 {
		return Series{}, Series{}, Series{}
	}
	ema12 := EMA(closes, 12)
	ema26 := EMA(closes, 26)
	// ema12 is longer than ema26 by (26-12); align on the tail.
	offset := len(ema12) - len(ema26)
	line = make(Series, len(ema26))
	for i := range ema26 {
		line[i] = ema12[i+offset] - ema26[i]
	}
	signal = EMA(line, 9)
	sigOffset := len(line) - len(signal)
	histogram = make(Series, len(signal))
	for i := range signal {
		histogram[i] = line[i+sigOffset] - signal[i]
	}
	return line, signal, histogram
}

// MFI computes the money flow index over period, the volume-weighted
// analogue of RSI.
func MFI(highs, lows, closes, volumes []float64, period int) Series {
	n := len(closes)
	if period <= 0 || n <= period || n != len(highs) || n != len(lows) || n != len(volumes) {
		return Series{}
	}
	typical := make([]float64, n)
	rawFlow := make([]float64, n)
	for i := range closes {
		typical[i] = (highs[i] + lows[i] + closes[i]) / 3
		rawFlow[i] = typical[i] * volumes[i]
	}
	out := make(Series, 0, n-period)
	for end := period + 1; end <= n; end++ {
		posFlow, negFlow := 0.0, 0.0
		for i := end - period; i < end; i++ {
			if typical[i] > typical[i-1] {
				posFlow += rawFlow[i]
			} else if typical[i] < typical[i-1] {
				negFlow += rawFlow[i]
			}
		}
		if negFlow == 0 {
			out = append(out, 100)
			continue
		}
		ratio := posFlow / negFlow
		out = append(out, 100-(100/(1+ratio)))
	}
	return out
}
