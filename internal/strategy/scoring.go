package strategy

import "math"

// scoreRSI maps an RSI reading to a 0-100 "opportunity" score, peaking
// in the 40-60 neutral band and penalizing overbought/oversold extremes.
// Grounded verbatim on decision/localfunc.go's genetic-model RSI factor.
func scoreRSI(rsi float64) float64 {
	switch {
	case rsi >= 40 && rsi <= 60:
		return 100 - math.Abs(rsi-50)*5
	case rsi > 60 && rsi <= 70:
		return 60 - (rsi-60)*4
	case rsi > 70:
		return math.Max(0, 20-(rsi-70)*2)
	case rsi >= 30 && rsi < 40:
		return 60 - (40-rsi)*4
	default:
		return math.Max(0, 20-(30-rsi)*2)
	}
}

// scoreMACD maps a MACD line value and its prior reading to a 0-100
// score. Grounded on decision/localfunc.go's genetic-model MACD factor.
func scoreMACD(macd, macdPrev float64) float64 {
	rising := macd > macdPrev
	switch {
	case macd > 0 && rising:
		return 100
	case macd > 0 && !rising:
		return 70
	case macd < 0 && rising:
		return 50
	case macd < 0 && !rising:
		return 10
	default:
		return 50
	}
}

// scoreVolumeRatio maps current-vs-average volume ratio to a 0-100
// score. Grounded on decision/localfunc.go's genetic-model volume
// factor.
func scoreVolumeRatio(ratio float64) float64 {
	switch {
	case ratio >= 3.0:
		return 100
	case ratio >= 2.0:
		return 85
	case ratio >= 1.5:
		return 70
	case ratio >= 1.0:
		return 50
	case ratio >= 0.5:
		return 25
	default:
		return 5
	}
}

// Chromosome is a weighted-factor scoring profile, grounded directly on
// decision/localfunc.go's geneticChromosome: five factor weights plus an
// entry threshold and ATR-multiple TP/SL. Used by the trend strategy
// as its composite signal-strength function instead of a prior stock-specific "buy the whole market" scan.
type Chromosome struct {
	Name        string
	RSIWeight   float64
	MACDWeight  float64
	VolWeight   float64
	MomWeight   float64
	VWAPWeight  float64
	EntryThresh float64
	TPMult      float64
	SLMult      float64
}

// Chromosomes are the three pre-evolved profiles, carried
// forward unchanged in spirit (aggressive/balanced/conservative) and
// now keyed by strategy.Mode instead of a free-form model name string.
var Chromosomes = map[Mode]Chromosome{
	ModeAggressive: {
		Name: "Aggressive Momentum",
		RSIWeight: 15, MACDWeight: 20, VolWeight: 30, MomWeight: 25, VWAPWeight: 10,
		EntryThresh: 55, TPMult: 3.0, SLMult: 1.0,
	},
	ModeBalanced: {
		Name: "Balanced Value",
		RSIWeight: 25, MACDWeight: 20, VolWeight: 20, MomWeight: 15, VWAPWeight: 20,
		EntryThresh: 65, TPMult: 2.5, SLMult: 1.5,
	},
	ModeConservative: {
		Name: "Conservative Safe",
		RSIWeight: 20, MACDWeight: 15, VolWeight: 15, MomWeight: 10, VWAPWeight: 40,
		EntryThresh: 75, TPMult: 2.0, SLMult: 2.0,
	},
}

// CompositeScore combines the five 0-100 factor scores into a single
// weighted 0-100 score using c's weights, mirroring
// decision/localfunc.go's localFuncGenetic composite formula.
func (c Chromosome) CompositeScore(rsiScore, macdScore, volScore, momScore, vwapScore float64) float64 {
	totalWeight := c.RSIWeight + c.MACDWeight + c.VolWeight + c.MomWeight + c.VWAPWeight
	if totalWeight == 0 {
		return 0
	}
	weighted := rsiScore*c.RSIWeight + macdScore*c.MACDWeight + volScore*c.VolWeight +
		momScore*c.MomWeight + vwapScore*c.VWAPWeight
	return weighted / totalWeight
}

// scoreMomentum maps a momentum fraction
// ((close - close[n-period]) / close[n-period]) linearly to a 0-100
// score: 50 at zero, clamped at ±5%, so -0.05 scores 0 and +0.05
// scores 100.
func scoreMomentum(momentumPct float64) float64 {
	// momentumPct expected roughly in [-0.05, 0.05]; map to [0,100] with
	// 50 at zero.
	clamped := math.Max(-0.05, math.Min(0.05, momentumPct))
	return 50 + clamped*1000
}

// scoreVWAPDistance maps (price-vwap)/vwap to a 0-100 score: being close
// to or just above VWAP scores highest (confirmed support), consistent
// with decision/localfunc.go's VWAP-proximity factor philosophy.
func scoreVWAPDistance(distPct float64) float64 {
	d := math.Abs(distPct)
	if distPct < 0 {
		// below VWAP: penalize harder
		return math.Max(0, 50-d*1000)
	}
	if d <= 0.005 {
		return 100 - d*2000 // within 0.5%: near-perfect
	}
	return math.Max(0, 90-d*800)
}
