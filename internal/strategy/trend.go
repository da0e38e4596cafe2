package strategy

import (
	"fmt"

	"quantforge/internal/bar"
	"quantforge/internal/indicator"
	"quantforge/internal/money"
)

// TrendStrategy implements the trend-following variant: dual-SMA
// crossover confirmed by MACD, gated by a genetic-chromosome composite
// score (scoring.go) so entries only fire above the Mode's threshold.
// Grounded on decision/localfunc.go's localFuncGenetic dispatch and
// composite-score gate, re-targeted from a stock-universe scan onto a
// single symbol's bar stream.
type TrendStrategy struct {
	cfg        Config
	fastPeriod int
	slowPeriod int
	w          *window
	lastSide   Side
	hasSide    bool
}

// NewTrendStrategy is this strategy's Factory.
func NewTrendStrategy() Strategy { return &TrendStrategy{} }

func (s *TrendStrategy) Name() string { return "trend_dual_sma_macd" }

var trendAllowedParams = map[string]bool{"fast_period": true, "slow_period": true, "window": true}

func (s *TrendStrategy) Initialize(cfg Config) error {
	if err := cfg.Validate(trendAllowedParams); err != nil {
		return err
	}
	s.cfg = cfg
	s.fastPeriod = intParamOr(cfg.Params, "fast_period", 10)
	s.slowPeriod = intParamOr(cfg.Params, "slow_period", 30)
	if s.fastPeriod >= s.slowPeriod {
		return fmt.Errorf("trend strategy: fast_period must be < slow_period")
	}
	s.w = newWindow(intParamOr(cfg.Params, "window", 500))
	return nil
}

func (s *TrendStrategy) OnBar(b bar.Bar) ([]Signal, error) {
	s.w.push(b)
	closes := s.w.closes()
	if len(closes) < s.slowPeriod+2 {
		return nil, nil
	}

	fastSMA := indicator.SMA(closes, s.fastPeriod)
	slowSMA := indicator.SMA(closes, s.slowPeriod)
	if len(fastSMA) < 2 || len(slowSMA) < 2 {
		return nil, nil
	}
	fOff := len(fastSMA) - len(slowSMA)
	curFast, prevFast := fastSMA[len(fastSMA)-1], fastSMA[fOff+len(slowSMA)-2]
	curSlow, prevSlow := slowSMA[len(slowSMA)-1], slowSMA[len(slowSMA)-2]

	crossUp := prevFast <= prevSlow && curFast > curSlow
	crossDown := prevFast >= prevSlow && curFast < curSlow
	if !crossUp && !crossDown {
		return nil, nil
	}

	line, _, _ := indicator.MACD(closes)
	macdCur, macdPrev := 0.0, 0.0
	if len(line) >= 2 {
		macdCur = line[len(line)-1]
		macdPrev = line[len(line)-2]
	}
	rsi := indicator.RSI(closes, 14)
	rsiVal := 50.0
	if v, ok := indicator.Last(rsi); ok {
		rsiVal = v
	}
	volumes := s.w.volumes()
	volRatio := volumeRatio(volumes)
	momentumPct := 0.0
	if len(closes) > 10 {
		momentumPct = (closes[len(closes)-1] - closes[len(closes)-11]) / closes[len(closes)-11]
	}

	chromo := Chromosomes[s.cfg.Mode]
	if chromo.Name == "" {
		chromo = Chromosomes[ModeBalanced]
	}
	score := chromo.CompositeScore(
		scoreRSI(rsiVal),
		scoreMACD(macdCur, macdPrev),
		scoreVolumeRatio(volRatio),
		scoreMomentum(momentumPct),
		50, // VWAP factor not available to this strategy; neutral weight
	)
	profile := s.cfg.Mode.Profile()
	if score < profile.EntryThreshold {
		return nil, nil
	}

	side := Buy
	if crossDown {
		side = Sell
	}
	if s.hasSide && s.lastSide == side {
		return nil, nil // avoid re-signaling the same direction repeatedly
	}
	s.hasSide = true
	s.lastSide = side

	atr := indicator.ATR(s.w.highs(), s.w.lows(), closes, 14)
	atrVal := 0.0
	if v, ok := indicator.Last(atr); ok {
		atrVal = v
	}
	entry := closes[len(closes)-1]
	var stopLoss, takeProfit float64
	if side == Buy {
		stopLoss = entry - atrVal*chromo.SLMult
		takeProfit = entry + atrVal*chromo.TPMult
	} else {
		stopLoss = entry + atrVal*chromo.SLMult
		takeProfit = entry - atrVal*chromo.TPMult
	}

	return []Signal{{
		Symbol: b.Symbol, Side: side, Intent: IntentOpen, Type: TypeMarket,
		StopLossPx:   money.FromFloat(stopLoss),
		TakeProfitPx: money.FromFloat(takeProfit),
		Urgency:      0.4,
		Context:      map[string]interface{}{"score": score, "chromosome": chromo.Name},
	}}, nil
}

func (s *TrendStrategy) StateSnapshot() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"last_side":%q,"bars":%d}`, s.lastSide, len(s.w.bars))), nil
}

func intParamOr(params map[string]float64, key string, def int) int {
	if v, ok := params[key]; ok {
		return int(v)
	}
	return def
}

func volumeRatio(volumes []float64) float64 {
	n := len(volumes)
	if n < 2 {
		return 1
	}
	lookback := 20
	if lookback > n-1 {
		lookback = n - 1
	}
	avg := 0.0
	for i := n - 1 - lookback; i < n-1; i++ {
		avg += volumes[i]
	}
	if lookback == 0 {
		return 1
	}
	avg /= float64(lookback)
	if avg == 0 {
		return 1
	}
	return volumes[n-1] / avg
}
