package strategy

import (
	"fmt"

	"quantforge/internal/bar"
	"quantforge/internal/indicator"
	"quantforge/internal/money"
)

// MeanReversionStrategy implements the mean-reversion variant:
// RSI extremes confirmed by a Bollinger-band touch. Supplemental to the
// teacher (which only ever scored RSI as one factor among five, never as
// a standalone mean-reversion rule) — built in the same
// warmup-gated/composite-score idiom as TrendStrategy.
type MeanReversionStrategy struct {
	cfg           Config
	rsiPeriod     int
	bbPeriod      int
	bbStdDev      float64
	oversoldRSI   float64
	overboughtRSI float64
	w             *window
}

func NewMeanReversionStrategy() Strategy { return &MeanReversionStrategy{} }

func (s *MeanReversionStrategy) Name() string { return "mean_reversion_rsi_bollinger" }

var meanReversionAllowedParams = map[string]bool{
	"rsi_period": true, "bb_period": true, "bb_stddev": true,
	"oversold": true, "overbought": true, "window": true,
}

func (s *MeanReversionStrategy) Initialize(cfg Config) error {
	if err := cfg.Validate(meanReversionAllowedParams); err != nil {
		return err
	}
	s.cfg = cfg
	s.rsiPeriod = intParamOr(cfg.Params, "rsi_period", 14)
	s.bbPeriod = intParamOr(cfg.Params, "bb_period", 20)
	s.bbStdDev = floatParamOr(cfg.Params, "bb_stddev", 2.0)
	s.oversoldRSI = floatParamOr(cfg.Params, "oversold", 30)
	s.overboughtRSI = floatParamOr(cfg.Params, "overbought", 70)
	s.w = newWindow(intParamOr(cfg.Params, "window", 500))
	return nil
}

func (s *MeanReversionStrategy) OnBar(b bar.Bar) ([]Signal, error) {
	s.w.push(b)
	closes := s.w.closes()
	if len(closes) < s.bbPeriod+2 {
		return nil, nil
	}

	rsiSeries := indicator.RSI(closes, s.rsiPeriod)
	rsiVal, ok := indicator.Last(rsiSeries)
	if !ok {
		return nil, nil
	}
	_, upper, lower := indicator.BollingerBands(closes, s.bbPeriod, s.bbStdDev)
	if len(upper) == 0 {
		return nil, nil
	}
	price := closes[len(closes)-1]
	upperBand := upper[len(upper)-1]
	lowerBand := lower[len(lower)-1]

	var side Side
	switch {
	case rsiVal <= s.oversoldRSI && price <= lowerBand:
		side = Buy
	case rsiVal >= s.overboughtRSI && price >= upperBand:
		side = Sell
	default:
		return nil, nil
	}

	profile := s.cfg.Mode.Profile()
	strength := 50.0
	if side == Buy {
		strength = 100 - rsiVal
	} else {
		strength = rsiVal
	}
	if strength < profile.EntryThreshold {
		return nil, nil
	}

	atr := indicator.ATR(s.w.highs(), s.w.lows(), closes, 14)
	atrVal := 0.0
	if v, ok := indicator.Last(atr); ok {
		atrVal = v
	}
	var stopLoss, takeProfit float64
	if side == Buy {
		stopLoss = price - atrVal*1.5
		takeProfit = lowerBand + (upperBand-lowerBand)/2 // reversion target: mid band
	} else {
		stopLoss = price + atrVal*1.5
		takeProfit = upperBand - (upperBand-lowerBand)/2
	}

	return []Signal{{
		Symbol: b.Symbol, Side: side, Intent: IntentOpen, Type: TypeMarket,
		StopLossPx:   money.FromFloat(stopLoss),
		TakeProfitPx: money.FromFloat(takeProfit),
		Urgency:      0.3,
		Context:      map[string]interface{}{"rsi": rsiVal, "strength": strength},
	}}, nil
}

func (s *MeanReversionStrategy) StateSnapshot() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"bars":%d}`, len(s.w.bars))), nil
}

func floatParamOr(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}
