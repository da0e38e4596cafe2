package strategy

import (
	"fmt"

	"quantforge/internal/bar"
	"quantforge/internal/indicator"
	"quantforge/internal/money"
)

// VolatilityStrategy implements the volatility-breakout variant: ATR
// breakout entries, gated by a Bollinger-bandwidth squeeze (low
// bandwidth ⇒ compression ⇒ the breakout is more likely genuine rather
// than noise) — the "volatility regime" classification this strategy runs is
// this squeeze/expansion read. New code implementing the named strategy
// set; no direct prior analogue (prior code never shipped a
// volatility-class strategy).
type VolatilityStrategy struct {
	cfg           Config
	atrPeriod     int
	bbPeriod      int
	breakoutMult  float64
	squeezeBWPctl float64
	w             *window
}

func NewVolatilityStrategy() Strategy { return &VolatilityStrategy{} }

func (s *VolatilityStrategy) Name() string { return "volatility_atr_breakout_squeeze" }

var volatilityAllowedParams = map[string]bool{
	"atr_period": true, "bb_period": true, "breakout_mult": true,
	"squeeze_bw_percentile": true, "window": true,
}

func (s *VolatilityStrategy) Initialize(cfg Config) error {
	if err := cfg.Validate(volatilityAllowedParams); err != nil {
		return err
	}
	s.cfg = cfg
	s.atrPeriod = intParamOr(cfg.Params, "atr_period", 14)
	s.bbPeriod = intParamOr(cfg.Params, "bb_period", 20)
	s.breakoutMult = floatParamOr(cfg.Params, "breakout_mult", 1.5)
	s.squeezeBWPctl = floatParamOr(cfg.Params, "squeeze_bw_percentile", 20)
	s.w = newWindow(intParamOr(cfg.Params, "window", 500))
	return nil
}

func (s *VolatilityStrategy) OnBar(b bar.Bar) ([]Signal, error) {
	s.w.push(b)
	closes := s.w.closes()
	highs := s.w.highs()
	lows := s.w.lows()
	if len(closes) < s.bbPeriod+60 {
		return nil, nil
	}

	bw := indicator.BollingerBandwidth(closes, s.bbPeriod, 2.0)
	if len(bw) < 60 {
		return nil, nil
	}
	pctile := indicator.PercentileRankVolatility(bw, 60)
	curPctile, ok := indicator.Last(pctile)
	if !ok {
		return nil, nil
	}
	squeezed := curPctile <= s.squeezeBWPctl

	atr := indicator.ATR(highs, lows, closes, s.atrPeriod)
	atrVal, ok := indicator.Last(atr)
	if !ok {
		return nil, nil
	}

	price := closes[len(closes)-1]
	prevPrice := closes[len(closes)-2]
	upBreak := price-prevPrice > s.breakoutMult*atrVal
	downBreak := prevPrice-price > s.breakoutMult*atrVal

	if !squeezed || (!upBreak && !downBreak) {
		return nil, nil
	}

	side := Buy
	if downBreak {
		side = Sell
	}

	var stopLoss, takeProfit float64
	if side == Buy {
		stopLoss = price - atrVal
		takeProfit = price + atrVal*2.5
	} else {
		stopLoss = price + atrVal
		takeProfit = price - atrVal*2.5
	}

	return []Signal{{
		Symbol: b.Symbol, Side: side, Intent: IntentOpen, Type: TypeMarket,
		StopLossPx:   money.FromFloat(stopLoss),
		TakeProfitPx: money.FromFloat(takeProfit),
		Urgency:      0.7, // breakouts need faster fills than mean-reversion entries
		Context:      map[string]interface{}{"bandwidth_percentile": curPctile, "atr": atrVal},
	}}, nil
}

func (s *VolatilityStrategy) StateSnapshot() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"bars":%d}`, len(s.w.bars))), nil
}
