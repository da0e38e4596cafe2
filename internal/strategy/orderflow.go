package strategy

import (
	"fmt"

	"quantforge/internal/bar"
	"quantforge/internal/money"
)

// OrderFlowStrategy implements the order-flow variant: volume
// spike + VWAP-deviation + taker-ratio. The VWAP/slope/stretch/momentum
// entry rule is grounded directly on
// decision/engine.go's calculateVWAPSlopeStretchWithAnalysis — price
// above a rising session VWAP, not overextended (stretch < 0.5×
// opening-range volatility), with confirming momentum
// (> 0.25× opening-range volatility) — generalized from an
// equities opening-range/9:30-entry-time rule (no market open/close in
// crypto) into a rolling-session VWAP computed over the strategy's own
// window, and from "single EOD decision" into "continuous per-bar
// evaluation". No taker-ratio (aggressive buy vs sell volume) term is
// computed: OnTicker ignores ticker updates and the entry rule reads
// bars only.
type OrderFlowStrategy struct {
	cfg              Config
	volumeSpikeRatio float64
	stretchFactor    float64
	momentumFactor   float64
	w                *window
}

func NewOrderFlowStrategy() Strategy { return &OrderFlowStrategy{} }

func (s *OrderFlowStrategy) Name() string { return "order_flow_vwap_stretch_momentum" }

var orderFlowAllowedParams = map[string]bool{
	"volume_spike_ratio": true, "stretch_factor": true, "momentum_factor": true, "window": true,
}

func (s *OrderFlowStrategy) Initialize(cfg Config) error {
	if err := cfg.Validate(orderFlowAllowedParams); err != nil {
		return err
	}
	s.cfg = cfg
	s.volumeSpikeRatio = floatParamOr(cfg.Params, "volume_spike_ratio", 2.0)
	s.stretchFactor = floatParamOr(cfg.Params, "stretch_factor", 0.5)
	s.momentumFactor = floatParamOr(cfg.Params, "momentum_factor", 0.25)
	s.w = newWindow(intParamOr(cfg.Params, "window", 500))
	return nil
}

func (s *OrderFlowStrategy) OnBar(b bar.Bar) ([]Signal, error) {
	s.w.push(b)
	if len(s.w.bars) < 20 {
		return nil, nil
	}

	sessionVWAP, sessionHigh, sessionLow, sessionOpen := sessionStats(s.w.bars)
	price := b.Close
	volRatio := volumeRatio(s.w.volumes())

	priceAboveVWAP := price > sessionVWAP
	rangeVol := (sessionHigh - sessionLow) / sessionVWAP
	stretch := (price - sessionVWAP) / sessionVWAP
	momentum := (price - sessionOpen) / sessionOpen

	volumeConfirmed := volRatio >= s.volumeSpikeRatio
	stretchOK := stretch < s.stretchFactor*rangeVol
	momentumOK := momentum > s.momentumFactor*rangeVol

	if !(priceAboveVWAP && volumeConfirmed && stretchOK && momentumOK) {
		return nil, nil
	}

	atrProxy := rangeVol * sessionVWAP
	stopLoss := sessionOpen
	takeProfit := price + atrProxy*2.5

	return []Signal{{
		Symbol: b.Symbol, Side: Buy, Intent: IntentOpen, Type: TypeMarket,
		StopLossPx:   money.FromFloat(stopLoss),
		TakeProfitPx: money.FromFloat(takeProfit),
		Urgency:      0.6,
		Context: map[string]interface{}{
			"vwap": sessionVWAP, "stretch": stretch, "momentum": momentum, "vol_ratio": volRatio,
		},
	}}, nil
}

// OnTicker makes the strategy TickerAware but ignores the ticker: it
// returns no signals and records no state, so ticker bid/ask volume
// does not enter the entry rule. OnBar is the sole signal-emitting
// callback.
func (s *OrderFlowStrategy) OnTicker(t bar.Ticker) ([]Signal, error) {
	return nil, nil
}

func (s *OrderFlowStrategy) StateSnapshot() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"bars":%d}`, len(s.w.bars))), nil
}

// sessionStats computes a VWAP, high, low, and opening price over the
// retained window, standing in for a prior day-session stats approach now
// that crypto has no exchange session boundary.
func sessionStats(bars []bar.Bar) (vwap, high, low, open float64) {
	var pv, v float64
	high = bars[0].High
	low = bars[0].Low
	open = bars[0].Open
	for _, b := range bars {
		typical := (b.High + b.Low + b.Close) / 3
		pv += typical * b.Volume
		v += b.Volume
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	if v == 0 {
		return bars[len(bars)-1].Close, high, low, open
	}
	return pv / v, high, low, open
}
