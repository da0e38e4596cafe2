package strategy

import (
	"fmt"

	"quantforge/internal/bar"
	"quantforge/internal/indicator"
	"quantforge/internal/money"
)

// MultiTimeframeStrategy implements the multi-timeframe
// resonance variant: 1h trend direction, 15m pullback, 5m trigger — the
// exact three-tier framing the market-data engine's timeframe derivation enables as the payoff of its
// timeframe-aggregation algorithm. This instance only ever receives its
// own subscribed timeframe's bars (per the single-strategy-per-timeframe
// runtime contract); to see all three tiers, one instance is built per
// timeframe from the same NewMultiTimeframeStrategy factory, and the
// three share the MultiTimeframeState pointer that factory captures —
// so a single struct never holds three windows. NewDefaultRegistry does
// not register this strategy, and no code in the module calls
// NewMultiTimeframeStrategy. Grounded on
// decision/engine.go's BuildSystemPrompt "Multi-Timeframe Confluence"
// section, translated from an LLM prompt section into explicit
// indicator reads.
type MultiTimeframeStrategy struct {
	cfg   Config
	role  tfRole
	w     *window
	shared *MultiTimeframeState
}

type tfRole string

const (
	roleTrend1h    tfRole = "trend_1h"
	rolePullback15 tfRole = "pullback_15m"
	roleTrigger5   tfRole = "trigger_5m"
)

// MultiTimeframeState is the cross-timeframe blackboard shared (by
// pointer) across the per-timeframe strategy instances built from one
// NewMultiTimeframeStrategy factory.
type MultiTimeframeState struct {
	TrendUp     bool
	PullbackHit bool
}

func NewMultiTimeframeStrategy(shared *MultiTimeframeState) Factory {
	return func() Strategy { return &MultiTimeframeStrategy{shared: shared} }
}

func (s *MultiTimeframeStrategy) Name() string { return "multi_timeframe_resonance_" + string(s.role) }

var mtfAllowedParams = map[string]bool{"role": true, "window": true}

func (s *MultiTimeframeStrategy) Initialize(cfg Config) error {
	if err := cfg.Validate(mtfAllowedParams); err != nil {
		return err
	}
	s.cfg = cfg
	switch bar.Timeframe(cfg.Timeframe) {
	case "1h":
		s.role = roleTrend1h
	case "15m":
		s.role = rolePullback15
	case "5m":
		s.role = roleTrigger5
	default:
		return fmt.Errorf("multi-timeframe strategy: unsupported timeframe %q", cfg.Timeframe)
	}
	s.w = newWindow(intParamOr(cfg.Params, "window", 300))
	return nil
}

func (s *MultiTimeframeStrategy) OnBar(b bar.Bar) ([]Signal, error) {
	s.w.push(b)
	closes := s.w.closes()

	switch s.role {
	case roleTrend1h:
		if len(closes) < 50 {
			return nil, nil
		}
		fast := indicator.SMA(closes, 20)
		slow := indicator.SMA(closes, 50)
		if len(fast) == 0 || len(slow) == 0 {
			return nil, nil
		}
		fVal, _ := indicator.Last(fast)
		sVal, _ := indicator.Last(slow)
		s.shared.TrendUp = fVal > sVal
		return nil, nil

	case rolePullback15:
		if len(closes) < 16 {
			return nil, nil
		}
		rsi := indicator.RSI(closes, 14)
		rsiVal, ok := indicator.Last(rsi)
		if !ok {
			return nil, nil
		}
		if s.shared.TrendUp {
			s.shared.PullbackHit = rsiVal <= 45
		} else {
			s.shared.PullbackHit = rsiVal >= 55
		}
		return nil, nil

	case roleTrigger5:
		if len(closes) < 3 || !s.shared.TrendUp || !s.shared.PullbackHit {
			return nil, nil
		}
		price := closes[len(closes)-1]
		prev := closes[len(closes)-2]
		if price <= prev {
			return nil, nil
		}
		atr := indicator.ATR(s.w.highs(), s.w.lows(), closes, 14)
		atrVal := 0.0
		if v, ok := indicator.Last(atr); ok {
			atrVal = v
		}
		s.shared.PullbackHit = false // consume the setup, avoid re-firing every bar
		return []Signal{{
			Symbol: b.Symbol, Side: Buy, Intent: IntentOpen, Type: TypeMarket,
			StopLossPx:   money.FromFloat(price - atrVal*1.5),
			TakeProfitPx: money.FromFloat(price + atrVal*3),
			Urgency:      0.5,
			Context:      map[string]interface{}{"confluence": "1h_trend+15m_pullback+5m_trigger"},
		}}, nil
	}
	return nil, nil
}

func (s *MultiTimeframeStrategy) StateSnapshot() ([]byte, error) {
	return []byte(fmt.Sprintf(`{"role":%q,"bars":%d,"trend_up":%v,"pullback_hit":%v}`,
		s.role, len(s.w.bars), s.shared.TrendUp, s.shared.PullbackHit)), nil
}
