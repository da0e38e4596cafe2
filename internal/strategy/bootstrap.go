package strategy

// NewDefaultRegistry returns a Registry with every built-in strategy
// type registered under the name the engine config refers to it by.
// Multi-timeframe and stat-arb variants take constructor arguments (a
// shared blackboard / a comparison-leg feed) the generic Factory
// signature can't express directly, so they are not registered here;
// they are built through NewMultiTimeframeStrategy / NewStatArbStrategy,
// which no code in the module calls. NewDefaultRegistry only wires the
// context-free variants.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("trend_dual_sma_macd", NewTrendStrategy)
	r.Register("mean_reversion_rsi_bollinger", NewMeanReversionStrategy)
	r.Register("volatility_atr_breakout_squeeze", NewVolatilityStrategy)
	r.Register("order_flow_vwap_stretch_momentum", NewOrderFlowStrategy)
	return r
}
