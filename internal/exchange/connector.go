// Package exchange adapts this engine's venue-agnostic operations
// (load_markets, fetch_ticker, fetch_orderbook, fetch_ohlcv,
// fetch_balance, fetch_positions, create_order, cancel_order, and the
// three streaming feeds) onto concrete exchange SDKs, one file per
// venue. Every adapter also satisfies internal/execution.Venue so the
// execution manager can submit/cancel/poll without caring which venue
// it is talking to.
//
// Grounded on auto_trader.go's exchange-selection switch (binance/
// bybit/hyperliquid/lighter, chosen by AutoTraderConfig.Exchange) and
// on market/api_client.go's APIClient shape (GetExchangeInfo/GetKlines),
// generalized from "one stock data client" into "one interface, four
// concrete crypto/perp-DEX connectors".
package exchange

import (
	"context"
	"time"

	"quantforge/internal/bar"
	"quantforge/internal/execution"
	"quantforge/internal/money"
)

// Market is one tradable instrument's static metadata.
type Market struct {
	Symbol      string
	Base        string
	Quote       string
	TickSize    money.Decimal
	LotSize     money.Decimal
	MinNotional money.Decimal
	MaxLeverage int
}

// Balance is one asset's account balance.
type Balance struct {
	Asset  string
	Free   money.Decimal
	Locked money.Decimal
}

// FundingPoint is one historical funding-rate observation (perp venues).
type FundingPoint struct {
	TsMs int64
	Rate float64
}

// OpenInterestPoint is one historical open-interest observation.
type OpenInterestPoint struct {
	TsMs  int64
	Value money.Decimal
}

// Connector is the venue-agnostic operation set every adapter
// implements. It embeds execution.Venue so the execution manager can
// treat any Connector as its order-submission target directly.
type Connector interface {
	execution.Venue

	Name() string
	LoadMarkets(ctx context.Context) ([]Market, error)
	FetchTicker(ctx context.Context, symbol string) (bar.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (bar.OrderBook, error)
	FetchOHLCV(ctx context.Context, symbol string, tf bar.Timeframe, limit int) ([]bar.Bar, error)
	FetchFundingRateHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]FundingPoint, error)
	FetchOpenInterestHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]OpenInterestPoint, error)
	FetchBalance(ctx context.Context) ([]Balance, error)
	FetchPositions(ctx context.Context) ([]PositionSnapshot, error)

	StreamTicker(ctx context.Context, symbol string) (<-chan bar.Ticker, error)
	StreamBook(ctx context.Context, symbol string) (<-chan bar.OrderBook, error)
	StreamTrades(ctx context.Context, symbol string) (<-chan Trade, error)
}

// PositionSnapshot is one open position as reported by the venue.
type PositionSnapshot struct {
	Symbol     string
	Qty        money.Decimal // signed: positive long, negative short
	EntryPx    money.Decimal
	MarkPx     money.Decimal
	LiqPx      money.Decimal
	HasLiqPx   bool
	MarginUsed money.Decimal
}

// Trade is one executed trade tick from a public trade stream.
type Trade struct {
	Symbol string
	TsMs   int64
	Px     money.Decimal
	Qty    money.Decimal
	Side   string // "buy" or "sell", taker side
}

// timeframeErr is returned by adapters that cannot serve a timeframe
// their venue does not offer at all (as opposed to one the market-data
// engine derives locally via aggregation).
type timeframeErr struct {
	venue string
	tf    bar.Timeframe
}

func (e timeframeErr) Error() string {
	return "exchange: " + e.venue + " does not support native timeframe " + string(e.tf)
}
