package exchange

import (
	"context"
	"fmt"
	"strconv"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"quantforge/internal/bar"
	"quantforge/internal/execution"
	"quantforge/internal/money"
)

const ProviderBybit = "bybit"

// BybitConnector adapts Bybit's unified-trading-account v5 API onto
// Connector, via the bybit.go.api SDK (the dependency auto_trader.go's
// NewBybitTrader case implies; its concrete client code was not part of
// the retrieved pack, so this adapter is grounded on the SDK's public
// surface instead).
type BybitConnector struct {
	base   *baseClient
	client *bybit.Client
	limit  *RateLimiter
}

// NewBybitConnector builds a connector from the shared options
// pattern.
func NewBybitConnector(opts ...ClientOption) *BybitConnector {
	preset := []ClientOption{WithProvider(ProviderBybit)}
	base := newBaseClient(preset, opts...)
	env := bybit.MAINNET
	if base.Testnet {
		env = bybit.TESTNET
	}
	client := bybit.NewBybitHttpClient(base.APIKey, base.APISecret, bybit.WithBaseURL(env))
	return &BybitConnector{base: base, client: client, limit: NewRateLimiter(base.ReadsPerSec, base.OrdersPerSec)}
}

func (b *BybitConnector) Name() string { return ProviderBybit }

func (b *BybitConnector) LoadMarkets(ctx context.Context) ([]Market, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{"category": "linear"}).GetInstrumentsInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: bybit load markets: %w", err)
	}
	return parseBybitInstruments(resp), nil
}

func (b *BybitConnector) FetchTicker(ctx context.Context, symbol string) (bar.Ticker, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return bar.Ticker{}, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol,
	}).GetTickers(ctx)
	if err != nil {
		return bar.Ticker{}, fmt.Errorf("exchange: bybit fetch ticker: %w", err)
	}
	return parseBybitTicker(symbol, resp), nil
}

func (b *BybitConnector) FetchOrderBook(ctx context.Context, symbol string, depth int) (bar.OrderBook, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return bar.OrderBook{}, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol, "limit": depth,
	}).GetOrderbook(ctx)
	if err != nil {
		return bar.OrderBook{}, fmt.Errorf("exchange: bybit fetch order book: %w", err)
	}
	return parseBybitOrderbook(symbol, resp), nil
}

func (b *BybitConnector) FetchOHLCV(ctx context.Context, symbol string, tf bar.Timeframe, limit int) ([]bar.Bar, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol, "interval": bybitInterval(tf), "limit": limit,
	}).GetKline(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: bybit fetch ohlcv: %w", err)
	}
	return parseBybitKlines(symbol, tf, resp), nil
}

func (b *BybitConnector) FetchFundingRateHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]FundingPoint, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol, "startTime": since.UnixMilli(), "limit": limit,
	}).GetFundingRateHistory(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: bybit fetch funding history: %w", err)
	}
	return parseBybitFunding(resp), nil
}

func (b *BybitConnector) FetchOpenInterestHistory(ctx context.Context, symbol string, since time.Time, limit int) ([]OpenInterestPoint, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol, "intervalTime": "5min", "startTime": since.UnixMilli(), "limit": limit,
	}).GetOpenInterest(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: bybit fetch open interest history: %w", err)
	}
	return parseBybitOpenInterest(resp), nil
}

func (b *BybitConnector) FetchBalance(ctx context.Context) ([]Balance, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{"accountType": "UNIFIED"}).GetWalletBalance(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: bybit fetch balance: %w", err)
	}
	return parseBybitBalances(resp), nil
}

func (b *BybitConnector) FetchPositions(ctx context.Context) ([]PositionSnapshot, error) {
	if err := b.limit.WaitRead(ctx); err != nil {
		return nil, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{"category": "linear", "settleCoin": "USDT"}).GetPositionInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("exchange: bybit fetch positions: %w", err)
	}
	return parseBybitPositions(resp), nil
}

func (b *BybitConnector) StreamTicker(ctx context.Context, symbol string) (<-chan bar.Ticker, error) {
	return nil, fmt.Errorf("exchange: bybit streaming not wired through this SDK version; poll FetchTicker instead")
}

func (b *BybitConnector) StreamBook(ctx context.Context, symbol string) (<-chan bar.OrderBook, error) {
	return nil, fmt.Errorf("exchange: bybit streaming not wired through this SDK version; poll FetchOrderBook instead")
}

func (b *BybitConnector) StreamTrades(ctx context.Context, symbol string) (<-chan Trade, error) {
	return nil, fmt.Errorf("exchange: bybit streaming not wired through this SDK version")
}

func (b *BybitConnector) SubmitOrder(o execution.Order) (string, error) {
	ctx := context.Background()
	if err := b.limit.WaitOrder(ctx); err != nil {
		return "", err
	}
	side := "Buy"
	if o.Side == "sell" {
		side = "Sell"
	}
	orderType := "Market"
	if o.Type == "limit" {
		orderType = "Limit"
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": o.Symbol, "side": side, "orderType": orderType, "qty": o.Qty.String(),
	}).PlaceOrder(ctx)
	if err != nil {
		return "", fmt.Errorf("exchange: bybit submit order: %w", err)
	}
	return parseBybitOrderID(resp), nil
}

func (b *BybitConnector) CancelOrder(symbol, venueOrderID string) error {
	ctx := context.Background()
	if err := b.limit.WaitOrder(ctx); err != nil {
		return err
	}
	_, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol, "orderId": venueOrderID,
	}).CancelOrder(ctx)
	if err != nil {
		return fmt.Errorf("exchange: bybit cancel order: %w", err)
	}
	return nil
}

func (b *BybitConnector) OrderStatus(symbol, venueOrderID string) (execution.OrderStatus, money.Decimal, money.Decimal, error) {
	ctx := context.Background()
	if err := b.limit.WaitRead(ctx); err != nil {
		return "", money.Zero, money.Zero, err
	}
	resp, err := b.client.NewUtaBybitServiceWithParams(map[string]interface{}{
		"category": "linear", "symbol": symbol, "orderId": venueOrderID,
	}).GetOrderHistory(ctx)
	if err != nil {
		return "", money.Zero, money.Zero, fmt.Errorf("exchange: bybit order status: %w", err)
	}
	return parseBybitOrderStatus(resp)
}

func bybitInterval(tf bar.Timeframe) string {
	switch tf {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "1h":
		return "60"
	case "4h":
		return "240"
	case "1d":
		return "D"
	default:
		return "5"
	}
}

// The bybit.go.api SDK returns its v5 REST responses as generic
// map[string]interface{} envelopes (result.list arrays of
// string-typed fields); these helpers isolate that parsing from the
// adapter methods above so each stays a thin param-builder. Separated
// into their own file: bybit_parse.go.
func parseBybitInstruments(resp *bybit.ServerResponse) []Market    { return parseBybitInstrumentList(resp) }
func parseBybitTicker(symbol string, resp *bybit.ServerResponse) bar.Ticker {
	return parseBybitTickerResp(symbol, resp)
}
func parseBybitOrderbook(symbol string, resp *bybit.ServerResponse) bar.OrderBook {
	return parseBybitOrderbookResp(symbol, resp)
}
func parseBybitKlines(symbol string, tf bar.Timeframe, resp *bybit.ServerResponse) []bar.Bar {
	return parseBybitKlineResp(symbol, tf, resp)
}
func parseBybitFunding(resp *bybit.ServerResponse) []FundingPoint { return parseBybitFundingResp(resp) }
func parseBybitOpenInterest(resp *bybit.ServerResponse) []OpenInterestPoint {
	return parseBybitOIResp(resp)
}
func parseBybitBalances(resp *bybit.ServerResponse) []Balance          { return parseBybitBalanceResp(resp) }
func parseBybitPositions(resp *bybit.ServerResponse) []PositionSnapshot { return parseBybitPositionResp(resp) }
func parseBybitOrderID(resp *bybit.ServerResponse) string              { return parseBybitOrderIDResp(resp) }
func parseBybitOrderStatus(resp *bybit.ServerResponse) (execution.OrderStatus, money.Decimal, money.Decimal, error) {
	return parseBybitOrderStatusResp(resp)
}
