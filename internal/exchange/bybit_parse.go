package exchange

import (
	"fmt"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"quantforge/internal/bar"
	"quantforge/internal/execution"
	"quantforge/internal/money"
)

// The v5 unified-trading-account API wraps every payload in a generic
// {retCode, retMsg, result: {list: [...]}} envelope; bybit.go.api
// surfaces that as Result interface{} rather than typed structs, so
// every parser below walks the same map-of-maps shape defensively
// instead of assuming any field is present.

func resultList(resp *bybit.ServerResponse) []map[string]interface{} {
	if resp == nil {
		return nil
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return nil
	}
	rawList, ok := result["list"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]map[string]interface{}, 0, len(rawList))
	for _, item := range rawList {
		if m, ok := item.(map[string]interface{}); ok {
			out = append(out, m)
		}
	}
	return out
}

func str(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func strF(m map[string]interface{}, key string) float64 {
	var f float64
	fmt.Sscanf(str(m, key), "%f", &f)
	return f
}

func dec(m map[string]interface{}, key string) money.Decimal {
	d, _ := money.FromString(str(m, key))
	return d
}

func parseBybitInstrumentList(resp *bybit.ServerResponse) []Market {
	var out []Market
	for _, row := range resultList(resp) {
		out = append(out, Market{
			Symbol: bar.Normalize(str(row, "symbol")),
			Base:   str(row, "baseCoin"),
			Quote:  str(row, "quoteCoin"),
		})
	}
	return out
}

func parseBybitTickerResp(symbol string, resp *bybit.ServerResponse) bar.Ticker {
	rows := resultList(resp)
	if len(rows) == 0 {
		return bar.Ticker{Symbol: bar.Normalize(symbol)}
	}
	row := rows[0]
	bid := strF(row, "bid1Price")
	ask := strF(row, "ask1Price")
	return bar.Ticker{
		Symbol: bar.Normalize(symbol),
		Bid:    bid,
		Ask:    ask,
		Last:   strF(row, "lastPrice"),
		BidVol: strF(row, "bid1Size"),
		AskVol: strF(row, "ask1Size"),
	}
}

func parseBybitOrderbookResp(symbol string, resp *bybit.ServerResponse) bar.OrderBook {
	ob := bar.OrderBook{Symbol: bar.Normalize(symbol)}
	if resp == nil {
		return ob
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return ob
	}
	ob.Bids = parseBybitLevels(result["b"])
	ob.Asks = parseBybitLevels(result["a"])
	return ob
}

func parseBybitLevels(raw interface{}) []bar.Level {
	rows, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]bar.Level, 0, len(rows))
	for _, r := range rows {
		pair, ok := r.([]interface{})
		if !ok || len(pair) < 2 {
			continue
		}
		px, _ := money.FromString(fmt.Sprintf("%v", pair[0]))
		sz, _ := money.FromString(fmt.Sprintf("%v", pair[1]))
		out = append(out, bar.Level{Price: px, Size: sz})
	}
	return out
}

func parseBybitKlineResp(symbol string, tf bar.Timeframe, resp *bybit.ServerResponse) []bar.Bar {
	if resp == nil {
		return nil
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return nil
	}
	rows, ok := result["list"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]bar.Bar, 0, len(rows))
	for _, r := range rows {
		row, ok := r.([]interface{})
		if !ok || len(row) < 6 {
			continue
		}
		var tsMs int64
		fmt.Sscanf(fmt.Sprintf("%v", row[0]), "%d", &tsMs)
		var o, h, l, c, v float64
		fmt.Sscanf(fmt.Sprintf("%v", row[1]), "%f", &o)
		fmt.Sscanf(fmt.Sprintf("%v", row[2]), "%f", &h)
		fmt.Sscanf(fmt.Sprintf("%v", row[3]), "%f", &l)
		fmt.Sscanf(fmt.Sprintf("%v", row[4]), "%f", &c)
		fmt.Sscanf(fmt.Sprintf("%v", row[5]), "%f", &v)
		out = append(out, bar.Bar{Symbol: bar.Normalize(symbol), Timeframe: tf, TsMs: tsMs, Open: o, High: h, Low: l, Close: c, Volume: v})
	}
	return out
}

func parseBybitFundingResp(resp *bybit.ServerResponse) []FundingPoint {
	var out []FundingPoint
	for _, row := range resultList(resp) {
		var tsMs int64
		fmt.Sscanf(str(row, "fundingRateTimestamp"), "%d", &tsMs)
		out = append(out, FundingPoint{TsMs: tsMs, Rate: strF(row, "fundingRate")})
	}
	return out
}

func parseBybitOIResp(resp *bybit.ServerResponse) []OpenInterestPoint {
	var out []OpenInterestPoint
	for _, row := range resultList(resp) {
		var tsMs int64
		fmt.Sscanf(str(row, "timestamp"), "%d", &tsMs)
		out = append(out, OpenInterestPoint{TsMs: tsMs, Value: dec(row, "openInterest")})
	}
	return out
}

func parseBybitBalanceResp(resp *bybit.ServerResponse) []Balance {
	rows := resultList(resp)
	if len(rows) == 0 {
		return nil
	}
	coins, ok := rows[0]["coin"].([]interface{})
	if !ok {
		return nil
	}
	out := make([]Balance, 0, len(coins))
	for _, c := range coins {
		row, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, Balance{Asset: str(row, "coin"), Free: dec(row, "availableToWithdraw"), Locked: dec(row, "locked")})
	}
	return out
}

func parseBybitPositionResp(resp *bybit.ServerResponse) []PositionSnapshot {
	var out []PositionSnapshot
	for _, row := range resultList(resp) {
		qty := dec(row, "size")
		if str(row, "side") == "Sell" {
			qty = qty.Neg()
		}
		if qty.IsZero() {
			continue
		}
		liq := dec(row, "liqPrice")
		out = append(out, PositionSnapshot{
			Symbol: bar.Normalize(str(row, "symbol")), Qty: qty,
			EntryPx: dec(row, "avgPrice"), MarkPx: dec(row, "markPrice"),
			LiqPx: liq, HasLiqPx: liq.IsPositive(), MarginUsed: dec(row, "positionIM"),
		})
	}
	return out
}

func parseBybitOrderIDResp(resp *bybit.ServerResponse) string {
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		return ""
	}
	return str(result, "orderId")
}

func parseBybitOrderStatusResp(resp *bybit.ServerResponse) (execution.OrderStatus, money.Decimal, money.Decimal, error) {
	rows := resultList(resp)
	if len(rows) == 0 {
		return "", money.Zero, money.Zero, fmt.Errorf("exchange: bybit order status: empty result")
	}
	row := rows[0]
	return mapBybitStatus(str(row, "orderStatus")), dec(row, "cumExecQty"), dec(row, "avgPrice"), nil
}

func mapBybitStatus(s string) execution.OrderStatus {
	switch s {
	case "New", "Created":
		return execution.StatusNew
	case "PartiallyFilled":
		return execution.StatusPartial
	case "Filled":
		return execution.StatusFilled
	case "Cancelled", "Deactivated":
		return execution.StatusCancelled
	case "Rejected":
		return execution.StatusRejected
	default:
		return execution.StatusNew
	}
}
