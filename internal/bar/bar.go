// Package bar defines the engine's canonical market-data types
// (Bar, Ticker, OrderBook) plus the bounded ring buffer each
// (symbol, timeframe) series is retained in, and multi-venue symbol
// normalization grounded on a prior market.Normalize helper.
package bar

import (
	"strings"

	"quantforge/internal/money"
)

// Normalize canonicalizes venue-specific symbol spellings (BTC-USDT,
// BTCUSDT, BTC/USDT:USDT) into one upper-cased, separator-free form so
// the strategy runtime and risk pipeline never have to special-case a
// venue's quoting convention. Grounded on a prior market.Normalize helper,
// generalized from a trim+uppercase into full separator stripping since
// this engine spans perp-DEX venues with their own symbol conventions.
func Normalize(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if idx := strings.IndexByte(s, ':'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)
	return s
}

// Timeframe is a canonical bar interval, e.g. "1m", "5m", "15m", "1h".
type Timeframe string

// Bar is an immutable OHLCV record. Never mutated after construction;
// invariants are enforced by Validate, not by the zero value.
type Bar struct {
	Symbol      string
	Timeframe   Timeframe
	TsMs        int64
	Open        float64
	High        float64
	Low         float64
	Close       float64
	Volume      float64
	QuoteVolume float64
	TradesCount int64
}

// Validate checks the invariants a well-formed Bar must satisfy:
// low <= min(open, close), high >= max(open, close), volume >= 0.
func (b Bar) Validate() error {
	minOC := b.Open
	if b.Close < minOC {
		minOC = b.Close
	}
	maxOC := b.Open
	if b.Close > maxOC {
		maxOC = b.Close
	}
	if b.Low > minOC {
		return errInvalidBar{reason: "low exceeds min(open, close)"}
	}
	if b.High < maxOC {
		return errInvalidBar{reason: "high below max(open, close)"}
	}
	if b.Volume < 0 {
		return errInvalidBar{reason: "negative volume"}
	}
	return nil
}

type errInvalidBar struct{ reason string }

func (e errInvalidBar) Error() string { return "bar: invalid bar: " + e.reason }

// Ticker is a mutable last-price snapshot, replaced wholesale on update.
type Ticker struct {
	Symbol string
	TsMs   int64
	Bid    float64
	Ask    float64
	Last   float64
	BidVol float64
	AskVol float64
}

// Level is one (price, size) entry of an order-book side.
type Level struct {
	Price money.Decimal
	Size  money.Decimal
}

// OrderBook is a snapshot with bids sorted descending, asks ascending.
type OrderBook struct {
	Symbol string
	TsMs   int64
	Bids   []Level
	Asks   []Level
	Nonce  int64
}

// BestBid returns the top bid level and whether one exists.
func (ob OrderBook) BestBid() (Level, bool) {
	if len(ob.Bids) == 0 {
		return Level{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the top ask level and whether one exists.
func (ob OrderBook) BestAsk() (Level, bool) {
	if len(ob.Asks) == 0 {
		return Level{}, false
	}
	return ob.Asks[0], true
}

// Crossed reports whether the book violates best_bid < best_ask.
func (ob OrderBook) Crossed() bool {
	bb, ok1 := ob.BestBid()
	ba, ok2 := ob.BestAsk()
	if !ok1 || !ok2 {
		return false
	}
	return !bb.Price.LessThan(ba.Price)
}

// Mid returns the midpoint of best bid/ask as a float64, for indicator
// and slippage math that does not need decimal precision.
func (ob OrderBook) Mid() (float64, bool) {
	bb, ok1 := ob.BestBid()
	ba, ok2 := ob.BestAsk()
	if !ok1 || !ok2 {
		return 0, false
	}
	bbF, _ := bb.Price.Float64()
	baF, _ := ba.Price.Float64()
	return (bbF + baF) / 2, true
}
