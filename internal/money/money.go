// Package money centralizes monetary arithmetic on top of
// github.com/shopspring/decimal. Every monetary field in this engine —
// prices, quantities, PnL, margin, equity — is a money.Decimal; indicator
// math (internal/indicator) is the one deliberate exception permitted by
// indicator math, which stays float64 there but never for position
// accounting. RoundVenue below provides half-up rounding for the venue
// boundary; the connectors in internal/exchange do not call it and send
// quantities and prices as given.
package money

import "github.com/shopspring/decimal"

// Decimal is the monetary type used throughout the engine.
type Decimal = decimal.Decimal

// Zero is the additive identity, exported to avoid repeating
// decimal.NewFromInt(0) at every call site.
var Zero = decimal.Zero

// FromFloat builds a Decimal from a float64. Reserved for ingesting
// external/venue JSON payloads that only carry floats; never use this to
// accumulate PnL or margin across steps.
func FromFloat(f float64) Decimal { return decimal.NewFromFloat(f) }

// FromString parses a Decimal from a string, the preferred path for
// venue payloads that already serialize prices/quantities as strings
// (avoids the float64 round-trip entirely).
func FromString(s string) (Decimal, error) { return decimal.NewFromString(s) }

// NewFromInt builds an exact Decimal from an integer, e.g. a basis-point
// scale factor.
func NewFromInt(i int64) Decimal { return decimal.NewFromInt(i) }

// RoundVenue rounds a Decimal to the venue's tick/lot precision using
// half-up rounding (the rounding mode applied at every venue boundary; all
// rounding happens at the venue boundary").
func RoundVenue(d Decimal, places int32) Decimal {
	return d.RoundHalfUp(places)
}

// Abs returns the absolute value, used by sizing and slippage math.
func Abs(d Decimal) Decimal { return d.Abs() }

// Max returns the greater of a, b.
func Max(a, b Decimal) Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the lesser of a, b.
func Min(a, b Decimal) Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// IsPositive reports whether d > 0.
func IsPositive(d Decimal) bool { return d.IsPositive() }

// Clamp restricts d to [lo, hi].
func Clamp(d, lo, hi Decimal) Decimal {
	if d.LessThan(lo) {
		return lo
	}
	if d.GreaterThan(hi) {
		return hi
	}
	return d
}
