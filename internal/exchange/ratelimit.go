package exchange

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps one golang.org/x/time/rate.Limiter per weighted
// endpoint class (market-data reads are cheap and frequent;
// order-placement calls are expensive and venue-throttled hardest), so
// one adapter's read traffic never starves its own order traffic.
type RateLimiter struct {
	reads  *rate.Limiter
	orders *rate.Limiter
}

// NewRateLimiter builds a limiter from the venue's advertised
// requests-per-second for market-data reads and order placement.
func NewRateLimiter(readsPerSec, ordersPerSec float64) *RateLimiter {
	return &RateLimiter{
		reads:  rate.NewLimiter(rate.Limit(readsPerSec), int(readsPerSec)+1),
		orders: rate.NewLimiter(rate.Limit(ordersPerSec), int(ordersPerSec)+1),
	}
}

// WaitRead blocks until a market-data read token is available or ctx
// is cancelled.
func (r *RateLimiter) WaitRead(ctx context.Context) error {
	return r.reads.Wait(ctx)
}

// WaitOrder blocks until an order-placement token is available or ctx
// is cancelled.
func (r *RateLimiter) WaitOrder(ctx context.Context) error {
	return r.orders.Wait(ctx)
}
