package providers

import (
	"context"
	"fmt"

	"github.com/i474232898/teleconnection-forecast/internal/teleconnection"
	"golang.org/x/time/rate"
)

// RateLimitedFetcher wraps a Fetcher with rate limiting.
type RateLimitedFetcher struct {
	fetcher teleconnection.Fetcher
	limiter *rate.Limiter
}

// NewRateLimitedFetcher creates a new rate limited fetcher.
// rps is the maximum requests per second allowed (can be fractional),
// burst is the maximum burst size allowed.
func NewRateLimitedFetcher(fetcher teleconnection.Fetcher, rps float64, burst int) *RateLimitedFetcher {
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedFetcher{
		fetcher: fetcher,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Fetch waits for limiter permission, then forwards to the wrapped fetcher.
func (r *RateLimitedFetcher) Fetch(ctx context.Context, q teleconnection.ModelQuery) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, &teleconnection.TransportError{
			Model: q.Model,
			Query: q,
			Err:   fmt.Errorf("rate limit wait canceled: %w", err),
		}
	}
	return r.fetcher.Fetch(ctx, q)
}

var _ teleconnection.Fetcher = (*RateLimitedFetcher)(nil)
