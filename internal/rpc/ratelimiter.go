package rpc

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// rateLimiter wraps a token-bucket limiter scoped to a single endpoint.
type rateLimiter struct {
	limiter *rate.Limiter
	name    string
}

func newRateLimiter(name string, rps int) *rateLimiter {
	if rps <= 0 {
		rps = 1
	}
	slog.Debug("rate limiter created", "endpoint", name, "rps", rps)
	return &rateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		name:    name,
	}
}

func (rl *rateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		slog.Warn("rate limiter wait cancelled", "endpoint", rl.name, "error", err)
		return err
	}
	return nil
}
