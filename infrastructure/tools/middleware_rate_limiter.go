package tools

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/ahrav/go-sqm/internal/ports"
)

// rateLimitedTool paces tool launches using a token bucket.
// Launch storms of dozens of per-sample jobs can overwhelm shared
// filesystems and batch schedulers.
type rateLimitedTool struct {
	next    ports.Tool
	limiter *rate.Limiter
}

// RateLimitMiddleware creates middleware that limits launches to limit per
// second with bursts of burst. The limiter is shared by every tool the
// middleware wraps. A non-positive limit leaves tools unwrapped.
func RateLimitMiddleware(limit rate.Limit, burst int) Middleware {
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)

	return func(next ports.Tool) ports.Tool {
		if limit <= 0 {
			return next
		}
		return &rateLimitedTool{
			next:    next,
			limiter: limiter,
		}
	}
}

// Name returns the wrapped tool's name.
func (r *rateLimitedTool) Name() string { return r.next.Name() }

// Run waits for a launch token before forwarding the invocation.
func (r *rateLimitedTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return ports.ToolResult{}, fmt.Errorf("rate limit: %w", err)
	}
	return r.next.Run(ctx, inv)
}
