package tools

import (
	"context"
	"time"

	"github.com/ahrav/go-sqm/internal/ports"
)

// timeoutTool bounds the wall-clock time of each invocation.
type timeoutTool struct {
	next    ports.Tool
	timeout time.Duration
}

// TimeoutMiddleware creates middleware that kills invocations running longer
// than timeout. A zero timeout leaves the tool unwrapped.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next ports.Tool) ports.Tool {
		if timeout <= 0 {
			return next
		}
		return &timeoutTool{
			next:    next,
			timeout: timeout,
		}
	}
}

// Name returns the wrapped tool's name.
func (t *timeoutTool) Name() string { return t.next.Name() }

// Run executes the invocation with a timeout context.
func (t *timeoutTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Run(ctx, inv)
}
