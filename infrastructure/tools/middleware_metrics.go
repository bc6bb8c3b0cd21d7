package tools

import (
	"context"
	"errors"
	"strconv"

	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

// metricsTool implements invocation metrics collection.
// This provides observability into tool latency, failure rates and
// memory footprint for capacity planning.
type metricsTool struct {
	next      ports.Tool
	collector ports.MetricsCollector
}

// MetricsMiddleware creates middleware that records one observation set per
// invocation: duration, outcome counter and peak memory.
func MetricsMiddleware(collector ports.MetricsCollector) Middleware {
	return func(next ports.Tool) ports.Tool {
		return &metricsTool{
			next:      next,
			collector: collector,
		}
	}
}

// Name returns the wrapped tool's name.
func (m *metricsTool) Name() string { return m.next.Name() }

// Run executes the invocation while collecting metrics.
func (m *metricsTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	result, err := m.next.Run(ctx, inv)
	if m.collector == nil {
		return result, err
	}

	labels := map[string]string{
		"tool":   m.next.Name(),
		"step":   strconv.Itoa(inv.Step),
		"status": outcome(ctx, err),
	}
	m.collector.RecordHistogram("tool_duration_seconds", result.Duration.Seconds(), labels)
	m.collector.RecordCounter("tool_invocations_total", 1, labels)

	if result.MaxRSSKB > 0 {
		m.collector.RecordHistogram("tool_max_rss_kilobytes", float64(result.MaxRSSKB), map[string]string{
			"tool": m.next.Name(),
			"step": strconv.Itoa(inv.Step),
		})
	}
	return result, err
}

// outcome classifies an invocation for the status label.
func outcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded:
		return "timeout"
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return "canceled"
	case errors.Is(err, domain.ErrResourceExhaustion):
		return "exhausted"
	default:
		return "failure"
	}
}
