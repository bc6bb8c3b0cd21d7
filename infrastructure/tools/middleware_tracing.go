package tools

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/go-sqm/internal/ports"
)

// tracedTool wraps every invocation in an OpenTelemetry span.
type tracedTool struct {
	next   ports.Tool
	tracer trace.Tracer
}

// TracingMiddleware creates middleware that records a span per invocation
// on the global tracer provider.
func TracingMiddleware(serviceName string) Middleware {
	tracer := otel.Tracer(serviceName)
	return func(next ports.Tool) ports.Tool {
		return &tracedTool{
			next:   next,
			tracer: tracer,
		}
	}
}

// Name returns the wrapped tool's name.
func (t *tracedTool) Name() string { return t.next.Name() }

// Run executes the invocation within a span.
func (t *tracedTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	ctx, span := t.tracer.Start(ctx, "tool.run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tool.name", t.next.Name()),
			attribute.Int("step.number", inv.Step),
			attribute.String("step.name", inv.StepName),
			attribute.String("sample", inv.Sample),
			attribute.Int("tool.threads", inv.Threads),
			attribute.Int("tool.inputs", len(inv.Inputs)),
		),
	)
	defer span.End()

	result, err := t.next.Run(ctx, inv)

	span.SetAttributes(
		attribute.Int("tool.exit_code", result.ExitCode),
		attribute.Int64("tool.max_rss_kb", result.MaxRSSKB),
		attribute.String("tool.log", result.LogPath),
	)
	if err != nil {
		var toolErr *ports.ToolError
		if errors.As(err, &toolErr) && toolErr.Exhausted {
			span.AddEvent("tool.resource_exhausted", trace.WithAttributes(
				attribute.String("signal", toolErr.Signal),
			))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return result, err
	}
	span.SetStatus(codes.Ok, "tool completed")
	return result, nil
}
