package tools

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/ports"
	"github.com/ahrav/go-sqm/internal/testutils"
)

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next ports.Tool) ports.Tool {
			return ports.ToolFunc{ToolName: next.Name(), Fn: func(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
				order = append(order, name)
				return next.Run(ctx, inv)
			}}
		}
	}

	mock := NewMockTool("assembler")
	tool := Chain(mock, mark("outer"), nil, mark("inner"))
	_, err := tool.Run(context.Background(), ports.Invocation{Step: 1})
	require.NoError(t, err)

	assert.Equal(t, []string{"outer", "inner"}, order)
	assert.Equal(t, "assembler", tool.Name())
	assert.Equal(t, 1, mock.GetCallCount())
}

func TestMetricsMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status string
	}{
		{name: "success", status: "success"},
		{name: "failure", err: ports.NewToolError("x", 1, errors.New("boom")), status: "failure"},
		{name: "exhausted", err: &ports.ToolError{Tool: "x", ExitCode: 137, Exhausted: true}, status: "exhausted"},
		{name: "timeout", err: ports.NewToolError("x", -1, context.DeadlineExceeded), status: "timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			collector := testutils.NewMockMetricsCollector()
			mock := NewMockTool("mapper")
			mock.Error = tt.err
			mock.Result = ports.ToolResult{Duration: 2 * time.Second, MaxRSSKB: 4096}

			tool := MetricsMiddleware(collector)(mock)
			_, err := tool.Run(context.Background(), ports.Invocation{Step: 11})
			assert.Equal(t, tt.err, err)

			invocations := collector.Observations("tool_invocations_total")
			require.Len(t, invocations, 1)
			assert.Equal(t, tt.status, invocations[0].Labels["status"])
			assert.Equal(t, "mapper", invocations[0].Labels["tool"])
			assert.Equal(t, "11", invocations[0].Labels["step"])

			durations := collector.Observations("tool_duration_seconds")
			require.Len(t, durations, 1)
			assert.Equal(t, 2.0, durations[0].Value)

			assert.Equal(t, 4096.0, collector.Sum("tool_max_rss_kilobytes"))
		})
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Run("cancels slow invocations", func(t *testing.T) {
		mock := NewMockTool("slow")
		mock.Delay = time.Second
		tool := TimeoutMiddleware(20 * time.Millisecond)(mock)

		start := time.Now()
		_, err := tool.Run(context.Background(), ports.Invocation{Step: 1})
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.DeadlineExceeded))
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	})

	t.Run("zero timeout leaves tool unwrapped", func(t *testing.T) {
		mock := NewMockTool("fast")
		assert.Same(t, mock, TimeoutMiddleware(0)(mock))
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	t.Run("delays launches exceeding the rate", func(t *testing.T) {
		mock := NewMockTool("binner")
		tool := RateLimitMiddleware(rate.Limit(10), 1)(mock)
		ctx := context.Background()

		start := time.Now()
		for range 3 {
			_, err := tool.Run(ctx, ports.Invocation{Step: 15})
			require.NoError(t, err)
		}
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
		assert.Equal(t, 3, mock.GetCallCount())
	})

	t.Run("limiter is shared across wrapped tools", func(t *testing.T) {
		mw := RateLimitMiddleware(rate.Limit(5), 1)
		a := mw(NewMockTool("a"))
		b := mw(NewMockTool("b"))

		start := time.Now()
		_, err := a.Run(context.Background(), ports.Invocation{})
		require.NoError(t, err)
		_, err = b.Run(context.Background(), ports.Invocation{})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
	})

	t.Run("canceled context fails before launch", func(t *testing.T) {
		mock := NewMockTool("binner")
		tool := RateLimitMiddleware(rate.Limit(0.001), 1)(mock)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()

		_, err := tool.Run(ctx, ports.Invocation{})
		require.NoError(t, err, "first launch uses the burst token")
		_, err = tool.Run(ctx, ports.Invocation{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limit")
		assert.Equal(t, 1, mock.GetCallCount())
	})

	t.Run("non-positive rate leaves tool unwrapped", func(t *testing.T) {
		mock := NewMockTool("x")
		assert.Same(t, mock, RateLimitMiddleware(0, 0)(mock))
	})
}

func TestTracingMiddleware(t *testing.T) {
	mock := NewMockTool("annotator")
	mock.Result = ports.ToolResult{ExitCode: 0, LogPath: "/tmp/x.log"}
	tool := TracingMiddleware("sqm-test")(mock)

	_, err := tool.Run(context.Background(), ports.Invocation{Step: 8, StepName: "functional_assignment"})
	require.NoError(t, err)
	assert.Equal(t, "annotator", tool.Name())

	mock.Error = &ports.ToolError{Tool: "annotator", ExitCode: -1, Signal: "killed", Exhausted: true}
	_, err = tool.Run(context.Background(), ports.Invocation{Step: 8})
	assert.Error(t, err)
	assert.Equal(t, 2, mock.GetCallCount())
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	ctx := ctxlog.WithLogger(context.Background(), ctxlog.New("debug", "text", &buf))

	mock := NewMockTool("assembler")
	tool := LoggingMiddleware()(mock)

	_, err := tool.Run(ctx, ports.Invocation{Step: 1, Sample: "s1"})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "launching tool")
	assert.Contains(t, out, "tool finished")
	assert.Contains(t, out, "sample=s1")

	buf.Reset()
	mock.Error = errors.New("exit status 1")
	_, err = tool.Run(ctx, ports.Invocation{Step: 1})
	require.Error(t, err)
	assert.True(t, strings.Contains(buf.String(), "tool failed"))
}
