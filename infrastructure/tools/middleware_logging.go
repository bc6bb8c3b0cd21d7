package tools

import (
	"context"

	"github.com/ahrav/go-sqm/internal/ctxlog"
	"github.com/ahrav/go-sqm/internal/ports"
)

// loggedTool logs the start and end of each invocation with the logger
// carried by the context.
type loggedTool struct {
	next ports.Tool
}

// LoggingMiddleware creates middleware that logs every invocation.
func LoggingMiddleware() Middleware {
	return func(next ports.Tool) ports.Tool {
		return &loggedTool{next: next}
	}
}

// Name returns the wrapped tool's name.
func (l *loggedTool) Name() string { return l.next.Name() }

// Run logs around the wrapped invocation.
func (l *loggedTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	logger := ctxlog.FromContext(ctx).With("tool", l.next.Name(), "step", inv.Step)
	if inv.Sample != "" {
		logger = logger.With("sample", inv.Sample)
	}
	logger.Debug("launching tool", "inputs", len(inv.Inputs), "output", inv.Output, "threads", inv.Threads)

	result, err := l.next.Run(ctx, inv)
	if err != nil {
		logger.Error("tool failed", "error", err, "exit_code", result.ExitCode, "log", result.LogPath)
		return result, err
	}
	logger.Info("tool finished",
		"duration", result.Duration,
		"max_rss_kb", result.MaxRSSKB,
		"user_time", result.UserTime,
		"log", result.LogPath)
	return result, nil
}
