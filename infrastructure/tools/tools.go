// Package tools runs the external programs behind pipeline steps.
//
// Every program is described by a command template in the tools
// configuration and executed by an ExecTool, which captures its output to a
// per-invocation log file and reports exit status and resource usage.
// Cross-cutting concerns are layered on with middleware:
//
//	provider, err := tools.NewProvider(cfg,
//	    tools.LoggingMiddleware(),
//	    tools.TracingMiddleware("sqm"),
//	    tools.MetricsMiddleware(collector),
//	    tools.RateLimitMiddleware(rate.Limit(cfg.LaunchRate), cfg.LaunchBurst),
//	    tools.TimeoutMiddleware(cfg.Timeout),
//	)
//	tool, err := provider.ToolFor("assembly")
//	result, err := tool.Run(ctx, inv)
//
// Failed invocations are never retried: a step either completes or halts
// the run so that a restart re-executes it.
package tools

import "github.com/ahrav/go-sqm/internal/ports"

// Middleware wraps a Tool to add cross-cutting functionality.
// This pattern allows composition of features like launch throttling,
// metrics collection and tracing without modifying the tool itself.
type Middleware func(ports.Tool) ports.Tool

// Chain applies middleware in reverse order so the first middleware is the
// outermost.
func Chain(tool ports.Tool, middleware ...Middleware) ports.Tool {
	for i := len(middleware) - 1; i >= 0; i-- {
		if middleware[i] != nil {
			tool = middleware[i](tool)
		}
	}
	return tool
}
