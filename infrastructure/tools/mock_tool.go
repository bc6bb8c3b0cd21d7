package tools

import (
	"context"
	"sync"
	"time"

	"github.com/ahrav/go-sqm/internal/ports"
)

// MockTool provides a configurable mock implementation of ports.Tool for
// testing. It allows precise control over results, timing and failures to
// facilitate middleware testing.
type MockTool struct {
	mu sync.Mutex

	// Result configuration
	ToolName string
	Result   ports.ToolResult
	Error    error
	Delay    time.Duration

	// Tracking
	CallCount      int
	Invocations    []ports.Invocation
	Contexts       []context.Context
	CallTimestamps []time.Time
}

// NewMockTool creates a mock tool that succeeds immediately.
func NewMockTool(name string) *MockTool {
	return &MockTool{
		ToolName: name,
		Result:   ports.ToolResult{Duration: time.Millisecond, MaxRSSKB: 2048},
	}
}

// Name implements ports.Tool.
func (m *MockTool) Name() string { return m.ToolName }

// Run implements ports.Tool with configurable behavior.
func (m *MockTool) Run(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
	m.mu.Lock()
	m.CallCount++
	m.Invocations = append(m.Invocations, inv)
	m.Contexts = append(m.Contexts, ctx)
	m.CallTimestamps = append(m.CallTimestamps, time.Now())
	delay, result, err := m.Delay, m.Result, m.Error
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ports.ToolResult{ExitCode: -1}, ports.NewToolError(m.ToolName, -1, ctx.Err())
		}
	}
	return result, err
}

// GetCallCount returns the number of invocations.
func (m *MockTool) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// LastInvocation returns the most recent invocation.
func (m *MockTool) LastInvocation() ports.Invocation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Invocations) == 0 {
		return ports.Invocation{}
	}
	return m.Invocations[len(m.Invocations)-1]
}
