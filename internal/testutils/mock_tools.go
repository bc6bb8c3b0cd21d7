package testutils

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ahrav/go-sqm/internal/domain"
	"github.com/ahrav/go-sqm/internal/ports"
)

// ToolCall records one invocation made through a MockToolProvider.
type ToolCall struct {
	Tool       string
	Invocation ports.Invocation
}

// MockToolProvider hands out tools that record their invocations and
// succeed unless a failure was injected for the step or sample.
// It provides deterministic behavior for testing the execution layer
// without launching processes.
type MockToolProvider struct {
	mu sync.Mutex
	// calls lists every invocation in the order it started.
	calls []ToolCall
	// failures maps "step" or "step/sample" to the error to return.
	failures map[string]error
	// unconfigured lists step names ToolFor refuses.
	unconfigured map[string]bool

	// OnRun, when set, is called before each invocation returns. A non-nil
	// error fails the invocation.
	OnRun func(ctx context.Context, inv ports.Invocation) error
}

var _ ports.ToolProvider = (*MockToolProvider)(nil)

// NewMockToolProvider creates a provider whose tools always succeed.
func NewMockToolProvider() *MockToolProvider {
	return &MockToolProvider{
		failures:     make(map[string]error),
		unconfigured: make(map[string]bool),
	}
}

// FailStep makes invocations of step fail with err. An empty sample fails
// every invocation of the step.
func (p *MockToolProvider) FailStep(step int, sample string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[failureKey(step, sample)] = err
}

// ClearFailures removes every injected failure.
func (p *MockToolProvider) ClearFailures() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = make(map[string]error)
}

// Unconfigure makes ToolFor fail for stepName.
func (p *MockToolProvider) Unconfigure(stepName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unconfigured[stepName] = true
}

// ToolFor implements ports.ToolProvider.
func (p *MockToolProvider) ToolFor(stepName string) (ports.Tool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.unconfigured[stepName] {
		return nil, fmt.Errorf("step %q: %w", stepName, ports.ErrToolNotConfigured)
	}
	return ports.ToolFunc{ToolName: stepName, Fn: p.run(stepName)}, nil
}

func (p *MockToolProvider) run(name string) func(context.Context, ports.Invocation) (ports.ToolResult, error) {
	return func(ctx context.Context, inv ports.Invocation) (ports.ToolResult, error) {
		p.mu.Lock()
		p.calls = append(p.calls, ToolCall{Tool: name, Invocation: inv})
		err := p.failures[failureKey(inv.Step, inv.Sample)]
		if err == nil {
			err = p.failures[failureKey(inv.Step, "")]
		}
		hook := p.OnRun
		p.mu.Unlock()

		if err == nil && hook != nil {
			err = hook(ctx, inv)
		}
		result := ports.ToolResult{Duration: time.Millisecond, MaxRSSKB: 1024}
		if err != nil {
			result.ExitCode = 1
			return result, &ports.ToolError{Tool: name, ExitCode: 1, Err: err}
		}
		return result, nil
	}
}

// Calls returns every recorded invocation in start order.
func (p *MockToolProvider) Calls() []ToolCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ToolCall(nil), p.calls...)
}

// CallsForStep returns the invocations of step, sorted by sample.
func (p *MockToolProvider) CallsForStep(step int) []ToolCall {
	var out []ToolCall
	for _, c := range p.Calls() {
		if c.Invocation.Step == step {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Invocation.Sample < out[j].Invocation.Sample })
	return out
}

// StepsInvoked returns the distinct invoked step numbers in first-call order.
func (p *MockToolProvider) StepsInvoked() []int {
	seen := make(map[int]bool)
	var out []int
	for _, c := range p.Calls() {
		if !seen[c.Invocation.Step] {
			seen[c.Invocation.Step] = true
			out = append(out, c.Invocation.Step)
		}
	}
	return out
}

// Reset forgets recorded invocations.
func (p *MockToolProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = nil
}

func failureKey(step int, sample string) string {
	if sample == "" {
		return fmt.Sprint(step)
	}
	return fmt.Sprintf("%d/%s", step, sample)
}

// MatrixComparator returns similarity scores from a fixed table. Pairs not
// in the table score Default.
type MatrixComparator struct {
	mu      sync.Mutex
	Scores  map[domain.PairKey]float64
	Default float64
	// Err, when set, fails every comparison.
	Err error
	// FailPair, when set, fails comparisons of that pair only.
	FailPair *domain.PairKey

	compared []domain.PairKey
}

var _ ports.SimilarityComparator = (*MatrixComparator)(nil)

// NewMatrixComparator creates a comparator over scores.
func NewMatrixComparator(scores map[domain.PairKey]float64) *MatrixComparator {
	return &MatrixComparator{Scores: scores}
}

// Compare implements ports.SimilarityComparator.
func (c *MatrixComparator) Compare(ctx context.Context, a, b domain.AssemblyUnit) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	key := domain.NewPairKey(a.ID, b.ID)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.compared = append(c.compared, key)
	if c.Err != nil {
		return 0, c.Err
	}
	if c.FailPair != nil && *c.FailPair == key {
		return 0, fmt.Errorf("comparison of %s failed", key)
	}
	if s, ok := c.Scores[key]; ok {
		return s, nil
	}
	return c.Default, nil
}

// Compared returns every compared pair.
func (c *MatrixComparator) Compared() []domain.PairKey {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.PairKey(nil), c.compared...)
}

// MergeCall records one call on a RecordingMerger.
type MergeCall struct {
	Output string
	Inputs []string
}

// RecordingMerger records merge requests and succeeds unless Err is set.
type RecordingMerger struct {
	mu    sync.Mutex
	Err   error
	calls []MergeCall
}

var _ ports.ContigMerger = (*RecordingMerger)(nil)

// Merge implements ports.ContigMerger.
func (m *RecordingMerger) Merge(ctx context.Context, output string, units []domain.AssemblyUnit) error {
	ids := make([]string, len(units))
	for i, u := range units {
		ids[i] = u.ID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MergeCall{Output: output, Inputs: ids})
	return m.Err
}

// Calls returns the recorded merges in order.
func (m *RecordingMerger) Calls() []MergeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MergeCall(nil), m.calls...)
}
