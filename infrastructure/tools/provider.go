package tools

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/ahrav/go-sqm/internal/ports"
)

// Tool names used for the merge collaborators.
const (
	ComparatorToolName = "comparator"
	MergerToolName     = "merger"
)

var _ ports.ToolProvider = (*Provider)(nil)

// Provider resolves configured tools by step name. Tools are compiled on
// first use, wrapped in the middleware chain and cached.
type Provider struct {
	config     *Config
	middleware []Middleware

	// cache holds wrapped tools by name. Cached tools are shared by every
	// caller and must be safe for concurrent use.
	cache   map[string]ports.Tool
	cacheMu sync.RWMutex
	// sf prevents duplicate compilation when several workers request the
	// same tool at once.
	sf singleflight.Group
}

// NewProvider creates a provider over a validated configuration.
func NewProvider(config *Config, middleware ...Middleware) (*Provider, error) {
	if config == nil {
		return nil, fmt.Errorf("tools config cannot be nil")
	}
	return &Provider{
		config:     config,
		middleware: middleware,
		cache:      make(map[string]ports.Tool),
	}, nil
}

// ToolFor returns the tool configured for stepName.
func (p *Provider) ToolFor(stepName string) (ports.Tool, error) {
	cfg, ok := p.config.Tools[stepName]
	if !ok {
		return nil, fmt.Errorf("step %q: %w", stepName, ports.ErrToolNotConfigured)
	}
	return p.build(stepName, cfg)
}

// Comparator returns the assembly similarity tool.
func (p *Provider) Comparator() (ports.Tool, error) {
	if p.config.Comparator == nil {
		return nil, fmt.Errorf("%s: %w", ComparatorToolName, ports.ErrToolNotConfigured)
	}
	return p.build(ComparatorToolName, *p.config.Comparator)
}

// Merger returns the contig merging tool.
func (p *Provider) Merger() (ports.Tool, error) {
	if p.config.Merger == nil {
		return nil, fmt.Errorf("%s: %w", MergerToolName, ports.ErrToolNotConfigured)
	}
	return p.build(MergerToolName, *p.config.Merger)
}

func (p *Provider) build(name string, cfg CommandConfig) (ports.Tool, error) {
	p.cacheMu.RLock()
	tool, ok := p.cache[name]
	p.cacheMu.RUnlock()
	if ok {
		return tool, nil
	}

	v, err, _ := p.sf.Do(name, func() (any, error) {
		p.cacheMu.RLock()
		cached, ok := p.cache[name]
		p.cacheMu.RUnlock()
		if ok {
			return cached, nil
		}

		exec, err := NewExecTool(name, cfg, p.config.LogDir)
		if err != nil {
			return nil, err
		}
		var wrapped ports.Tool = exec
		if cfg.Timeout > 0 {
			wrapped = TimeoutMiddleware(cfg.Timeout)(wrapped)
		}
		wrapped = Chain(wrapped, p.middleware...)

		p.cacheMu.Lock()
		p.cache[name] = wrapped
		p.cacheMu.Unlock()
		return wrapped, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(ports.Tool), nil
}
