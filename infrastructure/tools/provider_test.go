package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-sqm/internal/ports"
)

func TestNewProvider_NilConfig(t *testing.T) {
	_, err := NewProvider(nil)
	assert.Error(t, err)
}

func TestProvider_ToolFor(t *testing.T) {
	cfg, err := ParseConfig([]byte(sampleToolsYAML))
	require.NoError(t, err)

	var wrapped int
	var mu sync.Mutex
	counting := func(next ports.Tool) ports.Tool {
		mu.Lock()
		wrapped++
		mu.Unlock()
		return next
	}

	provider, err := NewProvider(cfg, counting)
	require.NoError(t, err)

	t.Run("configured step is built once and cached", func(t *testing.T) {
		var wg sync.WaitGroup
		tools := make([]ports.Tool, 8)
		for i := range tools {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				tool, err := provider.ToolFor("assembly")
				assert.NoError(t, err)
				tools[i] = tool
			}(i)
		}
		wg.Wait()

		for _, tool := range tools {
			assert.Equal(t, "assembly", tool.Name())
		}
		mu.Lock()
		assert.Equal(t, 1, wrapped)
		mu.Unlock()
	})

	t.Run("unconfigured step", func(t *testing.T) {
		_, err := provider.ToolFor("binning")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ports.ErrToolNotConfigured))
	})

	t.Run("merge collaborators", func(t *testing.T) {
		comparator, err := provider.Comparator()
		require.NoError(t, err)
		assert.Equal(t, ComparatorToolName, comparator.Name())

		merger, err := provider.Merger()
		require.NoError(t, err)
		assert.Equal(t, MergerToolName, merger.Name())
	})
}

func TestProvider_MissingCollaborators(t *testing.T) {
	provider, err := NewProvider(&Config{Tools: map[string]CommandConfig{}})
	require.NoError(t, err)

	_, err = provider.Comparator()
	assert.True(t, errors.Is(err, ports.ErrToolNotConfigured))
	_, err = provider.Merger()
	assert.True(t, errors.Is(err, ports.ErrToolNotConfigured))
}

func TestProvider_PerCommandTimeout(t *testing.T) {
	cfg := &Config{
		LogDir: t.TempDir(),
		Tools: map[string]CommandConfig{
			"assembly": {Command: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond},
		},
	}
	provider, err := NewProvider(cfg)
	require.NoError(t, err)

	tool, err := provider.ToolFor("assembly")
	require.NoError(t, err)

	_, err = tool.Run(context.Background(), ports.Invocation{Step: 1, ProjectDir: t.TempDir()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}
