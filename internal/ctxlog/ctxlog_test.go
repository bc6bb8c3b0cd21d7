package ctxlog

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContext(t *testing.T) {
	t.Run("returns embedded logger", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("debug", "text", &buf)
		ctx := WithLogger(context.Background(), logger)

		FromContext(ctx).Debug("hello", "step", 3)
		assert.Contains(t, buf.String(), "hello")
		assert.Contains(t, buf.String(), "step=3")
	})

	t.Run("falls back to default", func(t *testing.T) {
		assert.Equal(t, slog.Default(), FromContext(context.Background()))
	})
}

func TestNew(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		New("info", "json", &buf).Info("committed", "step", 5)

		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "committed", record["msg"])
		assert.Equal(t, float64(5), record["step"])
	})

	t.Run("level filtering", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("warn", "text", &buf)
		logger.Info("dropped")
		logger.Warn("kept")
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})

	t.Run("unknown level defaults to info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := New("verbose", "text", &buf)
		logger.Debug("dropped")
		logger.Info("kept")
		assert.NotContains(t, buf.String(), "dropped")
		assert.Contains(t, buf.String(), "kept")
	})
}
