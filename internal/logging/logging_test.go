package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestComponentAndContext(t *testing.T) {
	var buf bytes.Buffer
	Init(slog.LevelDebug, true, &buf)
	t.Cleanup(func() { Logger = nil })

	Component("dataset").Info("store opened", "datasets", 12)
	assert.Contains(t, buf.String(), `"component":"dataset"`)
	assert.Contains(t, buf.String(), `"datasets":12`)

	buf.Reset()
	ctx := ContextWithTable(ContextWithStore(context.Background(), "/tmp/a.tone"), "events/eventsStart")
	WithContext(ctx).Warn("torn tail")
	assert.Contains(t, buf.String(), `"store":"/tmp/a.tone"`)
	assert.Contains(t, buf.String(), `"table":"events/eventsStart"`)
}
