package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNew_Formats(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, Options{Level: "warn", Format: "json"})
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("store unreachable", "error", "refused")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "store unreachable", line["msg"])
	assert.Equal(t, "refused", line["err"])
	assert.NotContains(t, buf.String(), "hidden")

	buf.Reset()
	logger, err = New(&buf, Options{})
	require.NoError(t, err)
	logger.Info("ready", "error", "none")
	assert.Contains(t, buf.String(), "err=none")

	_, err = New(&buf, Options{Format: "xml"})
	assert.ErrorContains(t, err, "log format")
}
