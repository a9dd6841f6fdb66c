package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoggerWritesFieldsInOrder(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "debug").With(String("comp", "poller"), String("k", "first"))
	log.Warn("connection failed", String("k", "second"), Int("failures", 3), Err(errors.New("boom")))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	require.Equal(t, "warn", m["level"])
	require.Equal(t, "connection failed", m["message"])
	require.Equal(t, "poller", m["comp"])
	require.Equal(t, "boom", m["err"])
	require.EqualValues(t, 3, m["failures"])
	require.True(t, strings.HasPrefix(m["caller"].(string), "logging_test.go:"))

	// Fixed fields are written before call-site fields.
	line := buf.String()
	require.Less(t, strings.Index(line, `"k":"first"`), strings.Index(line, `"k":"second"`))
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWriter(&buf, "warn")
	log.Info("hidden")
	require.Zero(t, buf.Len())
	require.False(t, log.Enabled(LevelInfo))
	require.True(t, log.Enabled(LevelError))
}

func TestConsoleLoggerBeforeConfig(t *testing.T) {
	var buf bytes.Buffer
	log := newConsole(&buf, "")
	log.Debug("hidden")
	log.Error("config failed", Err(errors.New("CHAT_ID is required")))

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "config failed")
	require.Contains(t, out, "CHAT_ID is required")
	require.False(t, log.Enabled(LevelDebug))
}

func TestZeroLoggerIsNoop(t *testing.T) {
	var log Logger
	require.True(t, log.IsZero())
	require.NotPanics(t, func() { log.With(String("a", "b")).Error("nothing") })
	require.False(t, Nop().IsZero())
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Level
	}{
		{"debug", LevelDebug},
		{" INFO ", LevelInfo},
		{"warning", LevelWarn},
		{"error", LevelError},
		{"bogus", LevelInfo},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, parseLevel(tt.raw, LevelInfo), tt.raw)
	}
}
