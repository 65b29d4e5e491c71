package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"codeberg.org/mutker/rfhealth/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want LogLevel
		ok   bool
	}{
		{"debug", DebugLevel, true},
		{"INFO", InfoLevel, true},
		{"warning", WarnLevel, true},
		{"error", ErrorLevel, true},
		{"", InfoLevel, true},
		{"loud", InfoLevel, false},
	}

	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
	}
}

func TestWithStampsFields(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DebugLevel).With("device", "bmc-1")

	l.Info().Str("category", "thermal").Msg("collected")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "bmc-1", line["device"])
	assert.Equal(t, "thermal", line["category"])
	assert.Equal(t, "collected", line["message"])
}

func TestErrorWithCode(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, DebugLevel)

	err := errors.New().WithMessage(errors.ErrTimeout, "poll timed out")
	l.ErrorWithCode(err).Send()

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "operation_timeout", line["error_code"])
	assert.Equal(t, "poll timed out", line["error_message"])
}

func TestNopDiscards(t *testing.T) {
	l := Nop()
	assert.NotPanics(t, func() {
		l.Warn().Str("k", "v").Msg("dropped")
		l.With("a", "b").Error().Send()
	})
}
