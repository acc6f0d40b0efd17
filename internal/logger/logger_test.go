package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		"INFO":    INFO,
		"warning": WARN,
		"error":   ERROR,
		"none":    SILENT,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestLoggerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: WARN, Output: &buf})

	l.Info("Cycler", "hidden %d", 1)
	l.Warn("Cycler", "shown %d", 2)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown 2")
	assert.Contains(t, out, "Cycler")
	assert.Equal(t, WARN, l.GetLevel())

	l.SetLevel(SILENT)
	buf.Reset()
	l.Error("Cycler", "dropped")
	assert.Empty(t, buf.String())
	assert.Equal(t, SILENT, l.GetLevel())
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Options{Level: DEBUG, Output: &buf, Format: "json"})
	l.Debug("HTTP", "GET %s", "/dados")

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "HTTP", entry["logger"])
	assert.Equal(t, "GET /dados", entry["msg"])
	assert.Equal(t, "DEBUG", entry["level"])
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
