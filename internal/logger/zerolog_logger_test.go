package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test", "debug")
	if l == nil {
		t.Fatalf("nil logger")
	}
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"k": 2})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestLoggerWritesComponentAndFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "api", "info").With(map[string]any{"tenant": "t_demo"})
	l.Debugf("dropped")
	l.Infow("solved", map[string]any{"planId": "p1"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "api", rec["component"])
	assert.Equal(t, "t_demo", rec["tenant"])
	assert.Equal(t, "p1", rec["planId"])
	assert.Equal(t, "solved", rec["message"])
	assert.Equal(t, "info", rec["level"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, "x", "chatty")
	l.Debugf("hidden")
	l.Warnf("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.NotContains(t, buf.String(), "hidden")
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.With(map[string]any{"a": 1}).Infof("ignored")
}
