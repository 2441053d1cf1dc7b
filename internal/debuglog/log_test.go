package debuglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{" Info ", LevelInfo},
		{"WARNING", LevelWarn},
		{"error", LevelError},
		{"off", LevelOff},
		{"verbose", LevelInfo},
		{"", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseLogLevel(tt.input)
			assert.Equal(t, tt.expected, got)
			if tt.input == "debug" || tt.input == "off" {
				assert.Equal(t, tt.input, strings.ToLower(got.String()))
			}
		})
	}
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestSetup_FiltersByLevel(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "fwrdpost.log")

	require.NoError(t, Setup(LevelWarn, logPath))
	assert.Equal(t, LevelWarn, GetLevel())

	Infof("host running with %d jobs", 3)
	Warnf("feed skipped: %s", "503")
	Errorf("firing failed")
	require.NoError(t, Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	out := string(content)

	assert.NotContains(t, out, "host running")
	assert.Contains(t, out, `"msg":"feed skipped: 503"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"logger":"fwrdpost"`)
	assert.Contains(t, out, `"ts":`)
}

func TestSetup_Off(t *testing.T) {
	require.NoError(t, Setup(LevelOff))
	defer Close()

	assert.Equal(t, LevelOff, GetLevel())
	assert.False(t, Logger().Core().Enabled(zapcore.ErrorLevel))
	Errorf("dropped")
}

func TestSetupWithBool(t *testing.T) {
	SetupWithBool(true)
	assert.Equal(t, LevelInfo, GetLevel())

	SetupWithBool(false)
	assert.Equal(t, LevelOff, GetLevel())
}

func TestSetLevel_AppliesToRunningLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	require.NoError(t, Setup(LevelError, logPath))

	Infof("before")
	SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, GetLevel())
	Debugf("after")
	require.NoError(t, Close())

	content, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "before")
	assert.Contains(t, string(content), "after")
}

func TestFieldLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Redirect(core)
	defer Close()

	log := WithFields(map[string]interface{}{"user": "alice", "jobs": 2})
	log.With("task", "t-1").Infof("posted message %s", "m-1")
	log.Warnf("feed skipped")

	entries := logs.All()
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "posted message m-1", first.Message)
	assert.Equal(t, zapcore.InfoLevel, first.Level)
	assert.Equal(t, map[string]interface{}{"user": "alice", "jobs": int64(2), "task": "t-1"}, first.ContextMap())

	second := entries[1]
	assert.Equal(t, zapcore.WarnLevel, second.Level)
	assert.NotContains(t, second.ContextMap(), "task", "With must not leak into the parent logger")
}

func TestWithFields_SortedKeys(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	Redirect(core)
	defer Close()

	WithFields(map[string]interface{}{"b": 1, "a": 2, "c": 3}).Debugf("x")

	entries := logs.All()
	require.Len(t, entries, 1)
	keys := make([]string, 0, 3)
	for _, f := range entries[0].Context {
		keys = append(keys, f.Key)
	}
	assert.Equal(t, []string{"a", "b", "c"}, keys)
}
