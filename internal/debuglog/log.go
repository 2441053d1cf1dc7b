// Package debuglog is the process-wide leveled logger. It keeps a small
// printf-style facade over a zap JSON logger so callers do not depend on zap
// directly for everyday messages.
package debuglog

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity level of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelOff // Disables all logging
)

// String returns the string representation of the log level
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelOff:
		return "OFF"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a string into a LogLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	case "OFF":
		return LevelOff
	default:
		return LevelInfo
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InvalidLevel
	}
}

var (
	mu           sync.RWMutex
	currentLevel = LevelOff
	atomicLevel  = zap.NewAtomicLevelAt(zapcore.InvalidLevel)
	base         = zap.NewNop()
	closeSink    func()
)

// Setup configures the logging system with the specified level and optional
// output path. An empty path or "stderr" logs to standard error.
func Setup(level LogLevel, filePath ...string) error {
	mu.Lock()
	defer mu.Unlock()

	closeLocked()
	currentLevel = level
	atomicLevel.SetLevel(level.zapLevel())

	if level == LevelOff {
		return nil
	}

	path := "stderr"
	if len(filePath) > 0 && filePath[0] != "" {
		path = filePath[0]
	}

	sink, closer, err := zap.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log output %s: %w", path, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, atomicLevel)
	base = zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel)).Named("fwrdpost")
	closeSink = closer
	return nil
}

// Redirect sends all output to core, which applies its own level filter.
// Used to embed the logger elsewhere and to observe it in tests.
func Redirect(core zapcore.Core) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	base = zap.New(core).Named("fwrdpost")
}

// SetupWithBool enables INFO logging to stderr or turns logging off.
func SetupWithBool(enabled bool) {
	if enabled {
		_ = Setup(LevelInfo)
	} else {
		_ = Setup(LevelOff)
	}
}

// SetLevel changes the current logging level
func SetLevel(level LogLevel) {
	mu.Lock()
	defer mu.Unlock()
	currentLevel = level
	atomicLevel.SetLevel(level.zapLevel())
}

// GetLevel returns the current logging level
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// Logger returns the underlying zap logger. It is a no-op logger until Setup
// is called with a level other than LevelOff.
func Logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// Close flushes and releases the log output.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	err := base.Sync()
	closeLocked()
	if err != nil && strings.Contains(err.Error(), "invalid argument") {
		// fsync on stderr/ttys fails on some platforms.
		return nil
	}
	return err
}

func closeLocked() {
	if closeSink != nil {
		_ = base.Sync()
		closeSink()
		closeSink = nil
	}
	base = zap.NewNop()
}

func Debugf(format string, args ...any) {
	Logger().Sugar().Debugf(format, args...)
}

func Infof(format string, args ...any) {
	Logger().Sugar().Infof(format, args...)
}

func Warnf(format string, args ...any) {
	Logger().Sugar().Warnf(format, args...)
}

func Errorf(format string, args ...any) {
	Logger().Sugar().Errorf(format, args...)
}

// FieldLogger attaches a fixed set of structured fields to every message.
type FieldLogger struct {
	fields []zap.Field
}

// WithFields returns a logger carrying the given fields, in key order.
func WithFields(fields map[string]interface{}) *FieldLogger {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fl := &FieldLogger{fields: make([]zap.Field, 0, len(keys))}
	for _, k := range keys {
		fl.fields = append(fl.fields, zap.Any(k, fields[k]))
	}
	return fl
}

// With returns a copy of fl with one more field.
func (fl *FieldLogger) With(key string, value interface{}) *FieldLogger {
	fields := make([]zap.Field, 0, len(fl.fields)+1)
	fields = append(fields, fl.fields...)
	return &FieldLogger{fields: append(fields, zap.Any(key, value))}
}

func (fl *FieldLogger) sugar() *zap.SugaredLogger {
	return Logger().With(fl.fields...).Sugar()
}

func (fl *FieldLogger) Debugf(format string, args ...any) {
	fl.sugar().Debugf(format, args...)
}

func (fl *FieldLogger) Infof(format string, args ...any) {
	fl.sugar().Infof(format, args...)
}

func (fl *FieldLogger) Warnf(format string, args ...any) {
	fl.sugar().Warnf(format, args...)
}

func (fl *FieldLogger) Errorf(format string, args ...any) {
	fl.sugar().Errorf(format, args...)
}
