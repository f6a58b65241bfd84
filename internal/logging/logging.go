// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package logging provides component-scoped structured logging.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	charmlog "github.com/charmbracelet/log"
)

// Level is a log severity.
type Level = charmlog.Level

const (
	LevelDebug = charmlog.DebugLevel
	LevelInfo  = charmlog.InfoLevel
	LevelWarn  = charmlog.WarnLevel
	LevelError = charmlog.ErrorLevel
)

// Config controls logger construction.
type Config struct {
	Output io.Writer
	Level  Level
	JSON   bool
	// Logfmt selects key=value output; ignored when JSON is set.
	Logfmt bool
}

// DefaultConfig returns a text logger on stderr at info level.
func DefaultConfig() Config {
	return Config{
		Output: os.Stderr,
		Level:  LevelInfo,
	}
}

// Logger wraps a charm logger with component scoping.
type Logger struct {
	l *charmlog.Logger
}

// New creates a logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := charmlog.Options{
		Level:           cfg.Level,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}
	switch {
	case cfg.JSON:
		opts.Formatter = charmlog.JSONFormatter
	case cfg.Logfmt:
		opts.Formatter = charmlog.LogfmtFormatter
	default:
		opts.Formatter = charmlog.TextFormatter
	}

	return &Logger{l: charmlog.NewWithOptions(out, opts)}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error") into a Level.
func ParseLevel(s string) (Level, error) {
	if strings.TrimSpace(s) == "" {
		return LevelInfo, nil
	}
	lvl, err := charmlog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
	return lvl, nil
}

// WithComponent returns a child logger tagged with the component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{l: l.l.WithPrefix(name)}
}

// With returns a child logger carrying the given key/value pairs.
func (l *Logger) With(keyvals ...any) *Logger {
	return &Logger{l: l.l.With(keyvals...)}
}

// SetLevel changes the minimum level at runtime.
func (l *Logger) SetLevel(level Level) {
	l.l.SetLevel(level)
}

func (l *Logger) Debug(msg string, keyvals ...any) { l.l.Debug(msg, keyvals...) }
func (l *Logger) Info(msg string, keyvals ...any)  { l.l.Info(msg, keyvals...) }
func (l *Logger) Warn(msg string, keyvals ...any)  { l.l.Warn(msg, keyvals...) }
func (l *Logger) Error(msg string, keyvals ...any) { l.l.Error(msg, keyvals...) }

var (
	defaultMu     sync.RWMutex
	defaultLogger = New(DefaultConfig())
)

// Default returns the process-wide logger.
func Default() *Logger {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the process-wide logger.
func SetDefault(l *Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// WithComponent scopes the default logger.
func WithComponent(name string) *Logger {
	return Default().WithComponent(name)
}

func Debug(msg string, keyvals ...any) { Default().Debug(msg, keyvals...) }
func Info(msg string, keyvals ...any)  { Default().Info(msg, keyvals...) }
func Warn(msg string, keyvals ...any)  { Default().Warn(msg, keyvals...) }
func Error(msg string, keyvals ...any) { Default().Error(msg, keyvals...) }
