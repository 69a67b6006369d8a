// Package log provides a structured logging system for esfailover components.
package log

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Level represents the severity level of a log message.
type Level int

// Log levels
const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a textual level (case-insensitive) to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("log: unknown level %q", s)
	}
}

// Fields is a map of field names to values.
type Fields map[string]interface{}

// Context keys for propagating logging context
const (
	ComponentKey = "component"
	OperationKey = "operation"
)

// Logger defines the core logging interface for esfailover components.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)

	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	// With adds multiple fields to the logger.
	With(fields ...Field) Logger

	// WithContext picks the operation name out of ctx when present.
	WithContext(ctx context.Context) Logger

	// WithComponent tags logs with a component name
	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// LoggerOption is a function that configures a logger.
type LoggerOption func(*BaseLogger)

// BaseLogger implements the Logger interface on top of logrus.
type BaseLogger struct {
	root  *logrus.Logger
	entry *logrus.Entry
}

// NewLogger creates a new logger with the given options.
func NewLogger(options ...LoggerOption) Logger {
	root := logrus.New()
	root.SetOutput(os.Stderr)
	root.SetLevel(logrus.InfoLevel)
	root.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	logger := &BaseLogger{root: root, entry: logrus.NewEntry(root)}
	for _, option := range options {
		option(logger)
	}
	return logger
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger(WithOutput(io.Discard))
}

// WithLevel sets the minimum log level.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.root.SetLevel(toLogrusLevel(level))
	}
}

// WithFormatter sets the log formatter.
func WithFormatter(formatter logrus.Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.root.SetFormatter(formatter)
	}
}

// WithOutput sets the destination writer.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *BaseLogger) {
		l.root.SetOutput(w)
	}
}

// TextFormatter returns the human readable formatter used by the CLI.
func TextFormatter() logrus.Formatter {
	return &logrus.TextFormatter{FullTimestamp: true}
}

// JSONFormatter returns a formatter emitting one JSON object per line.
func JSONFormatter() logrus.Formatter {
	return &logrus.JSONFormatter{}
}

func (l *BaseLogger) Debug(msg string, fields ...Field) {
	l.withFieldSlice(fields).Debug(msg)
}

func (l *BaseLogger) Info(msg string, fields ...Field) {
	l.withFieldSlice(fields).Info(msg)
}

func (l *BaseLogger) Warn(msg string, fields ...Field) {
	l.withFieldSlice(fields).Warn(msg)
}

func (l *BaseLogger) Error(msg string, fields ...Field) {
	l.withFieldSlice(fields).Error(msg)
}

func (l *BaseLogger) Debugf(msg string, args ...interface{}) { l.entry.Debugf(msg, args...) }
func (l *BaseLogger) Infof(msg string, args ...interface{})  { l.entry.Infof(msg, args...) }
func (l *BaseLogger) Warnf(msg string, args ...interface{})  { l.entry.Warnf(msg, args...) }
func (l *BaseLogger) Errorf(msg string, args ...interface{}) { l.entry.Errorf(msg, args...) }

func (l *BaseLogger) WithField(key string, value interface{}) Logger {
	return &BaseLogger{root: l.root, entry: l.entry.WithField(key, value)}
}

func (l *BaseLogger) WithFields(fields Fields) Logger {
	return &BaseLogger{root: l.root, entry: l.entry.WithFields(logrus.Fields(fields))}
}

func (l *BaseLogger) WithError(err error) Logger {
	return &BaseLogger{root: l.root, entry: l.entry.WithError(err)}
}

func (l *BaseLogger) With(fields ...Field) Logger {
	return &BaseLogger{root: l.root, entry: l.withFieldSlice(fields)}
}

func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	if ctx == nil {
		return l
	}
	entry := l.entry.WithContext(ctx)
	if v := ctx.Value(OperationKey); v != nil {
		entry = entry.WithField(OperationKey, v)
	}
	return &BaseLogger{root: l.root, entry: entry}
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.WithField(ComponentKey, component)
}

// SetLevel changes the level of the shared root logger, affecting all derived loggers.
func (l *BaseLogger) SetLevel(level Level) {
	l.root.SetLevel(toLogrusLevel(level))
}

func (l *BaseLogger) GetLevel() Level {
	return fromLogrusLevel(l.root.GetLevel())
}

func (l *BaseLogger) withFieldSlice(fields []Field) *logrus.Entry {
	if len(fields) == 0 {
		return l.entry
	}
	m := make(logrus.Fields, len(fields))
	var err error
	for _, f := range fields {
		if e, ok := f.Value.(error); ok && f.Key == logrus.ErrorKey {
			err = e
			continue
		}
		m[f.Key] = f.Value
	}
	entry := l.entry.WithFields(m)
	if err != nil {
		entry = entry.WithError(err)
	}
	return entry
}

// Config declares how a process-wide logger should be built.
type Config struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
}

// ApplyConfig builds a logger from a declarative Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		return NewLogger(), nil
	}
	lvl, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	var formatter logrus.Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = TextFormatter()
	case "json":
		formatter = JSONFormatter()
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}
	return NewLogger(WithLevel(lvl), WithFormatter(formatter)), nil
}

// RedirectStdLog routes the standard library logger (used by pebble) through l at info level.
func RedirectStdLog(l Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{l: l})
}

type stdWriter struct{ l Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	w.l.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}

func toLogrusLevel(level Level) logrus.Level {
	switch level {
	case DebugLevel:
		return logrus.DebugLevel
	case InfoLevel:
		return logrus.InfoLevel
	case WarnLevel:
		return logrus.WarnLevel
	case ErrorLevel:
		return logrus.ErrorLevel
	case FatalLevel:
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func fromLogrusLevel(level logrus.Level) Level {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return DebugLevel
	case logrus.InfoLevel:
		return InfoLevel
	case logrus.WarnLevel:
		return WarnLevel
	case logrus.ErrorLevel:
		return ErrorLevel
	default:
		return FatalLevel
	}
}
