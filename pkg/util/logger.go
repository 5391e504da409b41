package util

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

// colorize wraps msg in the ANSI color for level
func colorize(level slog.Level, msg string) string {
	switch level {
	case slog.LevelError:
		return colorRed + msg + colorReset
	case slog.LevelWarn:
		return colorYellow + msg + colorReset
	case slog.LevelInfo:
		return colorGreen + msg + colorReset
	case slog.LevelDebug:
		return colorCyan + msg + colorReset
	default:
		return colorWhite + msg + colorReset
	}
}

// Log level constants
const (
	DebugLevel = slog.LevelDebug
	InfoLevel  = slog.LevelInfo
	WarnLevel  = slog.LevelWarn
	ErrorLevel = slog.LevelError
)

// Logger is a thin key/value wrapper around slog used by every package.
type Logger struct {
	logger *slog.Logger
}

// NewLogger creates a new logger writing to output.
// Terminals (os.Stdout, os.Stderr) get colored single-line records, anything
// else gets JSON so that records can be parsed back.
func NewLogger(output io.Writer, level slog.Level) *Logger {
	if output == os.Stdout || output == os.Stderr {
		handler := &consoleHandler{
			out:   output,
			mu:    &sync.Mutex{},
			level: level,
		}
		return &Logger{logger: slog.New(handler)}
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				if source, ok := a.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
					a.Value = slog.AnyValue(source)
				}
			}
			return a
		},
	})

	return &Logger{logger: slog.New(handler)}
}

// consoleHandler is a custom handler for colored console output
type consoleHandler struct {
	out   io.Writer
	mu    *sync.Mutex
	level slog.Level
	attrs []slog.Attr
}

func (h *consoleHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(ctx context.Context, r slog.Record) error {
	levelStr := r.Level.String()
	switch r.Level {
	case slog.LevelError:
		levelStr = colorize(r.Level, "ERROR")
	case slog.LevelWarn:
		levelStr = colorize(r.Level, "WARN ")
	case slog.LevelInfo:
		levelStr = colorize(r.Level, "INFO ")
	case slog.LevelDebug:
		levelStr = colorize(r.Level, "DEBUG")
	}

	timeStr := colorize(slog.LevelInfo, r.Time.Format("15:04:05.000"))

	parts := []string{fmt.Sprintf("%s %s %s", timeStr, levelStr, r.Message)}

	appendAttr := func(attr slog.Attr) bool {
		attrStr := fmt.Sprintf("%s=%v", attr.Key, attr.Value)
		switch attr.Key {
		case "error":
			parts = append(parts, colorize(slog.LevelError, attrStr))
		case "site", "peer":
			parts = append(parts, colorize(slog.LevelDebug, attrStr))
		default:
			parts = append(parts, colorize(slog.LevelInfo, attrStr))
		}
		return true
	}
	for _, attr := range h.attrs {
		appendAttr(attr)
	}
	r.Attrs(appendAttr)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := fmt.Fprintln(h.out, strings.Join(parts, " "))
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &consoleHandler{out: h.out, mu: h.mu, level: h.level, attrs: merged}
}

// WithGroup is a no-op, the console format has no nesting.
func (h *consoleHandler) WithGroup(name string) slog.Handler {
	return h
}

// DefaultLogger creates a new logger with default settings
func DefaultLogger() *Logger {
	return NewLogger(os.Stdout, InfoLevel)
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: ErrorLevel + 1}))}
}

// With adds attributes to the logger
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		logger: l.logger.With(toAttrSlice(args)...),
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, args ...interface{}) {
	l.logger.Debug(msg, toAttrSlice(args)...)
}

// Info logs an info message
func (l *Logger) Info(msg string, args ...interface{}) {
	l.logger.Info(msg, toAttrSlice(args)...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, args ...interface{}) {
	l.logger.Warn(msg, toAttrSlice(args)...)
}

// Error logs an error message
func (l *Logger) Error(msg string, args ...interface{}) {
	l.logger.Error(msg, toAttrSlice(args)...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, args ...interface{}) {
	l.logger.Error(msg, toAttrSlice(args)...)
	os.Exit(1)
}

// WithError adds an error to the logger
func (l *Logger) WithError(err error) *Logger {
	return l.With("error", err.Error())
}

// toAttrSlice converts key-value pairs to slog arguments
func toAttrSlice(args []interface{}) []any {
	if len(args)%2 != 0 {
		args = append(args, "(MISSING)")
	}
	attrs := make([]any, 0, len(args))
	for i := 0; i < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", args[i])
		}
		attrs = append(attrs, key, args[i+1])
	}
	return attrs
}
