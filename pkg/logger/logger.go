// Package logger wraps zerolog with a process-wide logger, context-scoped
// child loggers and buffered output.
package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// LoggerKey is the context key for logger
	LoggerKey contextKey = "logger"
)

var (
	globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	globalWriter *SmartWriter
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output io.Writer
}

// InitWithFile logs to a rotating file and, unless console is false, to
// stdout as well.
func InitWithFile(filename, level, format string, console bool) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		panic(err)
	}

	var out io.Writer = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    100, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	if console {
		out = io.MultiWriter(os.Stdout, out)
	}

	Init(Config{
		Level:  level,
		Format: format,
		Output: out,
	})
}

// Init initializes the global logger. Output is always wrapped in a
// SmartWriter: buffered, flushed every second and on error lines.
func Init(cfg Config) {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if globalWriter != nil {
		_ = globalWriter.Close()
	}
	globalWriter = NewSmartWriter(output, time.Second)

	zerolog.CallerMarshalFunc = shortCaller

	var w io.Writer = globalWriter
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{
			Out:        globalWriter,
			TimeFormat: "2006-01-02 15:04:05.000",
			FormatLevel: func(i interface{}) string {
				return strings.ToUpper(fmt.Sprintf("%-7s", i))
			},
			FormatCaller: func(i interface{}) string {
				return fmt.Sprintf("%-24s", i)
			},
			PartsOrder: []string{
				zerolog.TimestampFieldName,
				zerolog.LevelFieldName,
				zerolog.CallerFieldName,
				zerolog.MessageFieldName,
			},
		}
	}
	globalLogger = zerolog.New(w).With().Timestamp().Caller().Logger()
}

// shortCaller keeps the last directory and the file name, e.g.
// machine/scheduler.go:120
func shortCaller(pc uintptr, file string, line int) string {
	short := file
	seen := 0
	for i := len(file) - 1; i > 0; i-- {
		if file[i] == '/' {
			seen++
			if seen == 2 {
				short = file[i+1:]
				break
			}
		}
	}
	return fmt.Sprintf("%s:%d", short, line)
}

// Flush forces all buffered logs to be written to the underlying writer
func Flush() {
	if globalWriter != nil {
		_ = globalWriter.Sync()
	}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// WithRequestID returns a context carrying the request ID and a child logger
// tagged with it
func WithRequestID(ctx context.Context, requestID string) context.Context {
	l := FromContext(ctx).With().Str("request_id", requestID).Logger()
	ctx = context.WithValue(ctx, RequestIDKey, requestID)
	return context.WithValue(ctx, LoggerKey, &l)
}

// WithFields adds fields to the context logger
func WithFields(ctx context.Context, fields map[string]interface{}) context.Context {
	c := FromContext(ctx).With()
	for k, v := range fields {
		c = c.Interface(k, v)
	}
	l := c.Logger()
	return context.WithValue(ctx, LoggerKey, &l)
}

// WithRound tags the context logger with a mode and round id
func WithRound(ctx context.Context, mode, roundID string) context.Context {
	l := FromContext(ctx).With().Str("mode", mode).Str("round_id", roundID).Logger()
	return context.WithValue(ctx, LoggerKey, &l)
}

// FromContext returns the context logger, or the global one
func FromContext(ctx context.Context) *zerolog.Logger {
	if ctx == nil {
		return &globalLogger
	}
	if l, ok := ctx.Value(LoggerKey).(*zerolog.Logger); ok && l != nil {
		return l
	}
	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		l := globalLogger.With().Str("request_id", requestID).Logger()
		return &l
	}
	return &globalLogger
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

func Debug(ctx context.Context) *zerolog.Event { return FromContext(ctx).Debug() }
func Info(ctx context.Context) *zerolog.Event  { return FromContext(ctx).Info() }
func Warn(ctx context.Context) *zerolog.Event  { return FromContext(ctx).Warn() }
func Error(ctx context.Context) *zerolog.Event { return FromContext(ctx).Error() }
func Fatal(ctx context.Context) *zerolog.Event { return FromContext(ctx).Fatal() }

// Global logger methods, for code without a context

func DebugGlobal() *zerolog.Event { return globalLogger.Debug() }
func InfoGlobal() *zerolog.Event  { return globalLogger.Info() }
func WarnGlobal() *zerolog.Event  { return globalLogger.Warn() }
func ErrorGlobal() *zerolog.Event { return globalLogger.Error() }
func FatalGlobal() *zerolog.Event { return globalLogger.Fatal() }
