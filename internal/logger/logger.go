package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Level represents the logging level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level
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

func (l Level) zerolog() zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

// Logger is the interface for logging operations
type Logger interface {
	Debug(format string, v ...any)
	Info(format string, v ...any)
	Warn(format string, v ...any)
	Error(format string, v ...any)
	Fatal(format string, v ...any)
	SetLevel(level Level)
}

// LogConfig holds configuration for the logger
type LogConfig struct {
	// Output destination: "file" or "stderr"
	Output string
	// Log level: "debug", "info", "warn", "error", "fatal"
	Level string
	// FilePath for file output (only used when Output is "file")
	FilePath string
}

type zeroLogger struct {
	zl    zerolog.Logger
	level Level
}

// NewLogger creates a new logger based on the provided configuration.
// Empty fields fall back to COMMENTER_LOG_OUTPUT, COMMENTER_LOG_LEVEL and
// COMMENTER_LOG_FILE.
func NewLogger(config LogConfig) (Logger, error) {
	var writer io.Writer

	output := config.Output
	if output == "" {
		output = os.Getenv("COMMENTER_LOG_OUTPUT")
	}
	if output == "" {
		output = "stderr"
	}

	switch output {
	case "stderr":
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case "file":
		filePath := config.FilePath
		if filePath == "" {
			filePath = os.Getenv("COMMENTER_LOG_FILE")
		}
		if filePath == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get user home directory: %w", err)
			}
			logDir := filepath.Join(homeDir, ".doc-commenter")
			if err := os.MkdirAll(logDir, 0755); err != nil {
				return nil, fmt.Errorf("failed to create log directory: %w", err)
			}
			filePath = filepath.Join(logDir, "commenter.log")
		}

		file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writer = zerolog.SyncWriter(file)
	default:
		return nil, fmt.Errorf("invalid log output: %s (expected 'file' or 'stderr')", output)
	}

	levelStr := config.Level
	if levelStr == "" {
		levelStr = os.Getenv("COMMENTER_LOG_LEVEL")
	}
	if levelStr == "" {
		levelStr = "info"
	}

	return newZeroLogger(writer, ParseLevel(levelStr)), nil
}

// NewWriterLogger creates a logger writing JSON lines to w.
func NewWriterLogger(w io.Writer, level Level) Logger {
	return newZeroLogger(w, level)
}

// NewNoOpLogger creates a logger that discards all output (useful for tests)
func NewNoOpLogger() Logger {
	return &zeroLogger{
		zl:    zerolog.Nop(),
		level: FatalLevel,
	}
}

func newZeroLogger(w io.Writer, level Level) *zeroLogger {
	zl := zerolog.New(w).With().Timestamp().Logger().Level(level.zerolog())
	return &zeroLogger{zl: zl, level: level}
}

// ParseLevel converts a string to a Level. Unknown names map to InfoLevel.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return DebugLevel
	case "info":
		return InfoLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	case "fatal":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// SetLevel sets the minimum log level
func (l *zeroLogger) SetLevel(level Level) {
	l.level = level
	l.zl = l.zl.Level(level.zerolog())
}

func (l *zeroLogger) Debug(format string, v ...any) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *zeroLogger) Info(format string, v ...any) {
	l.zl.Info().Msgf(format, v...)
}

func (l *zeroLogger) Warn(format string, v ...any) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *zeroLogger) Error(format string, v ...any) {
	l.zl.Error().Msgf(format, v...)
}

// Fatal logs a fatal message and exits
func (l *zeroLogger) Fatal(format string, v ...any) {
	l.zl.WithLevel(zerolog.FatalLevel).Msgf(format, v...)
	os.Exit(1)
}
