// Package logging wraps log/slog with a process-wide logger that writes
// text to the console and JSON to a weekly rotating file.
package logging

import (
	"log/slog"
	"os"
	"strings"
)

type LoggingService struct {
	Logger   *slog.Logger
	rotating *RotatingLogger
}

var DefaultLoggingService *LoggingService

// InitLogger initializes the global logger at info level with 4 weeks of retention.
// An empty logDir logs to the console only.
func InitLogger(logDir string) {
	InitLoggerWithOptions(Options{LogDir: logDir, Level: "info", RetentionWeeks: 4})
}

// Options configures InitLoggerWithOptions
type Options struct {
	LogDir         string
	Level          string
	RetentionWeeks int
	MaxFileSize    int64
}

// InitLoggerWithOptions initializes the global logger and sets it as the slog default
func InitLoggerWithOptions(opts Options) {
	if DefaultLoggingService != nil && DefaultLoggingService.rotating != nil {
		_ = DefaultLoggingService.rotating.Close()
	}

	level := parseLogLevel(opts.Level)
	consoleHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})

	service := &LoggingService{Logger: slog.New(consoleHandler)}

	if opts.LogDir != "" {
		rotating, err := NewRotatingLoggerWithSizeLimit(opts.LogDir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			service.Logger.Error("Failed to initialize rotating logger, console only", "error", err)
		} else {
			fileHandler := slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: level})
			service.rotating = rotating
			service.Logger = slog.New(&multiHandler{handlers: []slog.Handler{consoleHandler, fileHandler}})
		}
	}

	DefaultLoggingService = service
	slog.SetDefault(service.Logger)
}

// Close flushes and closes the rotating file, if any
func Close() error {
	if DefaultLoggingService == nil || DefaultLoggingService.rotating == nil {
		return nil
	}
	err := DefaultLoggingService.rotating.Close()
	DefaultLoggingService.rotating = nil
	return err
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func logger() *slog.Logger {
	if DefaultLoggingService == nil || DefaultLoggingService.Logger == nil {
		// Fallback to console logger if not initialized
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return DefaultLoggingService.Logger
}

// With returns a child logger tagged with a component name
func With(component string) *slog.Logger {
	return logger().With("component", component)
}

func Info(msg string, args ...any) {
	logger().Info(msg, args...)
}

func Error(msg string, args ...any) {
	logger().Error(msg, args...)
}

func Warn(msg string, args ...any) {
	logger().Warn(msg, args...)
}

func Debug(msg string, args ...any) {
	logger().Debug(msg, args...)
}
