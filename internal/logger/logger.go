// Package logger provides structured, leveled logging built on zap.
//
// Components receive a *Logger and derive a named child for their own messages:
//
//	log := logger.GetGlobal().Named("reconciler")
//	log.Info("record updated", "employee_id", id, "revision", rev)
//
// Console output is human readable; an optional file output is JSON and rotated by
// lumberjack (see rotation.go).
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config controls logger construction
type Config struct {
	Level         string // debug, info, warn, error
	Development   bool
	JSON          bool
	DisableColor  bool
	DisableCaller bool
	FilePath      string // optional rotated JSON log file
	Rotation      RotationConfig
}

// DefaultConfig returns console logging at info level
func DefaultConfig() Config {
	return Config{
		Level:    "info",
		Rotation: DefaultRotationConfig(),
	}
}

// Logger wraps a zap logger and its sugared variant
type Logger struct {
	zap    *zap.Logger
	sugar  *zap.SugaredLogger
	config Config
}

// NewLogger builds a console logger, teeing into a rotated file when FilePath is set
func NewLogger(config Config) (*Logger, error) {
	level := zapcore.InfoLevel
	if config.Development {
		level = zapcore.DebugLevel
	}
	level = getZapLevel(config.Level, level)

	encoderConfig := createEncoderConfig()
	if !config.JSON && !config.DisableColor {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var consoleEncoder zapcore.Encoder
	if config.JSON {
		consoleEncoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		consoleEncoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.Lock(os.Stdout), zap.NewAtomicLevelAt(level)),
	}

	if config.FilePath != "" {
		fileCore, err := CreateRotatingFileCore(
			config.FilePath,
			zapcore.NewJSONEncoder(createEncoderConfig()),
			level,
			config.Rotation,
		)
		if err != nil {
			return nil, err
		}
		cores = append(cores, fileCore)
	}

	return NewLoggerWithCore(zapcore.NewTee(cores...), config), nil
}

// Named returns a child logger for a component
func (l *Logger) Named(name string) *Logger {
	z := l.zap.Named(name)
	return &Logger{zap: z, sugar: z.Sugar(), config: l.config}
}

// With returns a child logger that always carries the given key/value pairs
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	s := l.sugar.With(keysAndValues...)
	return &Logger{zap: s.Desugar(), sugar: s, config: l.config}
}

// Debug logs a message with key/value pairs at debug level
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs a message with key/value pairs at info level
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs a message with key/value pairs at warn level
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs a message with key/value pairs at error level
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

// Fatal logs a message and exits the process
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

// Zap exposes the underlying zap logger
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Sync flushes buffered output
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

func createEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "time"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder
	return cfg
}

// getZapLevel maps a config string to a zap level, falling back to def
func getZapLevel(level string, def zapcore.Level) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return def
	}
}
