package logger

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// RotationConfig holds lumberjack rotation settings
type RotationConfig struct {
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultRotationConfig returns the rotation used when none is configured
func DefaultRotationConfig() RotationConfig {
	return RotationConfig{
		MaxSize:    100,
		MaxBackups: 10,
		MaxAge:     30,
	}
}

// CreateRotatingFileCore creates a zapcore.Core that writes to a rotating file
func CreateRotatingFileCore(
	filePath string,
	encoder zapcore.Encoder,
	level zapcore.Level,
	rotationConfig RotationConfig,
) (zapcore.Core, error) {
	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	w := zapcore.AddSync(&lumberjack.Logger{
		Filename:   filePath,
		MaxSize:    rotationConfig.MaxSize,
		MaxBackups: rotationConfig.MaxBackups,
		MaxAge:     rotationConfig.MaxAge,
		Compress:   rotationConfig.Compress,
	})

	return zapcore.NewCore(encoder, w, zap.NewAtomicLevelAt(level)), nil
}
