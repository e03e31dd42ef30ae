// Package logger configures the process-wide zap logger.
package logger

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	global = zap.NewNop().Sugar()
)

// Config controls log level and optional file output.
type Config struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Init builds the global logger. Logs always go to stderr; if a file path is
// configured they are additionally written there with rotation.
func Init(config Config) error {
	level := zapcore.InfoLevel
	if config.Level != "" {
		if err := level.Set(config.Level); err != nil {
			return err
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stderr),
			level,
		),
	}

	if config.File != "" {
		fileSink := zapcore.AddSync(&lumberjack.Logger{
			Filename:   config.File,
			MaxSize:    50, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
		})
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			fileSink,
			level,
		))
	}

	logger := zap.New(zapcore.NewTee(cores...))

	mu.Lock()
	global = logger.Sugar()
	mu.Unlock()
	return nil
}

// L returns the global sugared logger.
func L() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered log entries.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = global.Sync()
}
