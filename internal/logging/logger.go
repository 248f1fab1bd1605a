// Package logging builds the shared zap logger. Components receive a
// *zap.Logger in their constructors and never construct their own.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Debug switches to development encoding and debug level.
	Debug bool

	// File, when non-empty, duplicates all output to the given path.
	File string
}

// New builds the process-wide logger. Console output goes to stderr so
// that mirrored command output on stdout stays clean.
func New(opts Options) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if opts.Debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleEnc := zapcore.NewConsoleEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.Lock(os.Stderr), level),
	}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		jsonEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(jsonEnc, zapcore.AddSync(f), zapcore.DebugLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if opts.Debug {
		logger = logger.WithOptions(zap.AddCaller())
	}
	return logger, nil
}

// Nop returns a no-op logger for tests and optional dependencies.
func Nop() *zap.Logger { return zap.NewNop() }
