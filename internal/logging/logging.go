// Package logging builds the zap loggers finsight components write to.
//
// Interactive runs own the terminal, so logs go to a file under the data
// directory rather than stderr.
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// FileName is the log file created under <data dir>/logs.
const FileName = "finsight.log"

// New creates a JSON logger appending to path at the given level
// ("debug", "info", "warn", "error"). An empty level means info.
func New(path, level string) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		lvl = parsed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(lvl)
	config.Encoding = "json"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	return logger, nil
}

// ForDataDir creates a logger writing to <dataDir>/logs/finsight.log.
// Returns a no-op logger if the file cannot be opened.
func ForDataDir(dataDir, level string) *zap.Logger {
	logger, err := New(Path(dataDir), level)
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// Path returns the log file location for dataDir.
func Path(dataDir string) string {
	return filepath.Join(dataDir, "logs", FileName)
}

// Console creates a human-readable logger on stderr, used by the server.
func Console(level string) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	config.DisableStacktrace = true
	return config.Build()
}

// Nop returns a logger that discards everything.
func Nop() *zap.Logger {
	return zap.NewNop()
}
