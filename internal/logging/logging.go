// Package logging builds the zap logger. The terminal belongs to the TUI,
// so output goes to a file.
package logging

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel overrides the configured level when set.
const EnvLevel = "TDOME_LOG_LEVEL"

// DefaultLevel is used when nothing else is configured.
const DefaultLevel = "info"

// Options controls where and how much is logged.
type Options struct {
	Path  string
	Level string
}

// New returns a JSON logger writing to opts.Path. An empty path discards
// output.
func New(opts Options) (*zap.Logger, error) {
	level, err := ParseLevel(resolveLevel(opts.Level))
	if err != nil {
		return nil, err
	}
	if opts.Path == "" {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0700); err != nil {
		return nil, errors.Wrap(err, "create log directory")
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{opts.Path}
	config.ErrorOutputPaths = []string{opts.Path}
	config.Sampling = nil

	logger, err := config.Build()
	if err != nil {
		return nil, errors.Wrapf(err, "open log file %s", opts.Path)
	}
	return logger, nil
}

// ParseLevel accepts zap level names, case-insensitively. Empty means
// DefaultLevel.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		s = DefaultLevel
	}
	level, err := zapcore.ParseLevel(s)
	if err != nil {
		return zapcore.InfoLevel, errors.WithHint(
			errors.Wrapf(err, "log level %q", s),
			"use one of debug, info, warn, error",
		)
	}
	return level, nil
}

func resolveLevel(configured string) string {
	if env := os.Getenv(EnvLevel); env != "" {
		return env
	}
	return configured
}
