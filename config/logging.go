package config

import (
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a JSON zap logger for the server. debug lowers the
// level to Debug (per-connection parse and route logging). output, when
// non-empty, is a file path the log is written to in addition to
// stderr.
func NewLogger(debug bool, output string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if output != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, output)
	}
	log, err := cfg.Build()
	if err != nil {
		return nil, errors.Wrap(err, "build logger")
	}
	return log, nil
}
