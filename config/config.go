// Package config holds the server's tunable settings, loadable from
// EMBER_* environment variables.
package config

import (
	"crypto/tls"
	"runtime"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Defaults applied by Normalized for unset fields.
const (
	DefaultQueueSize       = 128
	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultMaxHeaderBytes  = 8 * 1024
	DefaultMaxBodyBytes    = 1 << 20
)

// Config tunes the server. The zero value is usable: the server
// normalizes it on construction. Workers defaults to the CPU count.
type Config struct {
	Workers         int           `env:"EMBER_WORKERS"`
	QueueSize       int           `env:"EMBER_QUEUE_SIZE"`
	ReadTimeout     time.Duration `env:"EMBER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `env:"EMBER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `env:"EMBER_SHUTDOWN_TIMEOUT"`
	MaxHeaderBytes  int           `env:"EMBER_MAX_HEADER_BYTES"`
	MaxBodyBytes    int           `env:"EMBER_MAX_BODY_BYTES"`
	MaxConns        int           `env:"EMBER_MAX_CONNS"`
	Debug           bool          `env:"EMBER_DEBUG"`
	LogOutput       string        `env:"EMBER_LOG_OUTPUT"`

	// TLS and Logger are wired in code, never from the environment.
	TLS    *tls.Config `env:"-"`
	Logger *zap.Logger `env:"-"`
}

// New returns a Config with defaults.
func New() *Config {
	return (&Config{}).Normalized()
}

// FromEnv builds a Config from EMBER_* environment variables, with
// defaults for anything unset.
func FromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "parse environment")
	}
	return cfg.Normalized(), nil
}

// Normalized returns a copy with zero or negative fields replaced by
// defaults. The receiver is not modified.
func (c *Config) Normalized() *Config {
	out := *c
	if out.Workers <= 0 {
		out.Workers = runtime.NumCPU()
	}
	if out.QueueSize <= 0 {
		out.QueueSize = DefaultQueueSize
	}
	if out.ReadTimeout <= 0 {
		out.ReadTimeout = DefaultReadTimeout
	}
	if out.WriteTimeout <= 0 {
		out.WriteTimeout = DefaultWriteTimeout
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = DefaultShutdownTimeout
	}
	if out.MaxHeaderBytes <= 0 {
		out.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if out.MaxBodyBytes <= 0 {
		out.MaxBodyBytes = DefaultMaxBodyBytes
	}
	return &out
}
