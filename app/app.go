// Package app ties a server to the process lifecycle: it runs the
// server, waits for SIGINT or SIGTERM, and shuts down gracefully.
package app

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/emberhttp/ember/config"
	"github.com/emberhttp/ember/core"
)

// App composes a Config and a Server with signal handling.
type App struct {
	cfg *config.Config
	srv *core.Server
	log *zap.Logger

	initErr error
}

// New creates an app serving host:port, with TLS when cfg.TLS is set.
// A nil cfg uses defaults. When cfg carries no logger, one is built
// from cfg.Debug and cfg.LogOutput; a logger build failure is reported
// by Run.
func New(host string, port int, cfg *config.Config) *App {
	if cfg == nil {
		cfg = config.New()
	}
	cfg = cfg.Normalized()

	var initErr error
	if cfg.Logger == nil {
		log, err := config.NewLogger(cfg.Debug, cfg.LogOutput)
		if err != nil {
			initErr = err
		} else {
			cfg.Logger = log
		}
	}

	srv := core.NewServer(host, port, cfg.TLS != nil, cfg)

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, srv: srv, log: log, initErr: initErr}
}

// NewWithServer wraps an already-constructed server.
func NewWithServer(cfg *config.Config, srv *core.Server) *App {
	if cfg == nil {
		cfg = config.New()
	}
	cfg = cfg.Normalized()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &App{cfg: cfg, srv: srv, log: log}
}

// Server returns the underlying server for route registration.
func (a *App) Server() *core.Server {
	return a.srv
}

// Run starts the server and blocks until it fails or a SIGINT/SIGTERM
// arrives. On a signal it shuts down gracefully, bounded by
// Config.ShutdownTimeout, and returns nil once the drain completes.
func (a *App) Run() error {
	if a.initErr != nil {
		return a.initErr
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		a.log.Info("signal received, shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil {
		return err
	}

	if err := <-errCh; !errors.Is(err, core.ErrServerClosed) {
		return err
	}
	return nil
}

// Run builds an app for host:port with a debug-aware logger and runs it
// until a signal. It is the one-call entrypoint for small programs.
func Run(host string, port int, debug bool) error {
	cfg := config.New()
	cfg.Debug = debug
	return New(host, port, cfg).Run()
}
