// Package core implements the HTTP/1.x server: a bound listener feeding
// accepted connections to a fixed worker pool, where each connection is
// parsed, routed, handled, and answered exactly once.
package core

import (
	"context"
	"crypto/tls"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/emberhttp/ember/config"
	"github.com/emberhttp/ember/core/http"
	"github.com/emberhttp/ember/core/pools"
	"github.com/emberhttp/ember/core/router"
)

var (
	// ErrBind marks any failure to bind the listen address, including a
	// secure server constructed without TLS material.
	ErrBind = errors.New("bind failed")

	// ErrServerClosed is returned by Start after a graceful Shutdown.
	ErrServerClosed = errors.New("server closed")
)

// Server is an embeddable HTTP/1.x server. Construct it with NewServer,
// register routes, then call Start (blocking). Connections are served
// one request each and always closed after the response.
type Server struct {
	host   string
	port   int
	secure bool
	cfg    *config.Config
	log    *zap.Logger

	routes *router.Table
	parser http.Parser
	pool   *pools.WorkerPool

	requestPool  *pools.ObjectPool
	responsePool *pools.ObjectPool
	readers      *pools.ReaderPool

	mu    sync.Mutex
	ln    net.Listener
	state atomic.Int32

	counters serverCounters
}

// NewServer creates a server for host:port. A nil cfg uses defaults; the
// worker pool starts immediately so routes can be registered and the
// server started later. secure wraps the listener in TLS at bind time
// and requires cfg.TLS.
func NewServer(host string, port int, secure bool, cfg *config.Config) *Server {
	if cfg == nil {
		cfg = config.New()
	}
	cfg = cfg.Normalized()

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		host:   host,
		port:   port,
		secure: secure,
		cfg:    cfg,
		log:    log,
		routes: router.New(),
		parser: http.Parser{
			MaxHeaderBytes: cfg.MaxHeaderBytes,
			MaxBodyBytes:   cfg.MaxBodyBytes,
		},
		pool:    pools.NewWorkerPool(cfg.Workers, cfg.QueueSize, log),
		readers: pools.NewReaderPool(0),
	}

	warmup := cfg.Workers * 2
	s.requestPool = pools.NewObjectPool(pools.ObjectPoolConfig{
		New:    func() any { return &http.Request{} },
		Reset:  func(obj any) { obj.(*http.Request).Reset() },
		Warmup: warmup,
	})
	s.responsePool = pools.NewObjectPool(pools.ObjectPoolConfig{
		New:    func() any { return &http.Response{} },
		Reset:  func(obj any) { obj.(*http.Response).Reset() },
		Warmup: warmup,
	})
	return s
}

// AddRoute registers handler for an exact method and path. Registering
// the same pair again replaces the handler. Safe to call while serving.
func (s *Server) AddRoute(method, path string, handler http.Handler) {
	s.routes.Register(method, path, handler)
	s.log.Debug("route registered",
		zap.String("method", method),
		zap.String("path", path),
	)
}

// GET registers a GET route.
func (s *Server) GET(path string, handler http.HandlerFunc) {
	s.AddRoute("GET", path, handler)
}

// POST registers a POST route.
func (s *Server) POST(path string, handler http.HandlerFunc) {
	s.AddRoute("POST", path, handler)
}

// PUT registers a PUT route.
func (s *Server) PUT(path string, handler http.HandlerFunc) {
	s.AddRoute("PUT", path, handler)
}

// DELETE registers a DELETE route.
func (s *Server) DELETE(path string, handler http.HandlerFunc) {
	s.AddRoute("DELETE", path, handler)
}

// PATCH registers a PATCH route.
func (s *Server) PATCH(path string, handler http.HandlerFunc) {
	s.AddRoute("PATCH", path, handler)
}

// HEAD registers a HEAD route.
func (s *Server) HEAD(path string, handler http.HandlerFunc) {
	s.AddRoute("HEAD", path, handler)
}

// OPTIONS registers an OPTIONS route.
func (s *Server) OPTIONS(path string, handler http.HandlerFunc) {
	s.AddRoute("OPTIONS", path, handler)
}

// Routes lists registered routes as "METHOD path", sorted.
func (s *Server) Routes() []string {
	return s.routes.Routes()
}

// State reports the lifecycle phase.
func (s *Server) State() State {
	return State(s.state.Load())
}

// Addr returns the bound listen address, or nil before a successful
// bind. With port 0 this is the only way to learn the assigned port.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Start binds the listen address and serves until Shutdown. It blocks.
// A bind failure is returned immediately and is marked ErrBind; after a
// graceful Shutdown, Start returns ErrServerClosed.
func (s *Server) Start() error {
	if st := s.State(); st != StateStarting {
		return errors.Newf("start: server is %s", st)
	}

	ln, err := s.bind()
	if err != nil {
		return err
	}
	if !s.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
		// Shutdown won the race before the first accept.
		ln.Close()
		return ErrServerClosed
	}
	s.log.Info("server listening",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", s.secure),
		zap.Int("workers", s.cfg.Workers),
	)
	return s.serve(ln)
}

func (s *Server) bind() (net.Listener, error) {
	addr := net.JoinHostPort(s.host, strconv.Itoa(s.port))

	if s.secure && s.cfg.TLS == nil {
		return nil, errors.Mark(errors.Newf("bind %s: secure server requires a TLS config", addr), ErrBind)
	}

	lc := net.ListenConfig{Control: reuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "bind %s", addr), ErrBind)
	}

	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}
	if s.secure {
		ln = tls.NewListener(ln, s.cfg.TLS)
	}

	s.mu.Lock()
	if s.ln != nil {
		prev := s.ln
		s.mu.Unlock()
		ln.Close()
		return nil, errors.Newf("bind %s: already bound to %s", addr, prev.Addr())
	}
	s.ln = ln
	s.mu.Unlock()
	return ln, nil
}

func (s *Server) serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return errors.Wrap(err, "listener closed")
			}
			s.log.Warn("accept failed", zap.Error(err))
			time.Sleep(5 * time.Millisecond)
			continue
		}

		s.counters.accepted.Add(1)
		if !s.pool.Submit(func() { s.dispatch(conn) }) {
			// Pool already closed: shutdown won the race.
			conn.Close()
		}
	}
}

func (s *Server) shuttingDown() bool {
	st := s.State()
	return st == StateStopping || st == StateStopped
}

// Shutdown stops accepting, lets queued and in-flight connections
// finish, and waits for the workers, bounded by ctx. It is idempotent;
// concurrent calls may return before the drain completes.
func (s *Server) Shutdown(ctx context.Context) error {
	for {
		st := s.State()
		if st == StateStopping || st == StateStopped {
			return nil
		}
		if s.state.CompareAndSwap(int32(st), int32(StateStopping)) {
			break
		}
	}

	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln != nil {
		s.log.Info("server shutting down", zap.String("addr", ln.Addr().String()))
		ln.Close()
	}

	s.pool.Close()
	drained := make(chan struct{})
	go func() {
		s.pool.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.state.Store(int32(StateStopped))
		s.log.Info("server stopped",
			zap.Uint64("accepted", s.counters.accepted.Load()),
			zap.Uint64("responses", s.counters.responses.Load()),
		)
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "shutdown")
	}
}
