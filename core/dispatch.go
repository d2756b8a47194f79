package core

import (
	"bufio"
	"io"
	"net"
	"runtime/debug"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/emberhttp/ember/core/http"
)

// dispatchState advances one connection through the machine. A nil
// return ends it.
type dispatchState func(*dispatch) dispatchState

// dispatch carries a single accepted connection through
// read -> route -> handle -> write -> close. Error exits jump straight
// to the write state with an error response, or to close when there is
// nothing useful to answer. Exactly one response is written per
// connection and the connection is always closed.
type dispatch struct {
	srv     *Server
	conn    net.Conn
	reader  *bufio.Reader
	req     *http.Request
	res     *http.Response
	handler http.Handler
}

// dispatch runs on a pool worker.
func (s *Server) dispatch(conn net.Conn) {
	s.counters.dispatched.Add(1)
	d := &dispatch{srv: s, conn: conn}
	for state := stateRead; state != nil; {
		state = state(d)
	}
}

// fail swaps in a plain error response and proceeds to the write
// state. The body is the status text only; error details stay in the
// log.
func (d *dispatch) fail(code int) dispatchState {
	if d.res == nil {
		d.res = d.srv.responsePool.Get().(*http.Response)
	}
	d.res.Reset()
	d.res.Text(code, http.StatusText(code))
	return stateWrite
}

func stateRead(d *dispatch) dispatchState {
	s := d.srv
	if t := s.cfg.ReadTimeout; t > 0 {
		d.conn.SetReadDeadline(time.Now().Add(t))
	}
	d.reader = s.readers.Acquire(d.conn)
	d.req = s.requestPool.Get().(*http.Request)
	d.req.RemoteAddr = d.conn.RemoteAddr().String()

	if err := s.parser.Parse(d.reader, d.req); err != nil {
		code := parseStatus(err)
		if code == 0 {
			// Timeout, reset, or the peer closed without sending a
			// request: nothing useful to answer.
			s.counters.ioFailures.Add(1)
			if !errors.Is(err, io.EOF) {
				s.log.Debug("read failed",
					zap.String("remote", d.req.RemoteAddr),
					zap.Error(err),
				)
			}
			return stateClose
		}
		s.counters.parseFailures.Add(1)
		s.log.Debug("request rejected",
			zap.String("remote", d.req.RemoteAddr),
			zap.Int("status", code),
			zap.Error(err),
		)
		return d.fail(code)
	}
	return stateRoute
}

func stateRoute(d *dispatch) dispatchState {
	s := d.srv
	handler, params := s.routes.Resolve(d.req.Method, d.req.Path)
	if handler == nil {
		s.counters.routeMisses.Add(1)
		s.log.Debug("no route",
			zap.String("method", d.req.Method),
			zap.String("path", d.req.Path),
		)
		return d.fail(http.StatusNotFound)
	}
	d.req.Params = params
	d.handler = handler
	return stateHandle
}

func stateHandle(d *dispatch) dispatchState {
	s := d.srv
	d.res = s.responsePool.Get().(*http.Response)

	panicked, err := d.invoke()
	switch {
	case panicked:
		s.counters.handlerPanics.Add(1)
		return d.fail(http.StatusInternalServerError)
	case err != nil:
		s.counters.handlerFailures.Add(1)
		code := http.CodeOf(err)
		s.log.Warn("handler failed",
			zap.String("method", d.req.Method),
			zap.String("path", d.req.Path),
			zap.Int("status", code),
			zap.Error(err),
		)
		return d.fail(code)
	}
	return stateWrite
}

// invoke runs the handler inside a recover boundary so a panicking
// handler takes down neither the worker nor the server.
func (d *dispatch) invoke() (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			d.srv.log.Error("handler panic",
				zap.String("method", d.req.Method),
				zap.String("path", d.req.Path),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()
	err = d.handler.Serve(d.req, d.res)
	return
}

func stateWrite(d *dispatch) dispatchState {
	s := d.srv
	if t := s.cfg.WriteTimeout; t > 0 {
		d.conn.SetWriteDeadline(time.Now().Add(t))
	}
	if _, err := d.res.WriteTo(d.conn); err != nil {
		s.counters.ioFailures.Add(1)
		s.log.Debug("write failed",
			zap.String("remote", d.conn.RemoteAddr().String()),
			zap.Error(err),
		)
		return stateClose
	}
	s.counters.responses.Add(1)
	return stateClose
}

func stateClose(d *dispatch) dispatchState {
	s := d.srv
	if d.reader != nil {
		s.readers.Release(d.reader)
		d.reader = nil
	}
	if d.req != nil {
		s.requestPool.Put(d.req)
		d.req = nil
	}
	if d.res != nil {
		s.responsePool.Put(d.res)
		d.res = nil
	}
	d.conn.Close()
	return nil
}

// parseStatus maps a parse failure to a response status. Zero means the
// failure was transport-level and the connection closes silently.
func parseStatus(err error) int {
	switch {
	case errors.Is(err, http.ErrBodyTooLarge):
		return http.StatusPayloadTooLarge
	case errors.Is(err, http.ErrHeaderTooLarge):
		return http.StatusHeaderFieldsTooLarge
	case errors.Is(err, http.ErrMalformedRequest),
		errors.Is(err, http.ErrUnknownMethod),
		errors.Is(err, http.ErrMalformedHeader),
		errors.Is(err, http.ErrTruncatedBody):
		return http.StatusBadRequest
	default:
		return 0
	}
}
