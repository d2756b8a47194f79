package core

import (
	"encoding/json"
	"sync/atomic"

	"github.com/emberhttp/ember/core/pools"
)

// serverCounters tracks connection outcomes. All fields are atomics so
// dispatchers update them without coordination.
type serverCounters struct {
	accepted        atomic.Uint64
	dispatched      atomic.Uint64
	responses       atomic.Uint64
	parseFailures   atomic.Uint64
	routeMisses     atomic.Uint64
	handlerFailures atomic.Uint64
	handlerPanics   atomic.Uint64
	ioFailures      atomic.Uint64
}

// Stats is a point-in-time snapshot of server activity.
type Stats struct {
	Accepted        uint64 `json:"accepted"`
	Dispatched      uint64 `json:"dispatched"`
	Responses       uint64 `json:"responses"`
	ParseFailures   uint64 `json:"parse_failures"`
	RouteMisses     uint64 `json:"route_misses"`
	HandlerFailures uint64 `json:"handler_failures"`
	HandlerPanics   uint64 `json:"handler_panics"`
	IOFailures      uint64 `json:"io_failures"`
	Routes          int    `json:"routes"`

	Workers      pools.WorkerPoolStats `json:"workers"`
	Buffers      pools.BufferPoolStats `json:"buffers"`
	RequestPool  pools.ObjectPoolStats `json:"request_pool"`
	ResponsePool pools.ObjectPoolStats `json:"response_pool"`
}

// Stats returns a snapshot of server activity and pool reuse.
func (s *Server) Stats() Stats {
	return Stats{
		Accepted:        s.counters.accepted.Load(),
		Dispatched:      s.counters.dispatched.Load(),
		Responses:       s.counters.responses.Load(),
		ParseFailures:   s.counters.parseFailures.Load(),
		RouteMisses:     s.counters.routeMisses.Load(),
		HandlerFailures: s.counters.handlerFailures.Load(),
		HandlerPanics:   s.counters.handlerPanics.Load(),
		IOFailures:      s.counters.ioFailures.Load(),
		Routes:          s.routes.Len(),
		Workers:         s.pool.Stats(),
		Buffers:         pools.GetBufferStats(),
		RequestPool:     s.requestPool.Stats(),
		ResponsePool:    s.responsePool.Stats(),
	}
}

// StatsJSON returns the snapshot as indented JSON.
func (s *Server) StatsJSON() string {
	data, _ := json.MarshalIndent(s.Stats(), "", "  ")
	return string(data)
}
