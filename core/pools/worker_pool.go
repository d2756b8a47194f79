package pools

import (
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Task is a unit of work executed by the pool.
type Task func()

// WorkerPool runs a fixed set of workers off one shared FIFO queue.
// Tasks are picked up in submission order; a task that panics is
// discarded by its worker, which keeps running.
type WorkerPool struct {
	workers int
	tasks   chan Task
	quit    chan struct{}
	gate    sync.RWMutex // keeps Submit's send ordered before Close's close
	wg      sync.WaitGroup
	closed  atomic.Bool
	log     *zap.Logger

	stats struct {
		submitted atomic.Uint64
		completed atomic.Uint64
		panics    atomic.Uint64
		rejected  atomic.Uint64
	}
}

// NewWorkerPool starts numWorkers workers sharing a queue of queueSize
// slots. numWorkers <= 0 means one per CPU; queueSize 0 means the queue
// is a rendezvous and every Submit waits for a free worker.
func NewWorkerPool(numWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if log == nil {
		log = zap.NewNop()
	}

	p := &WorkerPool{
		workers: numWorkers,
		tasks:   make(chan Task, queueSize),
		quit:    make(chan struct{}),
		log:     log,
	}

	p.wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go p.run(i)
	}
	return p
}

// Submit queues a task, blocking while the queue is full. It reports
// false once the pool has closed; the task is then never run.
func (p *WorkerPool) Submit(task Task) bool {
	p.gate.RLock()
	defer p.gate.RUnlock()

	if p.closed.Load() {
		p.stats.rejected.Add(1)
		return false
	}
	select {
	case p.tasks <- task:
		p.stats.submitted.Add(1)
		return true
	case <-p.quit:
		p.stats.rejected.Add(1)
		return false
	}
}

func (p *WorkerPool) run(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		p.runTask(id, task)
	}
}

// runTask confines a panic to the task that raised it.
func (p *WorkerPool) runTask(id int, task Task) {
	defer func() {
		if v := recover(); v != nil {
			p.stats.panics.Add(1)
			p.log.Error("task panic discarded",
				zap.Int("worker", id),
				zap.Any("panic", v),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	task()
	p.stats.completed.Add(1)
}

// Close stops intake. Tasks already queued still run; use Wait to block
// until the workers have drained them and exited. Close is idempotent.
func (p *WorkerPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	close(p.quit)

	// Every in-flight Submit holds the read side of the gate; taking
	// the write side means no sender can race the close below.
	p.gate.Lock()
	close(p.tasks)
	p.gate.Unlock()
}

// Wait blocks until all workers have exited.
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

// WorkerPoolStats is a snapshot of pool activity.
type WorkerPoolStats struct {
	Workers    int    `json:"workers"`
	Submitted  uint64 `json:"submitted"`
	Completed  uint64 `json:"completed"`
	Panics     uint64 `json:"panics"`
	Rejected   uint64 `json:"rejected"`
	QueueDepth int    `json:"queue_depth"`
}

// Stats returns current pool statistics.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Workers:    p.workers,
		Submitted:  p.stats.submitted.Load(),
		Completed:  p.stats.completed.Load(),
		Panics:     p.stats.panics.Load(),
		Rejected:   p.stats.rejected.Load(),
		QueueDepth: len(p.tasks),
	}
}
