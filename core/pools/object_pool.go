package pools

import (
	"sync"
	"sync/atomic"
)

// ObjectPool recycles request- and response-sized objects with optional
// warmup and hit-rate statistics. Put resets the object through the
// configured Reset hook before pooling it.
type ObjectPool struct {
	pool    sync.Pool
	newFn   func() any
	resetFn func(any)

	gets atomic.Uint64
	puts atomic.Uint64
	news atomic.Uint64
}

// ObjectPoolConfig configures an object pool.
type ObjectPoolConfig struct {
	New    func() any
	Reset  func(any)
	Warmup int // objects to pre-allocate
}

// NewObjectPool creates a pool and pre-allocates Warmup objects.
func NewObjectPool(cfg ObjectPoolConfig) *ObjectPool {
	op := &ObjectPool{
		newFn:   cfg.New,
		resetFn: cfg.Reset,
	}
	op.pool.New = func() any {
		op.news.Add(1)
		return op.newFn()
	}

	for i := 0; i < cfg.Warmup; i++ {
		op.pool.Put(op.newFn())
	}
	return op
}

// Get acquires an object from the pool.
func (op *ObjectPool) Get() any {
	op.gets.Add(1)
	return op.pool.Get()
}

// Put resets obj and returns it to the pool.
func (op *ObjectPool) Put(obj any) {
	if obj == nil {
		return
	}
	op.puts.Add(1)
	if op.resetFn != nil {
		op.resetFn(obj)
	}
	op.pool.Put(obj)
}

// ObjectPoolStats is a snapshot of pool reuse.
type ObjectPoolStats struct {
	Gets    uint64  `json:"gets"`
	Puts    uint64  `json:"puts"`
	News    uint64  `json:"news"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns reuse statistics. HitRate is the share of Gets served
// without a fresh allocation.
func (op *ObjectPool) Stats() ObjectPoolStats {
	gets := op.gets.Load()
	news := op.news.Load()

	hitRate := 0.0
	if gets > 0 && gets > news {
		hitRate = float64(gets-news) / float64(gets)
	}
	return ObjectPoolStats{
		Gets:    gets,
		Puts:    op.puts.Load(),
		News:    news,
		HitRate: hitRate,
	}
}
