package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// Buffer pool tiers.
const (
	SmallBufferSize  = 2 * 1024  // simple text responses
	MediumBufferSize = 8 * 1024  // typical JSON
	LargeBufferSize  = 32 * 1024 // large payloads
)

// BufferPool recycles byte buffers in three size tiers. Buffers above
// the large tier are handed to the GC instead of being pooled.
type BufferPool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool

	smallHits     atomic.Uint64
	mediumHits    atomic.Uint64
	largeHits     atomic.Uint64
	totalAcquires atomic.Uint64
}

// NewBufferPool creates an empty tiered buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{
		small: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, SmallBufferSize)
				return &buf
			},
		},
		medium: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, MediumBufferSize)
				return &buf
			},
		},
		large: sync.Pool{
			New: func() any {
				buf := make([]byte, 0, LargeBufferSize)
				return &buf
			},
		},
	}
}

// Acquire returns an empty buffer sized for estimatedSize bytes.
func (bp *BufferPool) Acquire(estimatedSize int) *[]byte {
	bp.totalAcquires.Add(1)

	switch {
	case estimatedSize <= SmallBufferSize:
		bp.smallHits.Add(1)
		return bp.small.Get().(*[]byte)
	case estimatedSize <= MediumBufferSize:
		bp.mediumHits.Add(1)
		return bp.medium.Get().(*[]byte)
	default:
		bp.largeHits.Add(1)
		return bp.large.Get().(*[]byte)
	}
}

// Release returns a buffer to its tier. Length is reset, capacity kept.
func (bp *BufferPool) Release(buf *[]byte) {
	if buf == nil {
		return
	}
	*buf = (*buf)[:0]

	switch c := cap(*buf); {
	case c <= SmallBufferSize:
		bp.small.Put(buf)
	case c <= MediumBufferSize:
		bp.medium.Put(buf)
	case c <= LargeBufferSize:
		bp.large.Put(buf)
	}
}

// BufferPoolStats is a snapshot of tier usage.
type BufferPoolStats struct {
	SmallHits  uint64 `json:"small_hits"`
	MediumHits uint64 `json:"medium_hits"`
	LargeHits  uint64 `json:"large_hits"`
	Acquires   uint64 `json:"acquires"`
}

// Stats returns buffer pool statistics.
func (bp *BufferPool) Stats() BufferPoolStats {
	return BufferPoolStats{
		SmallHits:  bp.smallHits.Load(),
		MediumHits: bp.mediumHits.Load(),
		LargeHits:  bp.largeHits.Load(),
		Acquires:   bp.totalAcquires.Load(),
	}
}

// Global buffer pool shared by response serialization.
var globalBufferPool = NewBufferPool()

// AcquireBuffer gets a buffer from the global pool.
func AcquireBuffer(estimatedSize int) *[]byte {
	return globalBufferPool.Acquire(estimatedSize)
}

// ReleaseBuffer returns a buffer to the global pool.
func ReleaseBuffer(buf *[]byte) {
	globalBufferPool.Release(buf)
}

// GetBufferStats returns statistics for the global buffer pool.
func GetBufferStats() BufferPoolStats {
	return globalBufferPool.Stats()
}

// ReaderPool recycles bufio.Readers across connections so each dispatch
// starts with a warm buffer instead of a fresh allocation.
type ReaderPool struct {
	pool sync.Pool
	size int
}

// NewReaderPool creates a pool of readers with the given buffer size;
// size <= 0 means 4 KiB.
func NewReaderPool(size int) *ReaderPool {
	if size <= 0 {
		size = 4 * 1024
	}
	rp := &ReaderPool{size: size}
	rp.pool.New = func() any {
		return bufio.NewReaderSize(nil, rp.size)
	}
	return rp
}

// Acquire returns a reader reset to r.
func (rp *ReaderPool) Acquire(r io.Reader) *bufio.Reader {
	br := rp.pool.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// Release detaches the reader from its source and pools it.
func (rp *ReaderPool) Release(br *bufio.Reader) {
	br.Reset(nil)
	rp.pool.Put(br)
}
