package destination

import (
	"context"
	"sync"

	"destsync/internal/catalog"
	"destsync/internal/record"
)

type streamBuffer struct {
	records []record.Record
	bytes   int64
}

// BufferPool holds one append-ordered buffer per stream and charges every
// record against a global byte budget.
//
// Bytes stay charged after Drain until Release, so records handed to a flush
// still count against the budget until they are written.
type BufferPool struct {
	budget int64
	fail   *FailureSignal

	mu       sync.Mutex
	known    map[catalog.StreamKey]struct{}
	buffers  map[catalog.StreamKey]*streamBuffer
	buffered int64
	inflight int64
	waiting  int
	waits    int64
	// freed is closed and replaced on every Release.
	freed chan struct{}

	// onPressure is called, without the pool lock, each time an enqueue has
	// to wait for space. first is true on the first wait of that enqueue.
	onPressure func(first bool)
}

// NewBufferPool builds a pool for the given stream keys.
func NewBufferPool(keys []catalog.StreamKey, budget int64, fail *FailureSignal) *BufferPool {
	if fail == nil {
		fail = NewFailureSignal(nil)
	}
	known := make(map[catalog.StreamKey]struct{}, len(keys))
	for _, k := range keys {
		known[k] = struct{}{}
	}
	return &BufferPool{
		budget:  budget,
		fail:    fail,
		known:   known,
		buffers: make(map[catalog.StreamKey]*streamBuffer, len(keys)),
		freed:   make(chan struct{}),
	}
}

// SetPressureHandler installs the callback run when an enqueue blocks.
func (p *BufferPool) SetPressureHandler(fn func(first bool)) {
	p.mu.Lock()
	p.onPressure = fn
	p.mu.Unlock()
}

// Budget returns the configured byte budget.
func (p *BufferPool) Budget() int64 { return p.budget }

// Enqueue appends rec to its stream's buffer. While the budget is exhausted
// it blocks until a flush releases space, the failure signal fires, or ctx
// ends. A record larger than the whole budget is admitted once the pool is
// empty.
func (p *BufferPool) Enqueue(ctx context.Context, key catalog.StreamKey, rec record.Record) error {
	if rec.SizeBytes <= 0 {
		rec.SizeBytes = record.EstimateSize(rec)
	}

	p.mu.Lock()
	if _, ok := p.known[key]; !ok {
		p.mu.Unlock()
		return &UnknownStreamError{Stream: key}
	}
	first := true
	for {
		used := p.buffered + p.inflight
		if used == 0 || used+rec.SizeBytes <= p.budget {
			break
		}
		if first {
			p.waits++
		}
		freed := p.freed
		onPressure := p.onPressure
		p.waiting++
		p.mu.Unlock()

		if onPressure != nil {
			onPressure(first)
		}
		first = false
		var err error
		select {
		case <-freed:
		case <-p.fail.Done():
			err = p.fail.Check()
		case <-ctx.Done():
			err = ctx.Err()
		}

		p.mu.Lock()
		p.waiting--
		if err != nil {
			p.mu.Unlock()
			return err
		}
	}

	b := p.buffers[key]
	if b == nil {
		b = &streamBuffer{}
		p.buffers[key] = b
	}
	b.records = append(b.records, rec)
	b.bytes += rec.SizeBytes
	p.buffered += rec.SizeBytes
	p.mu.Unlock()
	return nil
}

// Drain takes every buffered record of key in enqueue order and resets the
// stream's counter. The returned bytes stay charged until Release.
func (p *BufferPool) Drain(key catalog.StreamKey) ([]record.Record, int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b := p.buffers[key]
	if b == nil || len(b.records) == 0 {
		return nil, 0
	}
	recs, n := b.records, b.bytes
	b.records, b.bytes = nil, 0
	p.buffered -= n
	p.inflight += n
	return recs, n
}

// Release returns bytes taken by Drain to the budget and wakes blocked
// enqueuers.
func (p *BufferPool) Release(n int64) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.inflight -= n
	close(p.freed)
	p.freed = make(chan struct{})
	p.mu.Unlock()
}

// TotalBytes is the aggregate size of records still buffered.
func (p *BufferPool) TotalBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered
}

// UsedBytes adds bytes drained but not yet released to TotalBytes.
func (p *BufferPool) UsedBytes() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffered + p.inflight
}

// Sizes returns the buffered bytes of every non-empty stream.
func (p *BufferPool) Sizes() map[catalog.StreamKey]int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[catalog.StreamKey]int64, len(p.buffers))
	for k, b := range p.buffers {
		if b.bytes > 0 || len(b.records) > 0 {
			out[k] = b.bytes
		}
	}
	return out
}

// Waiting reports how many enqueuers are blocked on the budget.
func (p *BufferPool) Waiting() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waiting
}

// BackpressureWaits counts enqueues that had to wait at least once.
func (p *BufferPool) BackpressureWaits() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.waits
}
