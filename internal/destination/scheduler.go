package destination

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"destsync/internal/catalog"
)

const (
	DefaultFlushWorkers      = 2
	DefaultOptimalBatchBytes = 25 << 20
	DefaultFlushInterval     = 30 * time.Second
)

// Flush triggers, as reported by Scheduler.Triggers.
const (
	TriggerThreshold = "threshold"
	TriggerPressure  = "pressure"
	TriggerPeriodic  = "periodic"
	TriggerDrain     = "drain"
)

// SchedulerConfig sizes the flush worker pool and its triggers.
type SchedulerConfig struct {
	Workers           int
	OptimalBatchBytes int64
	FlushInterval     time.Duration

	// ticks replaces the FlushInterval ticker when set.
	ticks <-chan time.Time
}

// ApplyDefaults fills unset fields.
func (c *SchedulerConfig) ApplyDefaults() {
	if c.Workers <= 0 {
		c.Workers = DefaultFlushWorkers
	}
	if c.OptimalBatchBytes <= 0 {
		c.OptimalBatchBytes = DefaultOptimalBatchBytes
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = DefaultFlushInterval
	}
}

// Scheduler decides when streams are drained and hands them to a fixed pool
// of flush workers. A stream is queued at most once at a time, so it is never
// drained by two flushes concurrently.
type Scheduler struct {
	cfg    SchedulerConfig
	pool   *BufferPool
	writer Writer
	fail   *FailureSignal
	log    *zap.Logger

	mu        sync.Mutex
	cond      *sync.Cond
	scheduled map[catalog.StreamKey]struct{}
	// again holds busy streams a trigger asked for; they are requeued when
	// their current flush finishes.
	again    map[catalog.StreamKey]string
	triggers map[string]int
	started  bool
	stopped  bool

	jobs     chan catalog.StreamKey
	stop     chan struct{}
	tickDone chan struct{}
	workers  errgroup.Group
}

// NewScheduler wires a scheduler over pool and writer. Start launches it.
func NewScheduler(pool *BufferPool, writer Writer, fail *FailureSignal, cfg SchedulerConfig, log *zap.Logger) *Scheduler {
	cfg.ApplyDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cfg:       cfg,
		pool:      pool,
		writer:    writer,
		fail:      fail,
		log:       log,
		scheduled: make(map[catalog.StreamKey]struct{}),
		again:     make(map[catalog.StreamKey]string),
		triggers:  make(map[string]int),
		// every stream is queued at most once, so sends never block
		jobs:     make(chan catalog.StreamKey, len(pool.known)+1),
		stop:     make(chan struct{}),
		tickDone: make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the flush workers and the periodic timer. ctx is used for
// every write and should live for the whole sync.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	for i := 0; i < s.cfg.Workers; i++ {
		id := i
		s.workers.Go(func() error {
			s.work(ctx, id)
			return nil
		})
	}
	go s.tick(ctx)
	s.log.Info("flush scheduler started",
		zap.Int("workers", s.cfg.Workers),
		zap.Int64("optimal_batch_bytes", s.cfg.OptimalBatchBytes),
		zap.Duration("flush_interval", s.cfg.FlushInterval),
		zap.Int64("budget_bytes", s.pool.Budget()),
	)
}

// Notify runs the threshold trigger; the consumer calls it after each
// enqueue.
func (s *Scheduler) Notify() {
	if s.pool.TotalBytes() <= s.cfg.OptimalBatchBytes {
		return
	}
	s.mu.Lock()
	if !s.stopped {
		s.thresholdLocked(false)
	}
	s.mu.Unlock()
}

// Pressure flushes the largest idle buffers regardless of the threshold. The
// pool calls it while an enqueue is blocked on the budget.
func (s *Scheduler) Pressure() {
	s.mu.Lock()
	if !s.stopped {
		s.thresholdLocked(true)
	}
	s.mu.Unlock()
}

// FlushAll flushes every remaining buffer, waits for all writes and stops the
// workers. It returns the sync's failure, if any. Ingestion must have ended.
func (s *Scheduler) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return s.fail.Check()
	}
	if !s.started {
		s.mu.Unlock()
		s.Start(ctx)
		s.mu.Lock()
	}

	stopWake := context.AfterFunc(ctx, s.broadcast)
	defer stopWake()

	for {
		if s.fail.Check() != nil {
			break
		}
		if err := ctx.Err(); err != nil {
			s.fail.Set(err)
			break
		}
		s.scheduleAllLocked(TriggerDrain)
		if len(s.scheduled) == 0 && s.pool.TotalBytes() == 0 {
			break
		}
		s.cond.Wait()
	}
	s.stopped = true
	close(s.jobs)
	close(s.stop)
	s.mu.Unlock()

	<-s.tickDone
	_ = s.workers.Wait()
	return s.fail.Check()
}

// Triggers returns how many flushes each trigger queued.
func (s *Scheduler) Triggers() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.triggers))
	for k, v := range s.triggers {
		out[k] = v
	}
	return out
}

func (s *Scheduler) broadcast() {
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Scheduler) tick(ctx context.Context) {
	defer close(s.tickDone)
	ticks := s.cfg.ticks
	if ticks == nil {
		t := time.NewTicker(s.cfg.FlushInterval)
		defer t.Stop()
		ticks = t.C
	}

	failed := s.fail.Done()
	for {
		select {
		case <-s.stop:
			return
		case <-ctx.Done():
			s.broadcast()
			return
		case <-failed:
			failed = nil
			s.broadcast()
		case <-ticks:
			s.mu.Lock()
			if !s.stopped && s.fail.Check() == nil {
				s.scheduleAllLocked(TriggerPeriodic)
			}
			s.mu.Unlock()
		}
	}
}

func (s *Scheduler) work(ctx context.Context, id int) {
	for key := range s.jobs {
		s.flush(ctx, id, key)
	}
}

func (s *Scheduler) flush(ctx context.Context, id int, key catalog.StreamKey) {
	defer s.finish(key)
	if s.fail.Check() != nil {
		return
	}
	recs, n := s.pool.Drain(key)
	if len(recs) == 0 {
		return
	}
	err := s.writer.Write(ctx, key, recs)
	s.pool.Release(n)
	if err != nil {
		if s.fail.Check() == nil {
			s.fail.Set(err)
		}
		s.log.Error("flush failed",
			zap.Int("worker", id),
			zap.String("stream", key.Name),
			zap.String("namespace", key.Namespace),
			zap.Int("records", len(recs)),
			zap.Error(err),
		)
	}
}

func (s *Scheduler) finish(key catalog.StreamKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.scheduled, key)
	if !s.stopped && s.fail.Check() == nil {
		if trigger, ok := s.again[key]; ok {
			delete(s.again, key)
			if s.pool.Sizes()[key] > 0 {
				s.scheduleLocked(key, trigger)
			}
		}
		s.thresholdLocked(s.pool.Waiting() > 0)
	}
	s.cond.Broadcast()
}

// scheduleLocked queues key unless it is already queued or writing.
func (s *Scheduler) scheduleLocked(key catalog.StreamKey, trigger string) bool {
	if s.stopped {
		return false
	}
	if _, busy := s.scheduled[key]; busy {
		s.again[key] = trigger
		return false
	}
	s.scheduled[key] = struct{}{}
	s.triggers[trigger]++
	s.jobs <- key
	s.log.Debug("flush scheduled",
		zap.String("stream", key.Name),
		zap.String("namespace", key.Namespace),
		zap.String("trigger", trigger),
	)
	return true
}

func (s *Scheduler) scheduleAllLocked(trigger string) {
	for k := range s.pool.Sizes() {
		s.scheduleLocked(k, trigger)
	}
}

// thresholdLocked queues the largest idle buffers until the idle total is at
// or below the optimal batch size, or empty when under pressure.
func (s *Scheduler) thresholdLocked(pressure bool) {
	type candidate struct {
		key   catalog.StreamKey
		bytes int64
	}
	var (
		idle  int64
		cands []candidate
	)
	for k, n := range s.pool.Sizes() {
		if _, busy := s.scheduled[k]; busy {
			continue
		}
		idle += n
		cands = append(cands, candidate{k, n})
	}

	target, trigger := s.cfg.OptimalBatchBytes, TriggerThreshold
	if pressure {
		target, trigger = 0, TriggerPressure
	}
	if idle <= target {
		return
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].bytes != cands[j].bytes {
			return cands[i].bytes > cands[j].bytes
		}
		return cands[i].key.String() < cands[j].key.String()
	})
	for _, c := range cands {
		if idle <= target {
			break
		}
		s.scheduleLocked(c.key, trigger)
		idle -= c.bytes
	}
}
