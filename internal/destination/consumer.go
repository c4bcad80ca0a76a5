package destination

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"destsync/internal/catalog"
	"destsync/internal/metrics"
	"destsync/internal/record"
	"destsync/internal/storage"
	"destsync/internal/typing"
)

var (
	ErrNotStarted = errors.New("destination: consumer not started")
	ErrClosed     = errors.New("destination: consumer closed")
)

// Options configure a Consumer. Zero values take defaults.
type Options struct {
	Job string
	// MemoryBudgetBytes wins over MemoryFraction when positive.
	MemoryBudgetBytes int64
	// MemoryFraction of AvailableMemory; defaults to DefaultMemoryFraction.
	MemoryFraction float64
	Scheduler      SchedulerConfig
	Logger         *zap.Logger
}

// Result is what Close reports.
type Result struct {
	Summaries         map[catalog.StreamKey]StreamSummary
	Triggers          map[string]int
	BackpressureWaits int64
	Finalized         bool
}

// Consumer is the destination's public surface. Start, Accept and Close are
// called from the single ingestion goroutine.
type Consumer struct {
	job     string
	log     *zap.Logger
	targets []WriteTarget

	fail   *FailureSignal
	pool   *BufferPool
	writer *BatchWriter
	sched  *Scheduler
	boot   *Bootstrap
	fin    *Finalizer

	started  bool
	startErr error
	closed   bool
}

// NewConsumer wires the pipeline for targets over repo and typer.
func NewConsumer(repo storage.Repository, typer typing.TyperDeduper, targets []WriteTarget, opts Options) *Consumer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("destination")

	keys := make([]catalog.StreamKey, len(targets))
	for i, t := range targets {
		keys[i] = t.Key()
	}
	budget := MemoryBudget(opts.MemoryBudgetBytes, opts.MemoryFraction, AvailableMemory())

	fail := NewFailureSignal(log)
	pool := NewBufferPool(keys, budget, fail)
	writer := NewBatchWriter(repo, targets, fail, log.Named("writer"), opts.Job)
	sched := NewScheduler(pool, writer, fail, opts.Scheduler, log.Named("scheduler"))

	pool.SetPressureHandler(func(first bool) {
		if first {
			metrics.RecordBackpressure(opts.Job)
			log.Debug("enqueue blocked on memory budget",
				zap.Int64("budget_bytes", budget),
				zap.Int64("used_bytes", pool.UsedBytes()),
			)
		}
		sched.Pressure()
	})

	return &Consumer{
		job:     opts.Job,
		log:     log,
		targets: targets,
		fail:    fail,
		pool:    pool,
		writer:  writer,
		sched:   sched,
		boot:    &Bootstrap{Repo: repo, Typer: typer, Targets: targets, Log: log.Named("bootstrap"), Job: opts.Job},
		fin:     &Finalizer{Typer: typer, Log: log.Named("finalize"), Job: opts.Job},
	}
}

// Targets returns the resolved targets.
func (c *Consumer) Targets() []WriteTarget { return c.targets }

// Budget returns the buffer pool's byte budget.
func (c *Consumer) Budget() int64 { return c.pool.Budget() }

// Start bootstraps storage and launches the flush scheduler. If it fails no
// record is ever accepted. ctx must live until Close returns.
func (c *Consumer) Start(ctx context.Context) error {
	if c.started {
		return c.startErr
	}
	c.started = true
	if err := c.boot.Run(ctx); err != nil {
		c.startErr = err
		return err
	}
	c.sched.Start(ctx)
	return nil
}

// Accept buffers rec for key, blocking while the memory budget is exhausted.
// It returns the sync's failure once one has been recorded.
func (c *Consumer) Accept(ctx context.Context, key catalog.StreamKey, rec record.Record) error {
	switch {
	case !c.started:
		return ErrNotStarted
	case c.startErr != nil:
		return c.startErr
	case c.closed:
		return ErrClosed
	}
	if err := c.fail.Check(); err != nil {
		return err
	}
	if err := c.pool.Enqueue(ctx, key, rec); err != nil {
		var unknown *UnknownStreamError
		if errors.As(err, &unknown) {
			c.fail.Set(err)
		}
		return err
	}
	c.sched.Notify()
	return nil
}

// Close flushes every buffer and, when success is true and nothing failed,
// runs finalization. The returned error is the sync's terminal error.
func (c *Consumer) Close(ctx context.Context, success bool) (Result, error) {
	switch {
	case !c.started:
		return Result{}, ErrNotStarted
	case c.startErr != nil:
		return Result{}, c.startErr
	case c.closed:
		return Result{}, ErrClosed
	}
	c.closed = true

	err := c.sched.FlushAll(ctx)
	res := Result{
		Summaries:         c.writer.Summaries(err == nil && success),
		Triggers:          c.sched.Triggers(),
		BackpressureWaits: c.pool.BackpressureWaits(),
	}
	if err != nil {
		c.log.Error("sync failed, skipping finalization", zap.Error(err))
		return res, err
	}
	if !success {
		c.log.Warn("input did not complete, skipping finalization")
		return res, nil
	}

	if err := c.fin.Run(ctx, res.Summaries); err != nil {
		res.Summaries = c.writer.Summaries(false)
		return res, err
	}
	res.Finalized = true
	return res, nil
}
