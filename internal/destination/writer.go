package destination

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"destsync/internal/catalog"
	"destsync/internal/metrics"
	"destsync/internal/record"
	"destsync/internal/storage"
	"destsync/internal/typing"
)

// StreamSummary is the per-stream outcome of a sync.
type StreamSummary = typing.StreamSummary

// Writer persists one drained batch for a stream.
type Writer interface {
	Write(ctx context.Context, key catalog.StreamKey, recs []record.Record) error
}

type streamStats struct {
	records int64
	bytes   int64
	flushes int
}

// BatchWriter writes batches into raw tables with one InsertRecords call per
// flush. It does not retry; the first error fails the sync.
type BatchWriter struct {
	repo    storage.Repository
	targets map[catalog.StreamKey]WriteTarget
	keys    []catalog.StreamKey
	fail    *FailureSignal
	log     *zap.Logger
	job     string

	mu    sync.Mutex
	stats map[catalog.StreamKey]*streamStats
}

var _ Writer = (*BatchWriter)(nil)

// NewBatchWriter indexes targets by stream key.
func NewBatchWriter(repo storage.Repository, targets []WriteTarget, fail *FailureSignal, log *zap.Logger, job string) *BatchWriter {
	if log == nil {
		log = zap.NewNop()
	}
	w := &BatchWriter{
		repo:    repo,
		targets: make(map[catalog.StreamKey]WriteTarget, len(targets)),
		fail:    fail,
		log:     log,
		job:     job,
		stats:   make(map[catalog.StreamKey]*streamStats, len(targets)),
	}
	for _, t := range targets {
		w.targets[t.Key()] = t
		w.keys = append(w.keys, t.Key())
		w.stats[t.Key()] = &streamStats{}
	}
	catalog.SortKeys(w.keys)
	return w
}

// Write inserts recs into key's raw table.
func (w *BatchWriter) Write(ctx context.Context, key catalog.StreamKey, recs []record.Record) error {
	t, ok := w.targets[key]
	if !ok {
		err := &UnmappedStreamError{Stream: key, Known: append([]catalog.StreamKey(nil), w.keys...)}
		w.fail.Set(err)
		return err
	}
	if len(recs) == 0 {
		return nil
	}

	var size int64
	for _, r := range recs {
		size += r.SizeBytes
	}

	start := time.Now()
	n, err := w.repo.InsertRecords(ctx, t.RawTable(), t.GenerationID, recs)
	elapsed := time.Since(start)
	metrics.RecordFlush(w.job, key.String(), n, size, err, elapsed)
	if err != nil {
		perr := &PersistenceError{Op: "insert", Stream: key, Table: t.RawTable(), Err: err}
		w.fail.Set(perr)
		return perr
	}

	w.mu.Lock()
	st := w.stats[key]
	st.records += n
	st.bytes += size
	st.flushes++
	w.mu.Unlock()

	w.log.Debug("flushed batch",
		zap.String("stream", key.Name),
		zap.String("namespace", key.Namespace),
		zap.String("table", t.RawTable().FQN()),
		zap.Int64("records", n),
		zap.Int64("bytes", size),
		zap.Duration("elapsed", elapsed),
	)
	return nil
}

// Summaries returns one summary per target. Streams are complete only when
// the sync as a whole succeeded.
func (w *BatchWriter) Summaries(complete bool) map[catalog.StreamKey]StreamSummary {
	status := typing.StatusIncomplete
	if complete {
		status = typing.StatusComplete
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[catalog.StreamKey]StreamSummary, len(w.stats))
	for k, st := range w.stats {
		out[k] = StreamSummary{
			RecordsWritten: st.records,
			BytesWritten:   st.bytes,
			Flushes:        st.flushes,
			Status:         status,
		}
	}
	return out
}
