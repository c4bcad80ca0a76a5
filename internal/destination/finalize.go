package destination

import (
	"context"
	"time"

	"go.uber.org/zap"

	"destsync/internal/catalog"
	"destsync/internal/metrics"
	"destsync/internal/typing"
)

// Finalization steps, as reported in FinalizationError.Step.
const (
	StepTypeAndDedupe = "type_dedupe"
	StepCommit        = "commit"
	StepCleanup       = "cleanup"
)

// Finalizer runs the typing phase once every buffer is durable.
type Finalizer struct {
	Typer typing.TyperDeduper
	Log   *zap.Logger
	Job   string
}

// Run types and dedupes, then commits final tables, then cleans up. Cleanup
// runs even when an earlier step failed; the first failure is returned.
func (f *Finalizer) Run(ctx context.Context, summaries map[catalog.StreamKey]StreamSummary) error {
	log := f.Log
	if log == nil {
		log = zap.NewNop()
	}

	var first error
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{StepTypeAndDedupe, func(ctx context.Context) error { return f.Typer.TypeAndDedupe(ctx, summaries) }},
		{StepCommit, f.Typer.CommitFinalTables},
	}
	for _, st := range steps {
		if err := f.step(ctx, st.name, st.fn); err != nil {
			first = &FinalizationError{Step: st.name, Err: err}
			break
		}
	}

	if err := f.step(ctx, StepCleanup, f.Typer.Cleanup); err != nil {
		if first == nil {
			first = &FinalizationError{Step: StepCleanup, Err: err}
		} else {
			log.Warn("cleanup after failed finalization", zap.Error(err))
		}
	}
	if first != nil {
		return first
	}
	log.Info("finalization complete", zap.Int("streams", len(summaries)))
	return nil
}

func (f *Finalizer) step(ctx context.Context, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	metrics.RecordStep(f.Job, name, err, time.Since(start))
	return err
}
