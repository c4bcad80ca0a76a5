package typing

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"destsync/internal/catalog"
	"destsync/internal/storage"
)

// Options configure New.
type Options struct {
	// Disabled forces raw-tables-only mode.
	Disabled bool
	// Concurrency bounds how many streams are typed at once; defaults to 4.
	Concurrency int
	Logger      *zap.Logger
}

// New returns the SQL typer for repo's kind when a generator is registered
// and typing is enabled, and NoOp otherwise.
func New(repo storage.Repository, streams []StreamConfig, opts Options) TyperDeduper {
	if opts.Disabled {
		return NoOp{Repo: repo}
	}
	gen, ok := GeneratorFor(repo.Kind())
	if !ok {
		return NoOp{Repo: repo}
	}
	return NewSQL(repo, gen, streams, opts)
}

// SQLTyperDeduper runs the typing phase through a Generator and the
// repository's transactional Exec.
type SQLTyperDeduper struct {
	repo    storage.Repository
	gen     Generator
	streams []StreamConfig
	limit   int
	log     *zap.Logger
}

var _ TyperDeduper = (*SQLTyperDeduper)(nil)

// NewSQL builds a SQLTyperDeduper over an explicit generator.
func NewSQL(repo storage.Repository, gen Generator, streams []StreamConfig, opts Options) *SQLTyperDeduper {
	limit := opts.Concurrency
	if limit <= 0 {
		limit = 4
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &SQLTyperDeduper{
		repo:    repo,
		gen:     gen,
		streams: streams,
		limit:   limit,
		log:     log.Named("typing"),
	}
}

// PrepareSchemasAndRunMigrations applies migrations and creates every final
// namespace.
func (t *SQLTyperDeduper) PrepareSchemasAndRunMigrations(ctx context.Context) error {
	if m, ok := t.repo.(storage.Migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	seen := map[string]struct{}{}
	for _, s := range t.streams {
		ns := s.Final.Namespace
		if ns == "" {
			continue
		}
		if _, ok := seen[ns]; ok {
			continue
		}
		seen[ns] = struct{}{}
		if err := t.repo.CreateSchemaIfNotExists(ctx, ns); err != nil {
			return fmt.Errorf("create final schema %s: %w", ns, err)
		}
	}
	return nil
}

// PrepareFinalTables creates each stream's final (or temporary final) table.
func (t *SQLTyperDeduper) PrepareFinalTables(ctx context.Context) error {
	for _, s := range t.streams {
		stmts, err := t.gen.PrepareFinalTable(s)
		if err != nil {
			return fmt.Errorf("stream %s: %w", s.Stream.Key(), err)
		}
		if err := t.repo.ExecuteTransaction(ctx, stmts); err != nil {
			return fmt.Errorf("prepare final table %s: %w", s.WriteTable(), err)
		}
		t.log.Debug("final table ready",
			zap.String("stream", s.Stream.Name),
			zap.String("table", s.WriteTable().FQN()))
	}
	return nil
}

// TypeAndDedupe types every stream that received records this generation.
// Streams are processed concurrently up to the configured limit; the first
// error cancels the rest.
func (t *SQLTyperDeduper) TypeAndDedupe(ctx context.Context, summaries map[catalog.StreamKey]StreamSummary) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.limit)

	for _, s := range t.streams {
		s := s
		sum, ok := summaries[s.Stream.Key()]
		if !ok || !sum.RecordsWrittenThisGeneration() {
			t.log.Debug("skip typing, no new records", zap.String("stream", s.Stream.Name))
			continue
		}
		g.Go(func() error {
			stmts, err := t.gen.TypeAndDedupe(s)
			if err != nil {
				return fmt.Errorf("stream %s: %w", s.Stream.Key(), err)
			}
			if err := t.repo.ExecuteTransaction(gctx, stmts); err != nil {
				return fmt.Errorf("type and dedupe %s: %w", s.Stream.Key(), err)
			}
			t.log.Info("typed stream",
				zap.String("stream", s.Stream.Name),
				zap.String("namespace", s.Stream.Namespace),
				zap.Int64("records", sum.RecordsWritten))
			return nil
		})
	}
	return g.Wait()
}

// CommitFinalTables swaps temporary final tables in and records state.
func (t *SQLTyperDeduper) CommitFinalTables(ctx context.Context) error {
	for _, s := range t.streams {
		stmts := t.gen.CommitFinalTable(s)
		if st := t.gen.RecordState(s); st != "" {
			stmts = append(stmts, st)
		}
		if len(stmts) == 0 {
			continue
		}
		if err := t.repo.ExecuteTransaction(ctx, stmts); err != nil {
			return fmt.Errorf("commit %s: %w", s.Stream.Key(), err)
		}
	}
	return nil
}

// Cleanup drops staging artifacts of every stream. It keeps going after an
// error and returns all of them joined.
func (t *SQLTyperDeduper) Cleanup(ctx context.Context) error {
	var errs []error
	for _, s := range t.streams {
		for _, stmt := range t.gen.Cleanup(s) {
			if err := t.repo.Exec(ctx, stmt); err != nil {
				errs = append(errs, fmt.Errorf("cleanup %s: %w", s.Stream.Key(), err))
			}
		}
	}
	return errors.Join(errs...)
}
