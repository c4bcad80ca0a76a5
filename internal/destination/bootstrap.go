package destination

import (
	"context"
	"time"

	"go.uber.org/zap"

	"destsync/internal/metrics"
	"destsync/internal/storage"
	"destsync/internal/typing"
)

// Bootstrap prepares storage before the first record is accepted.
type Bootstrap struct {
	Repo    storage.Repository
	Typer   typing.TyperDeduper
	Targets []WriteTarget
	Log     *zap.Logger
	Job     string
}

// Run rejects bad lineage, then executes in order: typer migrations and
// schemas, raw schema and table creation for every target, one transaction
// truncating every target whose minimum generation equals its generation,
// and final table preparation.
// Every step is idempotent, so a resumed sync can run it again.
func (b *Bootstrap) Run(ctx context.Context) error {
	start := time.Now()
	err := b.run(ctx)
	metrics.RecordStep(b.Job, "bootstrap", err, time.Since(start))
	return err
}

func (b *Bootstrap) run(ctx context.Context) error {
	log := b.Log
	if log == nil {
		log = zap.NewNop()
	}

	for _, t := range b.Targets {
		if t.MinimumGenerationID != 0 && t.MinimumGenerationID != t.GenerationID {
			return &InvalidLineageError{Stream: t.Key(), GenerationID: t.GenerationID, MinimumGenerationID: t.MinimumGenerationID}
		}
	}

	if err := b.Typer.PrepareSchemasAndRunMigrations(ctx); err != nil {
		return &PersistenceError{Op: "prepare_schemas", Err: err}
	}

	schemas := make(map[string]struct{})
	for _, t := range b.Targets {
		raw := t.RawTable()
		if _, done := schemas[raw.Namespace]; !done && raw.Namespace != "" {
			if err := b.Repo.CreateSchemaIfNotExists(ctx, raw.Namespace); err != nil {
				return &PersistenceError{Op: "create_schema", Stream: t.Key(), Table: raw, Err: err}
			}
			schemas[raw.Namespace] = struct{}{}
		}
		if err := b.Repo.CreateTableIfNotExists(ctx, raw); err != nil {
			return &PersistenceError{Op: "create_table", Stream: t.Key(), Table: raw, Err: err}
		}
	}

	var truncates []string
	for _, t := range b.Targets {
		if !t.Truncate() {
			continue
		}
		truncates = append(truncates, b.Repo.TruncateTableQuery(t.RawTable()))
		log.Info("truncating raw table for refresh",
			zap.String("stream", t.StreamName),
			zap.String("namespace", t.StreamNamespace),
			zap.String("table", t.RawTable().FQN()),
			zap.Int64("generation_id", t.GenerationID),
		)
	}
	if len(truncates) > 0 {
		if err := b.Repo.ExecuteTransaction(ctx, truncates); err != nil {
			return &PersistenceError{Op: "truncate", Err: err}
		}
	}

	if err := b.Typer.PrepareFinalTables(ctx); err != nil {
		return &PersistenceError{Op: "prepare_final_tables", Err: err}
	}
	log.Info("bootstrap complete", zap.Int("streams", len(b.Targets)), zap.Int("truncated", len(truncates)))
	return nil
}
