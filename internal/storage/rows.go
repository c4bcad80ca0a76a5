package storage

import (
	"context"
	"fmt"

	"destsync/internal/record"
)

// RawRows converts records into value rows aligned with ddl.InsertColumns.
func RawRows(recs []record.Record, generationID int64) ([][]any, error) {
	rows := make([][]any, 0, len(recs))
	for i, r := range recs {
		meta, err := r.MetaJSON()
		if err != nil {
			return nil, fmt.Errorf("record %d meta: %w", i, err)
		}
		data := string(r.Data)
		if data == "" {
			data = "{}"
		}
		rows = append(rows, []any{
			r.RawID.String(),
			r.EmittedAt,
			data,
			string(meta),
			generationID,
		})
	}
	return rows, nil
}

// ChunkFn inserts one chunk of rows and reports how many were written.
type ChunkFn func(ctx context.Context, rows [][]any) (int64, error)

// InsertInChunks splits rows into chunks of at most chunkSize and calls fn for
// each, in order. Backends whose drivers cap bind parameters per statement
// (SQLite, MySQL) use it to keep a single logical batch within limits.
//
// It returns the total reported by fn and the first error encountered;
// cancellation is checked between chunks.
func InsertInChunks(ctx context.Context, rows [][]any, chunkSize int, fn ChunkFn) (int64, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("chunkSize must be > 0")
	}
	if fn == nil {
		return 0, fmt.Errorf("chunk fn must not be nil")
	}

	var total int64
	for start := 0; start < len(rows); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		n, err := fn(ctx, rows[start:end])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
