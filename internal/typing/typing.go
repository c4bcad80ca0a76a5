// Package typing turns raw loaded records into typed, deduplicated final
// tables once a sync has flushed everything.
//
// A TyperDeduper is driven by the destination in two places: bootstrap
// (PrepareSchemasAndRunMigrations, PrepareFinalTables) and finalization
// (TypeAndDedupe, CommitFinalTables, Cleanup).
package typing

import (
	"context"

	"destsync/internal/catalog"
	"destsync/internal/storage"
)

// Status is the terminal state of one stream at the end of a sync.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusIncomplete Status = "incomplete"
)

// StreamSummary is the per-stream result handed to TypeAndDedupe.
type StreamSummary struct {
	RecordsWritten int64
	BytesWritten   int64
	Flushes        int
	Status         Status
}

// RecordsWrittenThisGeneration reports whether any record of the current
// generation reached the raw table, which is what makes typing necessary.
func (s StreamSummary) RecordsWrittenThisGeneration() bool {
	return s.RecordsWritten > 0
}

// StreamConfig is what the typer needs to know about one resolved stream.
type StreamConfig struct {
	Stream catalog.Stream
	Raw    storage.Table
	Final  storage.Table
	// TempFinal is set for truncate refreshes: typing writes into it and
	// CommitFinalTables swaps it over Final.
	TempFinal storage.Table
}

// WriteTable returns the final-side table typing inserts into.
func (s StreamConfig) WriteTable() storage.Table {
	if s.TempFinal.Name != "" {
		return s.TempFinal
	}
	return s.Final
}

// TyperDeduper is the type/dedupe phase contract.
type TyperDeduper interface {
	PrepareSchemasAndRunMigrations(ctx context.Context) error
	PrepareFinalTables(ctx context.Context) error
	TypeAndDedupe(ctx context.Context, summaries map[catalog.StreamKey]StreamSummary) error
	CommitFinalTables(ctx context.Context) error
	Cleanup(ctx context.Context) error
}

// NoOp leaves data in raw tables only. It still applies the repository's
// migrations so internal state tables exist.
type NoOp struct {
	Repo storage.Repository
}

var _ TyperDeduper = NoOp{}

func (n NoOp) PrepareSchemasAndRunMigrations(ctx context.Context) error {
	if m, ok := n.Repo.(storage.Migrator); ok {
		return m.Migrate(ctx)
	}
	return nil
}

func (NoOp) PrepareFinalTables(context.Context) error { return nil }

func (NoOp) TypeAndDedupe(context.Context, map[catalog.StreamKey]StreamSummary) error {
	return nil
}

func (NoOp) CommitFinalTables(context.Context) error { return nil }

func (NoOp) Cleanup(context.Context) error { return nil }
