//go:build integration

package mssql

import (
	"context"
	"os"
	"testing"
	"time"

	"destsync/internal/record"
	"destsync/internal/storage"
)

// getTestDSN reads the TEST_MSSQL_DSN environment variable.
// If it is empty, the caller should skip the test.
func getTestDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("TEST_MSSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MSSQL_DSN not set; skipping MSSQL integration tests")
	}
	return dsn
}

func TestRawTableLifecycleIntegration(t *testing.T) {
	dsn := getTestDSN(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, closeFn, err := NewRepository(ctx, Config{DSN: dsn})
	if err != nil {
		t.Fatalf("NewRepository() error = %v, want nil", err)
	}
	defer closeFn()

	tbl := storage.Table{Namespace: "destsync_it", Name: "_raw__stream_it"}
	_ = repo.Exec(ctx, "IF OBJECT_ID(N'[destsync_it].[_raw__stream_it]', N'U') IS NOT NULL DROP TABLE [destsync_it].[_raw__stream_it];")

	for i := 0; i < 2; i++ {
		if err := repo.CreateSchemaIfNotExists(ctx, tbl.Namespace); err != nil {
			t.Fatalf("CreateSchemaIfNotExists #%d: %v", i, err)
		}
		if err := repo.CreateTableIfNotExists(ctx, tbl); err != nil {
			t.Fatalf("CreateTableIfNotExists #%d: %v", i, err)
		}
	}

	now := time.Now()
	recs := []record.Record{
		record.New([]byte(`{"id":1}`), now),
		record.New([]byte(`{"id":2}`), now),
		record.New([]byte(`{"id":3}`), now),
	}
	n, err := repo.InsertRecords(ctx, tbl, 1, recs)
	if err != nil {
		t.Fatalf("InsertRecords() error = %v", err)
	}
	if n != int64(len(recs)) {
		t.Fatalf("InsertRecords() inserted = %d, want %d", n, len(recs))
	}

	if err := repo.ExecuteTransaction(ctx, []string{repo.TruncateTableQuery(tbl)}); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
