package destination

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"destsync/internal/catalog"
	"destsync/internal/naming"
	"destsync/internal/record"
	"destsync/internal/storage"
	"destsync/internal/storage/sqlite"
	sqliteddl "destsync/internal/storage/sqlite/ddl"
	"destsync/internal/storage/storagetest"
)

func TestBootstrap_Order(t *testing.T) {
	t.Parallel()

	targets := mustResolve(t,
		catalog.Stream{Name: "a", GenerationID: 5, MinimumGenerationID: 5},
		catalog.Stream{Name: "b", GenerationID: 5},
		catalog.Stream{Name: "c", Namespace: "other", GenerationID: 2, MinimumGenerationID: 2},
	)
	repo := storagetest.New("fake")
	typer := &stubTyper{}
	b := &Bootstrap{Repo: repo, Typer: typer, Targets: targets, Log: zaptest.NewLogger(t)}

	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	raw := func(i int) string { return targets[i].RawTable().FQN() }
	want := []string{
		"create_schema:" + DefaultRawSchema,
		"create_table:" + raw(0),
		"create_table:" + raw(1),
		"create_table:" + raw(2),
		"tx:TRUNCATE " + raw(0) + ";TRUNCATE " + raw(2),
	}
	if got := repo.OpNames(); !equalStrings(got, want) {
		t.Fatalf("ops =\n%v\nwant\n%v", got, want)
	}
	if got := typer.Calls(); !equalStrings(got, []string{"prepare_schemas", "prepare_final_tables"}) {
		t.Fatalf("typer calls = %v", got)
	}
}

func TestBootstrap_NoTruncationSkipsTransaction(t *testing.T) {
	t.Parallel()

	targets := mustResolve(t, catalog.Stream{Name: "b", GenerationID: 5})
	repo := storagetest.New("fake")
	seeded := rec(1)
	repo.Seed(targets[0].RawTable().FQN(), seeded)

	b := &Bootstrap{Repo: repo, Typer: &stubTyper{}, Targets: targets}
	if err := b.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, op := range repo.OpNames() {
		if strings.HasPrefix(op, "tx:") {
			t.Fatalf("unexpected transaction %q", op)
		}
	}
	if got := repo.Rows(targets[0].RawTable().FQN()); len(got) != 1 {
		t.Fatalf("pre-existing rows = %d, want 1 retained", len(got))
	}
}

func TestBootstrap_Failures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	tests := []struct {
		name   string
		setup  func(repo *storagetest.Repo, typer *stubTyper, targets []WriteTarget)
		wantOp string
	}{
		{
			name:   "typer migrations",
			setup:  func(_ *storagetest.Repo, ty *stubTyper, _ []WriteTarget) { ty.errs = map[string]error{"prepare_schemas": boom} },
			wantOp: "prepare_schemas",
		},
		{
			name: "create table",
			setup: func(r *storagetest.Repo, _ *stubTyper, ts []WriteTarget) {
				r.CreateErr = map[string]error{ts[0].RawTable().FQN(): boom}
			},
			wantOp: "create_table",
		},
		{
			name:   "truncate transaction",
			setup:  func(r *storagetest.Repo, _ *stubTyper, _ []WriteTarget) { r.TxErr = boom },
			wantOp: "truncate",
		},
		{
			name: "final tables",
			setup: func(_ *storagetest.Repo, ty *stubTyper, _ []WriteTarget) {
				ty.errs = map[string]error{"prepare_final_tables": boom}
			},
			wantOp: "prepare_final_tables",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			targets := mustResolve(t, catalog.Stream{Name: "a", GenerationID: 1, MinimumGenerationID: 1})
			repo := storagetest.New("fake")
			typer := &stubTyper{}
			tt.setup(repo, typer, targets)

			err := (&Bootstrap{Repo: repo, Typer: typer, Targets: targets}).Run(context.Background())
			var perr *PersistenceError
			if !errors.As(err, &perr) {
				t.Fatalf("Run = %v, want PersistenceError", err)
			}
			if perr.Op != tt.wantOp || !errors.Is(err, boom) {
				t.Fatalf("PersistenceError = %+v, want op %s wrapping boom", perr, tt.wantOp)
			}
		})
	}
}

func TestBootstrap_RejectsBadLineage(t *testing.T) {
	t.Parallel()

	targets := []WriteTarget{{StreamName: "a", RawTableName: "a", GenerationID: 5, MinimumGenerationID: 4}}
	repo := storagetest.New("fake")
	err := (&Bootstrap{Repo: repo, Typer: &stubTyper{}, Targets: targets}).Run(context.Background())
	var lineage *InvalidLineageError
	if !errors.As(err, &lineage) {
		t.Fatalf("Run = %v, want InvalidLineageError", err)
	}
	if len(repo.Ops()) != 0 {
		t.Fatalf("storage touched before lineage check: %v", repo.OpNames())
	}
}

// Running bootstrap twice against a real SQLite file keeps one table per
// stream and truncates only the refresh stream.
func TestBootstrap_IdempotentOnSQLite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "bootstrap.db")
	repo, err := storage.New(ctx, storage.Config{Kind: sqlite.Kind, DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	defer repo.Close()

	targets, err := Resolve([]catalog.Stream{
		{Name: "refresh", GenerationID: 2, MinimumGenerationID: 2},
		{Name: "keep", GenerationID: 2},
	}, NamingConfig{Convention: naming.ForKind(sqlite.Kind)})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	b := &Bootstrap{Repo: repo, Typer: &stubTyper{}, Targets: targets}
	if err := b.Run(ctx); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	for _, tg := range targets {
		if _, err := repo.InsertRecords(ctx, tg.RawTable(), 1, []record.Record{rec(1)}); err != nil {
			t.Fatalf("InsertRecords(%s): %v", tg.StreamName, err)
		}
	}
	if err := b.Run(ctx); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()

	var tables int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'`).Scan(&tables); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if tables != 2 {
		t.Fatalf("tables = %d, want 2", tables)
	}
	counts := map[string]int{}
	for _, tg := range targets {
		var n int
		q := "SELECT COUNT(*) FROM " + sqliteddl.QuoteIdent(sqliteddl.PhysicalName(tg.RawTable()))
		if err := db.QueryRowContext(ctx, q).Scan(&n); err != nil {
			t.Fatalf("count %s: %v", tg.StreamName, err)
		}
		counts[tg.StreamName] = n
	}
	if counts["refresh"] != 0 || counts["keep"] != 1 {
		t.Fatalf("row counts = %v, want refresh=0 keep=1", counts)
	}
}
