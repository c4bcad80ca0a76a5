package ddl

import (
	"strings"
	"testing"

	gddl "destsync/internal/ddl"
	"destsync/internal/storage"
)

func TestQuoteIdent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "name", want: `"name"`},
		{in: "", want: `""`},
		{in: "user name", want: `"user name"`},
		{in: `weird"name`, want: `"weird""name"`},
	}
	for _, tt := range tests {
		if got := quoteIdent(tt.in); got != tt.want {
			t.Fatalf("quoteIdent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteFQN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "users", want: `"users"`},
		{in: "public.users", want: `"public"."users"`},
		{in: ".public..users.", want: `"public"."users"`},
		{in: "", want: ""},
	}
	for _, tt := range tests {
		if got := quoteFQN(tt.in); got != tt.want {
			t.Fatalf("quoteFQN(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQuoteTableAndLiteral(t *testing.T) {
	t.Parallel()

	if got := QuoteTable(storage.Table{Namespace: "s", Name: "t"}); got != `"s"."t"` {
		t.Fatalf("QuoteTable = %s", got)
	}
	if got := QuoteTable(storage.Table{Name: "t"}); got != `"t"` {
		t.Fatalf("QuoteTable without namespace = %s", got)
	}
	if got := quoteLiteral("o'neil"); got != `'o''neil'` {
		t.Fatalf("quoteLiteral = %s", got)
	}
}

func TestBuildCreateTableSQLErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		def  gddl.TableDef
	}{
		{
			name: "empty FQN",
			def:  gddl.TableDef{FQN: "   ", Columns: []gddl.ColumnDef{{Name: "id", SQLType: "BIGINT"}}},
		},
		{
			name: "no columns",
			def:  gddl.TableDef{FQN: "public.users"},
		},
		{
			name: "column empty name",
			def:  gddl.TableDef{FQN: "public.users", Columns: []gddl.ColumnDef{{Name: " ", SQLType: "TEXT"}}},
		},
		{
			name: "column missing SQLType",
			def:  gddl.TableDef{FQN: "public.users", Columns: []gddl.ColumnDef{{Name: "id"}}},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BuildCreateTableSQL(tt.def)
			if err == nil {
				t.Fatalf("BuildCreateTableSQL(%+v) error = nil, want non-nil", tt.def)
			}
			if got != "" {
				t.Fatalf("SQL = %q, want empty on error", got)
			}
		})
	}
}

func TestBuildCreateTableSQLBasic(t *testing.T) {
	t.Parallel()

	def := gddl.TableDef{
		FQN: "public.users",
		Columns: []gddl.ColumnDef{
			{Name: "id", SQLType: "BIGINT", PrimaryKey: true},
			{Name: "name", SQLType: "TEXT", Nullable: true, Default: `'anonymous'`},
		},
	}

	got, err := BuildCreateTableSQL(def)
	if err != nil {
		t.Fatalf("BuildCreateTableSQL() error = %v", err)
	}

	want := "" +
		`CREATE TABLE IF NOT EXISTS "public"."users" (` + "\n" +
		`  "id" BIGINT NOT NULL,` + "\n" +
		`  "name" TEXT DEFAULT 'anonymous',` + "\n" +
		`  PRIMARY KEY ("id")` + "\n" +
		`);`
	if got != want {
		t.Fatalf("BuildCreateTableSQL() =\n%s\nwant:\n%s", got, want)
	}
}

func TestRawTableSQL(t *testing.T) {
	t.Parallel()

	got, err := RawTableSQL(storage.Table{Namespace: "destsync_internal", Name: "shop_raw__stream_orders"})
	if err != nil {
		t.Fatalf("RawTableSQL: %v", err)
	}
	for _, frag := range []string{
		`CREATE TABLE IF NOT EXISTS "destsync_internal"."shop_raw__stream_orders"`,
		`"_dsync_raw_id" VARCHAR(36) NOT NULL`,
		`"_dsync_extracted_at" TIMESTAMPTZ NOT NULL`,
		`"_dsync_loaded_at" TIMESTAMPTZ,`,
		`"_dsync_data" JSONB NOT NULL`,
		`"_dsync_generation_id" BIGINT`,
		`PRIMARY KEY ("_dsync_raw_id")`,
	} {
		if !strings.Contains(got, frag) {
			t.Fatalf("raw DDL missing %q:\n%s", frag, got)
		}
	}
}

func TestSchemaAndTruncateSQL(t *testing.T) {
	t.Parallel()

	got, err := BuildCreateSchemaSQL("analytics")
	if err != nil || got != `CREATE SCHEMA IF NOT EXISTS "analytics"` {
		t.Fatalf("BuildCreateSchemaSQL = %q, %v", got, err)
	}
	if _, err := BuildCreateSchemaSQL(" "); err == nil {
		t.Fatalf("empty schema must fail")
	}
	tbl := storage.Table{Namespace: "s", Name: "t"}
	if got := TruncateSQL(tbl); got != `TRUNCATE TABLE "s"."t"` {
		t.Fatalf("TruncateSQL = %s", got)
	}
	if got := DropTableSQL(tbl); got != `DROP TABLE IF EXISTS "s"."t"` {
		t.Fatalf("DropTableSQL = %s", got)
	}
}

func BenchmarkBuildCreateTableSQL(b *testing.B) {
	def := gddl.RawTable("destsync_internal.bench", MapType)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := BuildCreateTableSQL(def); err != nil {
			b.Fatalf("BuildCreateTableSQL() error = %v", err)
		}
	}
}
