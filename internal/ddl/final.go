package ddl

import (
	"fmt"
	"strings"

	"destsync/internal/catalog"
)

// Logical column kinds accepted in a stream's declared columns.
const (
	KindString   = "string"
	KindInteger  = "integer"
	KindNumber   = "number"
	KindBoolean  = "boolean"
	KindDate     = "date"
	KindDateTime = "timestamp"
	KindObject   = "object"
	KindArray    = "array"
)

// FinalMetaColumns are carried from the raw table into every final table, in
// this order, after the declared columns.
var FinalMetaColumns = []string{
	ColRawID,
	ColExtractedAt,
	ColMeta,
	ColGenerationID,
}

// FinalTable builds the definition of a typed final table from a stream's
// declared columns. Column names must already follow the backend's naming
// convention; ident is applied to each declared name.
//
// It returns an error when a declared column is unnamed or collides with a
// reserved meta column after ident is applied.
func FinalTable(fqn string, cols []catalog.Column, ident func(string) string, mapType func(kind string) string) (TableDef, error) {
	if strings.TrimSpace(fqn) == "" {
		return TableDef{}, fmt.Errorf("ddl: final table FQN must not be empty")
	}

	reserved := map[string]struct{}{}
	for _, c := range FinalMetaColumns {
		reserved[c] = struct{}{}
	}

	out := make([]ColumnDef, 0, len(cols)+len(FinalMetaColumns))
	seen := make(map[string]struct{}, len(cols))
	for i, c := range cols {
		if strings.TrimSpace(c.Name) == "" {
			return TableDef{}, fmt.Errorf("ddl: column %d of %s has no name", i, fqn)
		}
		name := ident(c.Name)
		if _, ok := reserved[name]; ok {
			return TableDef{}, fmt.Errorf("ddl: column %q of %s collides with reserved column", c.Name, fqn)
		}
		if _, ok := seen[name]; ok {
			return TableDef{}, fmt.Errorf("ddl: column %q of %s is declared twice", name, fqn)
		}
		seen[name] = struct{}{}
		out = append(out, ColumnDef{Name: name, SQLType: mapType(c.Type), Nullable: true})
	}

	out = append(out,
		ColumnDef{Name: ColRawID, SQLType: mapType(KindRawID), PrimaryKey: true},
		ColumnDef{Name: ColExtractedAt, SQLType: mapType(KindTimestamp)},
		ColumnDef{Name: ColMeta, SQLType: mapType(KindJSON), Nullable: true},
		ColumnDef{Name: ColGenerationID, SQLType: mapType(KindBigint), Nullable: true},
	)
	return TableDef{FQN: fqn, Columns: out}, nil
}
