package ddl

import (
	"strings"
	"testing"

	"destsync/internal/catalog"
)

func TestFinalTable(t *testing.T) {
	t.Parallel()

	ident := strings.ToLower
	mapType := func(kind string) string { return "T_" + kind }

	tests := []struct {
		name      string
		cols      []catalog.Column
		wantCols  []string
		wantError string
	}{
		{
			name:     "declared then meta",
			cols:     []catalog.Column{{Name: "ID", Type: "integer"}, {Name: "Name", Type: "string"}},
			wantCols: []string{"id", "name", ColRawID, ColExtractedAt, ColMeta, ColGenerationID},
		},
		{
			name:     "no declared columns",
			wantCols: FinalMetaColumns,
		},
		{
			name:      "empty name",
			cols:      []catalog.Column{{Name: " ", Type: "string"}},
			wantError: "has no name",
		},
		{
			name:      "reserved collision",
			cols:      []catalog.Column{{Name: "_DSYNC_RAW_ID", Type: "string"}},
			wantError: "reserved",
		},
		{
			name:      "duplicate after ident",
			cols:      []catalog.Column{{Name: "a"}, {Name: "A"}},
			wantError: "declared twice",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			td, err := FinalTable("s.t", tt.cols, ident, mapType)
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("FinalTable: %v", err)
			}
			if len(td.Columns) != len(tt.wantCols) {
				t.Fatalf("columns = %d, want %d", len(td.Columns), len(tt.wantCols))
			}
			for i, c := range td.Columns {
				if c.Name != tt.wantCols[i] {
					t.Fatalf("column %d = %q, want %q", i, c.Name, tt.wantCols[i])
				}
			}
		})
	}
}

func TestFinalTable_MetaColumnsNotNull(t *testing.T) {
	t.Parallel()

	td, err := FinalTable("t", []catalog.Column{{Name: "x", Type: "number"}}, strings.ToLower, func(k string) string { return k })
	if err != nil {
		t.Fatalf("FinalTable: %v", err)
	}
	for _, c := range td.Columns {
		switch c.Name {
		case "x":
			if !c.Nullable || c.SQLType != "number" {
				t.Fatalf("declared column = %#v", c)
			}
		case ColRawID:
			if !c.PrimaryKey {
				t.Fatalf("raw id must be the primary key")
			}
		case ColExtractedAt:
			if c.Nullable {
				t.Fatalf("extracted_at must be NOT NULL")
			}
		}
	}
}
