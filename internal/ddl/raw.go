package ddl

// Raw table columns. Every raw table has exactly these columns regardless of
// the stream's declared schema; the payload lives in ColData as JSON.
const (
	ColRawID        = "_dsync_raw_id"
	ColExtractedAt  = "_dsync_extracted_at"
	ColLoadedAt     = "_dsync_loaded_at"
	ColData         = "_dsync_data"
	ColMeta         = "_dsync_meta"
	ColGenerationID = "_dsync_generation_id"
)

// Logical kinds understood by every backend's MapType.
const (
	KindRawID     = "raw_id"
	KindTimestamp = "timestamptz"
	KindJSON      = "json"
	KindBigint    = "bigint"
)

// InsertColumns is the column order used when writing records into a raw
// table. ColLoadedAt is left NULL until the typer marks rows as loaded.
var InsertColumns = []string{
	ColRawID,
	ColExtractedAt,
	ColData,
	ColMeta,
	ColGenerationID,
}

// RawTable returns the definition of a raw table named fqn, with SQL types
// resolved through the backend's mapType.
func RawTable(fqn string, mapType func(kind string) string) TableDef {
	return TableDef{
		FQN: fqn,
		Columns: []ColumnDef{
			{Name: ColRawID, SQLType: mapType(KindRawID), PrimaryKey: true},
			{Name: ColExtractedAt, SQLType: mapType(KindTimestamp)},
			{Name: ColLoadedAt, SQLType: mapType(KindTimestamp), Nullable: true},
			{Name: ColData, SQLType: mapType(KindJSON)},
			{Name: ColMeta, SQLType: mapType(KindJSON), Nullable: true},
			{Name: ColGenerationID, SQLType: mapType(KindBigint), Nullable: true},
		},
	}
}
