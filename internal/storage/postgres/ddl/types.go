package ddl

import "strings"

// MapType normalizes a logical type into a Postgres SQL type.
//
//	"raw_id"                      -> VARCHAR(36)
//	"int"/"integer"/"bigint"      -> BIGINT
//	"number"                      -> NUMERIC
//	"bool"/"boolean"              -> BOOLEAN
//	"date"                        -> DATE
//	"timestamp"                   -> TIMESTAMP
//	"timestamptz"                 -> TIMESTAMPTZ
//	"json"/"object"/"array"       -> JSONB
//	everything else               -> TEXT
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "raw_id":
		return "VARCHAR(36)"
	case "int", "integer", "bigint":
		return "BIGINT"
	case "number", "numeric":
		return "NUMERIC"
	case "bool", "boolean":
		return "BOOLEAN"
	case "date":
		return "DATE"
	case "timestamp":
		return "TIMESTAMP"
	case "timestamptz":
		return "TIMESTAMPTZ"
	case "json", "jsonb", "object", "array":
		return "JSONB"
	default:
		return "TEXT"
	}
}
