// Package record defines the unit of data that flows from the ingestion feed
// through the buffer pool into a raw table.
package record

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// overheadBytes approximates the fixed per-record cost of the raw id,
// timestamps, meta and slice headers. It keeps memory accounting honest for
// streams made of many tiny records.
const overheadBytes = 96

// Change describes a single field-level modification applied upstream, for
// example a value nulled because it exceeded a size limit.
type Change struct {
	Field  string `json:"field"`
	Change string `json:"change"`
	Reason string `json:"reason"`
}

// Meta is persisted alongside the data in the raw table.
type Meta struct {
	Changes []Change `json:"changes"`
}

// Record is a single structural payload belonging to exactly one stream.
//
// Data must hold a JSON object. SizeBytes is an approximation of the
// serialized footprint and is what the buffer pool charges against its
// memory budget.
type Record struct {
	RawID     uuid.UUID
	EmittedAt time.Time
	Data      json.RawMessage
	Meta      Meta
	SizeBytes int64
}

// New builds a Record with a fresh raw id and a size estimate derived from
// the payload length.
func New(data []byte, emittedAt time.Time) Record {
	r := Record{
		RawID:     uuid.New(),
		EmittedAt: emittedAt.UTC(),
		Data:      json.RawMessage(data),
	}
	r.SizeBytes = EstimateSize(r)
	return r
}

// EstimateSize returns the number of bytes a record is charged in the buffer
// pool.
func EstimateSize(r Record) int64 {
	n := int64(len(r.Data)) + overheadBytes
	for _, c := range r.Meta.Changes {
		n += int64(len(c.Field) + len(c.Change) + len(c.Reason))
	}
	return n
}

// MetaJSON renders the meta column value. An empty change list is rendered
// as {"changes":[]} so readers never see a JSON null.
func (r Record) MetaJSON() ([]byte, error) {
	m := r.Meta
	if m.Changes == nil {
		m.Changes = []Change{}
	}
	return json.Marshal(m)
}
