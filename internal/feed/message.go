// Package feed reads the newline-delimited JSON message stream a source
// emits and hands RECORD messages to a destination consumer.
package feed

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"destsync/internal/catalog"
	"destsync/internal/record"
)

// Type is the message discriminator.
type Type string

const (
	TypeRecord Type = "RECORD"
	TypeState  Type = "STATE"
	TypeTrace  Type = "TRACE"
	TypeLog    Type = "LOG"
)

// Message is one decoded feed line. Only RECORD payloads are decoded; the
// other kinds are counted and dropped.
type Message struct {
	Type   Type           `json:"type"`
	Record *RecordMessage `json:"record,omitempty"`
}

// RecordMessage carries one record for one stream. EmittedAt is epoch
// milliseconds.
type RecordMessage struct {
	Stream    string          `json:"stream"`
	Namespace string          `json:"namespace,omitempty"`
	EmittedAt int64           `json:"emitted_at"`
	Data      json.RawMessage `json:"data"`
	Meta      *record.Meta    `json:"meta,omitempty"`
}

// Key returns the stream key the record belongs to.
func (m *RecordMessage) Key() catalog.StreamKey {
	return catalog.StreamKey{Namespace: m.Namespace, Name: m.Stream}
}

// ToRecord converts the message into a buffered record. The payload is
// copied so the caller may reuse its line buffer.
func (m *RecordMessage) ToRecord() record.Record {
	data := bytes.Clone(m.Data)
	r := record.New(data, time.UnixMilli(m.EmittedAt))
	if m.Meta != nil {
		r.Meta = *m.Meta
		r.SizeBytes = record.EstimateSize(r)
	}
	return r
}

// ErrNotObject is returned for RECORD messages whose data is not a JSON
// object.
var ErrNotObject = errors.New("record data is not a JSON object")

// LineError reports a malformed feed line.
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string { return fmt.Sprintf("feed line %d: %v", e.Line, e.Err) }
func (e *LineError) Unwrap() error { return e.Err }

// Decode parses one line.
func Decode(line []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return Message{}, err
	}
	if m.Type == "" {
		return Message{}, errors.New("message has no type")
	}
	if m.Type != TypeRecord {
		m.Record = nil
		return m, nil
	}
	if m.Record == nil {
		return Message{}, errors.New("RECORD message without record")
	}
	if m.Record.Stream == "" {
		return Message{}, errors.New("record has no stream")
	}
	d := bytes.TrimSpace(m.Record.Data)
	if len(d) == 0 || d[0] != '{' {
		return Message{}, ErrNotObject
	}
	return m, nil
}
