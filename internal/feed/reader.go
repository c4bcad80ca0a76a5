package feed

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"destsync/internal/catalog"
	"destsync/internal/metrics"
	"destsync/internal/record"
)

// DefaultMaxLineBytes bounds a single feed line.
const DefaultMaxLineBytes = 64 << 20

// Sink receives decoded records. destination.Consumer implements it.
type Sink interface {
	Accept(ctx context.Context, key catalog.StreamKey, rec record.Record) error
}

// Stats counts messages by kind.
type Stats struct {
	Lines   int
	Records int64
	State   int64
	Trace   int64
	Log     int64
	Other   int64
}

func (s *Stats) count(t Type) {
	switch t {
	case TypeRecord:
		s.Records++
	case TypeState:
		s.State++
	case TypeTrace:
		s.Trace++
	case TypeLog:
		s.Log++
	default:
		s.Other++
	}
}

// Reader pumps a feed into a Sink.
type Reader struct {
	Job          string
	Log          *zap.Logger
	MaxLineBytes int
}

// Pump reads src to EOF, passing every RECORD to sink in order. It stops at
// the first malformed line or sink error. Blank lines are skipped.
func (r *Reader) Pump(ctx context.Context, src io.Reader, sink Sink) (st Stats, err error) {
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	maxLine := r.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}
	defer func() { r.report(st) }()

	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, min(64<<10, maxLine)), maxLine)
	for sc.Scan() {
		st.Lines++
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, err := Decode(line)
		if err != nil {
			return st, &LineError{Line: st.Lines, Err: err}
		}
		st.count(msg.Type)
		if msg.Type != TypeRecord {
			if msg.Type != TypeState && msg.Type != TypeTrace && msg.Type != TypeLog {
				log.Debug("ignoring unknown message type", zap.String("type", string(msg.Type)), zap.Int("line", st.Lines))
			}
			continue
		}
		if err := sink.Accept(ctx, msg.Record.Key(), msg.Record.ToRecord()); err != nil {
			return st, fmt.Errorf("accept %s: %w", msg.Record.Key(), err)
		}
	}
	if err := sc.Err(); err != nil {
		return st, &LineError{Line: st.Lines + 1, Err: err}
	}
	log.Info("feed consumed",
		zap.Int("lines", st.Lines),
		zap.Int64("records", st.Records),
		zap.Int64("state", st.State),
	)
	return st, nil
}

func (r *Reader) report(st Stats) {
	for kind, n := range map[Type]int64{
		TypeRecord: st.Records,
		TypeState:  st.State,
		TypeTrace:  st.Trace,
		TypeLog:    st.Log,
		"OTHER":    st.Other,
	} {
		if n > 0 {
			metrics.RecordMessages(r.Job, strings.ToLower(string(kind)), n)
		}
	}
}
