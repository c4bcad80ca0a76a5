package record

import (
	"strings"
	"testing"
	"time"
)

func TestNew_AssignsIDAndSize(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	a := New([]byte(`{"id":1}`), ts)
	b := New([]byte(`{"id":1}`), ts)

	if a.RawID == b.RawID {
		t.Fatalf("raw ids must be unique, both = %s", a.RawID)
	}
	if a.EmittedAt.Location() != time.UTC {
		t.Fatalf("EmittedAt location = %v, want UTC", a.EmittedAt.Location())
	}
	if want := int64(len(`{"id":1}`)) + overheadBytes; a.SizeBytes != want {
		t.Fatalf("SizeBytes = %d, want %d", a.SizeBytes, want)
	}
}

func TestEstimateSize_CountsChanges(t *testing.T) {
	t.Parallel()

	r := Record{Data: []byte(`{}`)}
	base := EstimateSize(r)

	r.Meta.Changes = []Change{{Field: "name", Change: "NULLED", Reason: "too_large"}}
	if got := EstimateSize(r); got <= base {
		t.Fatalf("EstimateSize with changes = %d, want > %d", got, base)
	}
}

func TestMetaJSON_EmptyChanges(t *testing.T) {
	t.Parallel()

	b, err := Record{}.MetaJSON()
	if err != nil {
		t.Fatalf("MetaJSON error: %v", err)
	}
	if got := string(b); got != `{"changes":[]}` {
		t.Fatalf("MetaJSON = %s, want {\"changes\":[]}", got)
	}

	b, err = Record{Meta: Meta{Changes: []Change{{Field: "f", Change: "TRUNCATED", Reason: "r"}}}}.MetaJSON()
	if err != nil {
		t.Fatalf("MetaJSON error: %v", err)
	}
	if !strings.Contains(string(b), `"field":"f"`) {
		t.Fatalf("MetaJSON = %s, want field f", b)
	}
}
