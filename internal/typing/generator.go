package typing

import (
	"sort"
	"sync"
)

// Generator renders the dialect-specific statements of the typing phase.
// Each returned slice is executed in one transaction.
type Generator interface {
	// PrepareFinalTable creates the table typing writes into.
	PrepareFinalTable(s StreamConfig) ([]string, error)
	// TypeAndDedupe moves unloaded raw rows into the final table, removes
	// superseded versions when the stream dedupes, and marks raw rows loaded.
	TypeAndDedupe(s StreamConfig) ([]string, error)
	// CommitFinalTable makes the written table live; nil when nothing to do.
	CommitFinalTable(s StreamConfig) []string
	// RecordState upserts the stream's committed generation, or "" when the
	// backend keeps no state table.
	RecordState(s StreamConfig) string
	// Cleanup drops staging artifacts left for s.
	Cleanup(s StreamConfig) []string
}

var (
	genMu      sync.RWMutex
	generators = map[string]Generator{}
)

// RegisterGenerator registers (or replaces) the generator of a storage kind.
// Backend packages call it from init().
func RegisterGenerator(kind string, g Generator) {
	genMu.Lock()
	defer genMu.Unlock()
	generators[kind] = g
}

// GeneratorFor returns the generator registered for kind.
func GeneratorFor(kind string) (Generator, bool) {
	genMu.RLock()
	defer genMu.RUnlock()
	g, ok := generators[kind]
	return g, ok
}

// GeneratorKinds returns the sorted kinds that support typing.
func GeneratorKinds() []string {
	genMu.RLock()
	defer genMu.RUnlock()
	out := make([]string, 0, len(generators))
	for k := range generators {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
