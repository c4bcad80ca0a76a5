// Package naming turns logical stream names and namespaces into physical
// identifiers a backend accepts.
//
// Rules applied by Convention.Identifier:
//  1. strip accents (NFD → remove Mn → NFC)
//  2. keep [A-Za-z0-9_]; every other rune becomes an underscore
//  3. optionally lowercase
//  4. prefix "_" when the result starts with a digit; "_" when empty
//  5. truncate to MaxLength, replacing the tail with an xxh3 hash so two long
//     names sharing a prefix stay distinct
package naming

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// hashSuffixLen is the length of "_" plus 8 hex digits.
const hashSuffixLen = 9

// Convention holds the identifier rules of one backend.
type Convention struct {
	// MaxLength is the backend identifier limit in bytes; 0 means unlimited.
	MaxLength int
	// Lowercase folds identifiers to lower case (Postgres folds unquoted
	// identifiers, MySQL table names are case-sensitive on some filesystems).
	Lowercase bool
}

// Known conventions per storage kind.
var conventions = map[string]Convention{
	"postgres": {MaxLength: 63, Lowercase: true},
	"mysql":    {MaxLength: 64, Lowercase: true},
	"mssql":    {MaxLength: 128},
	"sqlite":   {},
}

// ForKind returns the convention registered for a storage kind, or an
// unlimited case-preserving convention for unknown kinds.
func ForKind(kind string) Convention {
	return conventions[kind]
}

// Identifier converts s into a single identifier segment.
func (c Convention) Identifier(s string) string {
	t := transform.Chain(
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		norm.NFC,
	)
	ascii, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		ascii = s
	}

	var b strings.Builder
	b.Grow(len(ascii))
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	name := b.String()
	if c.Lowercase {
		name = strings.ToLower(name)
	}
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return c.truncate(name)
}

// RawTableName returns the raw table name for a stream. The namespace is
// folded into the name because all raw tables share one raw schema.
func (c Convention) RawTableName(namespace, name string) string {
	ns := c.Identifier(namespace)
	if strings.TrimSpace(namespace) == "" {
		ns = "_"
	}
	return c.truncate(fmt.Sprintf("%s_raw__stream_%s", ns, c.Identifier(name)))
}

// WithSuffix appends suffix to an identifier while respecting MaxLength.
func (c Convention) WithSuffix(name, suffix string) string {
	if suffix == "" {
		return name
	}
	if c.MaxLength <= 0 || len(name)+len(suffix) <= c.MaxLength {
		return name + suffix
	}
	keep := c.MaxLength - len(suffix) - hashSuffixLen
	if keep <= 0 {
		return c.truncate(name + suffix)
	}
	return name[:keep] + hashTail(name) + suffix
}

func (c Convention) truncate(name string) string {
	if c.MaxLength <= 0 || len(name) <= c.MaxLength {
		return name
	}
	keep := c.MaxLength - hashSuffixLen
	if keep < 1 {
		return hashTail(name)[1:]
	}
	return name[:keep] + hashTail(name)
}

func hashTail(s string) string {
	return fmt.Sprintf("_%08x", uint32(xxh3.HashString(s)))
}
