package feed

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// Source opens the byte stream a feed is read from.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// OpenSource picks a Source for input: "-" is stdin, http(s) URLs are
// fetched with an HTTP client built from cfg, anything else is a local path.
func OpenSource(input string, cfg HTTPConfig) (Source, error) {
	switch {
	case input == "":
		return nil, fmt.Errorf("feed: empty input")
	case input == "-":
		return Stdin(), nil
	case strings.HasPrefix(input, "http://"), strings.HasPrefix(input, "https://"):
		return &HTTP{Client: NewHTTPClient(cfg), URL: input}, nil
	default:
		return NewLocal(input), nil
	}
}

// Local reads a file from the local disk.
type Local struct {
	path  string
	stdin bool
}

// NewLocal returns a Local bound to path.
func NewLocal(path string) *Local { return &Local{path: path} }

// Stdin returns a Local that reads the process's standard input. Closing it
// leaves stdin open.
func Stdin() *Local { return &Local{path: "-", stdin: true} }

// Open returns ctx.Err() without touching the filesystem when ctx is already
// done. Filesystem errors are wrapped with the path, so errors.Is(err,
// os.ErrNotExist) still works.
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if l.stdin {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", l.path, err)
	}
	adviseSequential(f)
	return f, nil
}
