// Package replay feeds a captured byte stream from a file (or stdin) through
// the ingest loop, for offline decoding of serial captures.
package replay

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/gesk/internal/ingest"
)

// Stdin is the path that selects standard input.
const Stdin = "-"

type Opener struct {
	Path string

	stdin io.Reader
}

func NewOpener(path string) *Opener {
	return &Opener{Path: path, stdin: os.Stdin}
}

func (o *Opener) Name() string {
	if o.Path == Stdin {
		return "stdin"
	}
	return o.Path
}

// Open returns a source that ends with io.EOF, which the session treats as
// a closed source.
func (o *Opener) Open(ctx context.Context) (ingest.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.Path == Stdin {
		in := o.stdin
		if in == nil {
			in = os.Stdin
		}
		return io.NopCloser(in), nil
	}
	f, err := os.Open(o.Path)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}
	return f, nil
}
