package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
)

var (
	ErrSourceClosed   = errors.New("ingest: source closed")
	ErrTransport      = errors.New("ingest: transport failure")
	ErrWouldBlock     = errors.New("ingest: no data ready")
	ErrSessionNotOpen = errors.New("ingest: session not open")
	ErrSessionOpen    = errors.New("ingest: session already open")
)

// Source is an opened byte source. Read follows io.Reader with these extra
// rules: (0, nil), ErrWouldBlock and timeout errors mean "no bytes this
// cycle"; io.EOF and closed-handle errors mean the source is gone for good;
// anything else is an unrecoverable transport error.
type Source interface {
	io.ReadCloser
}

// Opener opens a fresh Source for each session.
type Opener interface {
	Open(ctx context.Context) (Source, error)
	// Name labels logs and metrics, e.g. the device path.
	Name() string
}

type timeoutError interface {
	Timeout() bool
}

// classifyReadErr returns nil for transient conditions and a wrapped
// ErrSourceClosed or ErrTransport for fatal ones.
func classifyReadErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrWouldBlock) || errors.Is(err, os.ErrDeadlineExceeded) {
		return nil
	}
	var te timeoutError
	if errors.As(err, &te) && te.Timeout() {
		return nil
	}
	if errors.Is(err, ErrSourceClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, os.ErrClosed) ||
		errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrSourceClosed, err)
	}
	return fmt.Errorf("%w: %v", ErrTransport, err)
}
