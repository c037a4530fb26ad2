package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/gesk/internal/protocol/frame"
)

// Entry is a timestamped record as handed to sinks.
type Entry struct {
	Time    time.Time
	Record  frame.Record
	Session string
	Source  string
	Plain   bool
}

// Sink receives entries. Display, persistent and forward sinks share it.
type Sink interface {
	Name() string
	Write(e Entry) error
	Close() error
}

// Filter decides whether an entry reaches the sinks.
type Filter interface {
	Match(e Entry) bool
}

// Sinks groups the outputs of a session. Display is required; the rest are optional.
type Sinks struct {
	Display Sink
	Persist Sink
	Forward []Sink
}

func (s Sinks) each(fn func(Sink)) {
	if s.Display != nil {
		fn(s.Display)
	}
	if s.Persist != nil {
		fn(s.Persist)
	}
	for _, f := range s.Forward {
		if f != nil {
			fn(f)
		}
	}
}

// Close closes every sink and returns the joined errors.
func (s Sinks) Close() error {
	var errs []error
	s.each(func(sk Sink) {
		if err := sk.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sk.Name(), err))
		}
	})
	return errors.Join(errs...)
}

// DecodeError reports bytes the decoder consumed but could not turn into a record.
type DecodeError struct {
	Session string
	Source  string
	Raw     []byte
	Err     error
}

func (e DecodeError) Error() string {
	return fmt.Sprintf("ingest: decode failed source=%s bytes=%d: %v", e.Source, len(e.Raw), e.Err)
}

func (e DecodeError) Unwrap() error {
	return e.Err
}

// Reason is a stable label for metrics.
func (e DecodeError) Reason() string {
	switch {
	case errors.Is(e.Err, frame.ErrEmptyInput):
		return "empty_input"
	case errors.Is(e.Err, frame.ErrMalformedHeader):
		return "malformed_header"
	case errors.Is(e.Err, frame.ErrLengthMismatch):
		return "length_mismatch"
	case errors.Is(e.Err, frame.ErrInvalidEncoding):
		return "invalid_encoding"
	default:
		return "other"
	}
}
