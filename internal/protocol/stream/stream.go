// Package stream turns an arbitrarily chunked byte stream into records.
//
// Ownership boundary:
// - reassembly buffer and resync deadline (Reassembler)
// - newline splitting for plain serial logs (LineSplitter)
//
// A Decoder belongs to exactly one session. It is not safe for concurrent use.
package stream

import (
	"time"

	"github.com/danmuck/gesk/internal/protocol/frame"
)

// Result is one unit of Decoder output: a record or the decode error for the
// bytes that were consumed.
type Result struct {
	Record frame.Record
	Err    error
	// Raw holds the consumed frame or line bytes.
	Raw []byte
	// Skipped counts stray bytes dropped in front of Raw.
	Skipped int
	// Plain is set for line-mode records, which carry no severity tag.
	Plain bool
}

// Decoder is the split/frame-boundary policy a session runs.
type Decoder interface {
	Feed(chunk []byte) []Result
	CheckTimeout(now time.Time) int
	Buffered() int
}

type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
}

type systemClock struct{}

func (systemClock) Now() time.Time                  { return time.Now() }
func (systemClock) Since(t time.Time) time.Duration { return time.Since(t) }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
