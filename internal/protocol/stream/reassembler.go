package stream

import (
	"bytes"
	"time"

	"github.com/danmuck/gesk/internal/protocol/frame"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultMaxStray = 64 * 1024
)

type Option func(*Reassembler)

func WithLayout(l frame.Layout) Option {
	return func(r *Reassembler) { r.layout = l }
}

// WithTimeout sets how long a started frame may stall before resync.
func WithTimeout(d time.Duration) Option {
	return func(r *Reassembler) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(r *Reassembler) {
		if c != nil {
			r.clock = c
		}
	}
}

// WithMaxStray bounds how many marker-free bytes are kept. Zero disables the bound.
func WithMaxStray(n int) Option {
	return func(r *Reassembler) { r.maxStray = n }
}

// Reassembler extracts frames from a chunked byte stream.
//
// buf[head:] is the live window. Bytes before head are consumed and reclaimed
// by compact.
type Reassembler struct {
	layout   frame.Layout
	timeout  time.Duration
	clock    Clock
	maxStray int

	buf  []byte
	head int

	deadline    time.Time
	hasDeadline bool
}

func NewReassembler(opts ...Option) *Reassembler {
	r := &Reassembler{
		layout:   frame.DefaultLayout(),
		timeout:  DefaultTimeout,
		clock:    SystemClock,
		maxStray: DefaultMaxStray,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed appends chunk and returns every frame it completes, in arrival order.
func (r *Reassembler) Feed(chunk []byte) []Result {
	if len(chunk) == 0 {
		return nil
	}
	r.compact()
	r.buf = append(r.buf, chunk...)

	var out []Result
	for {
		window := r.buf[r.head:]
		idx := bytes.IndexByte(window, r.layout.StartMarker)
		if idx < 0 {
			r.boundStray()
			break
		}
		rest := window[idx:]
		if len(rest) < frame.HeaderLen {
			break
		}
		r.deadline = r.clock.Now()
		r.hasDeadline = true

		size := frame.HeaderLen + frame.PayloadLen(rest)
		if len(rest) < size {
			break
		}

		raw := make([]byte, size)
		copy(raw, rest[:size])
		r.head += idx + size
		r.hasDeadline = false

		rec, err := r.layout.Decode(raw)
		out = append(out, Result{Record: rec, Err: err, Raw: raw, Skipped: idx})
	}
	return out
}

// CheckTimeout drops everything up to and including the earliest marker when
// the frame started there has stalled past the timeout. It returns the number
// of bytes dropped.
func (r *Reassembler) CheckTimeout(now time.Time) int {
	if !r.hasDeadline || now.Sub(r.deadline) <= r.timeout {
		return 0
	}
	r.hasDeadline = false
	window := r.buf[r.head:]
	idx := bytes.IndexByte(window, r.layout.StartMarker)
	if idx < 0 {
		return 0
	}
	r.head += idx + 1
	return idx + 1
}

func (r *Reassembler) Buffered() int {
	return len(r.buf) - r.head
}

// Pending reports whether a started frame is waiting on the resync deadline.
func (r *Reassembler) Pending() bool {
	return r.hasDeadline
}

func (r *Reassembler) Timeout() time.Duration {
	return r.timeout
}

func (r *Reassembler) Reset() {
	r.buf = r.buf[:0]
	r.head = 0
	r.hasDeadline = false
}

// boundStray discards a marker-free window once it outgrows maxStray. Such
// bytes would be dropped ahead of the next frame anyway.
func (r *Reassembler) boundStray() {
	if r.maxStray > 0 && r.Buffered() > r.maxStray {
		r.head = len(r.buf)
	}
}

func (r *Reassembler) compact() {
	if r.head == 0 {
		return
	}
	if r.head == len(r.buf) {
		r.buf = r.buf[:0]
		r.head = 0
		return
	}
	if r.head < cap(r.buf)/2 {
		return
	}
	n := copy(r.buf, r.buf[r.head:])
	r.buf = r.buf[:n]
	r.head = 0
}
