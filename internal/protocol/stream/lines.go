package stream

import (
	"bytes"
	"time"
	"unicode/utf8"

	"github.com/danmuck/gesk/internal/protocol/frame"
)

const DefaultMaxLine = 16 * 1024

// LineSplitter emits one plain record per '\n'-terminated line. A line longer
// than maxLine comes out in pieces of at most maxLine bytes, regardless of how
// the input was chunked.
type LineSplitter struct {
	maxLine int
	buf     []byte
}

func NewLineSplitter(maxLine int) *LineSplitter {
	if maxLine <= 0 {
		maxLine = DefaultMaxLine
	}
	return &LineSplitter{maxLine: maxLine}
}

func (s *LineSplitter) Feed(chunk []byte) []Result {
	if len(chunk) == 0 {
		return nil
	}
	s.buf = append(s.buf, chunk...)

	var out []Result
	for {
		pos := bytes.IndexByte(s.buf, '\n')
		switch {
		case pos >= 0 && s.contentLen(pos) <= s.maxLine:
			out = append(out, s.emit(pos+1))
		case s.overlong():
			out = append(out, s.emit(s.cutPoint()))
		default:
			return out
		}
	}
}

// contentLen is the line length before the '\n' at pos, less a trailing '\r'.
func (s *LineSplitter) contentLen(pos int) int {
	if pos > 0 && s.buf[pos-1] == '\r' {
		return pos - 1
	}
	return pos
}

// overlong reports whether the buffered line already exceeds maxLine. A '\r'
// just past the limit may still end the line, so it waits for the next byte.
func (s *LineSplitter) overlong() bool {
	n := len(s.buf)
	if n <= s.maxLine {
		return false
	}
	return n > s.maxLine+1 || s.buf[s.maxLine] != '\r'
}

// cutPoint is where an overlong line is split: maxLine, moved back onto the
// start of a UTF-8 sequence when that is at most UTFMax-1 bytes away.
func (s *LineSplitter) cutPoint() int {
	for cut := s.maxLine; cut > 0 && s.maxLine-cut < utf8.UTFMax; cut-- {
		if utf8.RuneStart(s.buf[cut]) {
			return cut
		}
	}
	return s.maxLine
}

// CheckTimeout is a no-op; lines have no resync deadline.
func (s *LineSplitter) CheckTimeout(time.Time) int {
	return 0
}

func (s *LineSplitter) Buffered() int {
	return len(s.buf)
}

func (s *LineSplitter) emit(n int) Result {
	raw := make([]byte, n)
	copy(raw, s.buf[:n])
	s.buf = s.buf[:copy(s.buf, s.buf[n:])]

	line := bytes.TrimSuffix(raw, []byte{'\n'})
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if !utf8.Valid(line) {
		return Result{Err: frame.ErrInvalidEncoding, Raw: raw, Plain: true}
	}
	return Result{
		Record: frame.Record{Severity: frame.SeverityUnknown, Payload: string(line)},
		Raw:    raw,
		Plain:  true,
	}
}
