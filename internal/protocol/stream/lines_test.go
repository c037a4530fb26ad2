package stream

import (
	"testing"
	"time"

	"github.com/danmuck/gesk/internal/protocol/frame"
	"github.com/danmuck/gesk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func payloads(t *testing.T, results []Result) []string {
	t.Helper()
	out := make([]string, 0, len(results))
	for _, res := range results {
		require.NoError(t, res.Err)
		assert.True(t, res.Plain)
		out = append(out, res.Record.Payload)
	}
	return out
}

func TestLineSplitterSplitsAcrossChunks(t *testing.T) {
	testlog.Start(t)
	s := NewLineSplitter(0)

	assert.Empty(t, s.Feed([]byte("boot ")))
	assert.Equal(t, []string{"boot ok", "temp=21"}, payloads(t, s.Feed([]byte("ok\r\ntemp=21\nrest"))))
	assert.Equal(t, 4, s.Buffered())
	assert.Equal(t, []string{"rest"}, payloads(t, s.Feed([]byte("\n"))))
	assert.Zero(t, s.Buffered())
}

func TestLineSplitterFlushesOverlongLine(t *testing.T) {
	testlog.Start(t)
	s := NewLineSplitter(4)
	assert.Equal(t, []string{"abcd", "efgh"}, payloads(t, s.Feed([]byte("abcdefghij"))))
	assert.Equal(t, 2, s.Buffered())
}

func TestLineSplitterOverlongLineKeepsRunesWhole(t *testing.T) {
	testlog.Start(t)
	input := []byte("abcdefg\u00e9xyz\n")
	want := []string{"abcdefg", "\u00e9xyz"}

	for split := 0; split <= len(input); split++ {
		s := NewLineSplitter(8)
		got := payloads(t, s.Feed(input[:split]))
		got = append(got, payloads(t, s.Feed(input[split:]))...)
		assert.Equal(t, want, got, "split at %d", split)
		assert.Zero(t, s.Buffered(), "split at %d", split)
	}
}

func TestLineSplitterCRLFAtLimit(t *testing.T) {
	testlog.Start(t)
	input := []byte("abcd\r\nef\n")
	for split := 0; split <= len(input); split++ {
		s := NewLineSplitter(4)
		got := payloads(t, s.Feed(input[:split]))
		got = append(got, payloads(t, s.Feed(input[split:]))...)
		assert.Equal(t, []string{"abcd", "ef"}, got, "split at %d", split)
	}
}

func TestLineSplitterInvalidUTF8(t *testing.T) {
	testlog.Start(t)
	s := NewLineSplitter(0)
	results := s.Feed([]byte{0xC3, 0x28, '\n', 'o', 'k', '\n'})
	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, frame.ErrInvalidEncoding)
	require.NoError(t, results[1].Err)
	assert.Equal(t, "ok", results[1].Record.Payload)
}

func TestLineSplitterHasNoTimeout(t *testing.T) {
	testlog.Start(t)
	s := NewLineSplitter(0)
	s.Feed([]byte("partial"))
	assert.Zero(t, s.CheckTimeout(time.Now().Add(time.Hour)))
	assert.Equal(t, 7, s.Buffered())
}
