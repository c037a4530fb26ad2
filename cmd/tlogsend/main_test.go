package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danmuck/gesk/internal/protocol/frame"
	"github.com/danmuck/gesk/internal/protocol/stream"
	"github.com/danmuck/gesk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	testlog.Start(t)
	tests := []struct {
		in   string
		want frame.Record
	}{
		{"plain text", frame.Record{Severity: frame.SeverityDebug, Payload: "plain text"}},
		{"warn: fan slow", frame.Record{Severity: frame.SeverityWarning, Payload: "fan slow"}},
		{"ERROR:overheat\r", frame.Record{Severity: frame.SeverityError, Payload: "overheat"}},
		{"unknown: kept", frame.Record{Severity: frame.SeverityDebug, Payload: "unknown: kept"}},
		{"time is 12:30", frame.Record{Severity: frame.SeverityDebug, Payload: "time is 12:30"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLine(tt.in, frame.SeverityDebug), tt.in)
	}
}

func TestSendFramesDecodeBack(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	n, err := send(strings.NewReader("hello\nerror: bad\n"), &out, frame.SeverityDebug)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	results := stream.NewReassembler().Feed(out.Bytes())
	require.Len(t, results, 2)
	assert.Equal(t, frame.Record{Severity: frame.SeverityDebug, Payload: "hello"}, results[0].Record)
	assert.Equal(t, frame.Record{Severity: frame.SeverityError, Payload: "bad"}, results[1].Record)
}

func TestRunWritesFramesToStdout(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	require.NoError(t, run([]string{"-severity", "warn"}, strings.NewReader("a\nerror: b\n"), &out))

	results := stream.NewReassembler().Feed(out.Bytes())
	require.Len(t, results, 2)
	assert.Equal(t, frame.SeverityWarning, results[0].Record.Severity)
	assert.Equal(t, frame.SeverityError, results[1].Record.Severity)
}

func TestRunRejectsBadSeverityAndMissingPort(t *testing.T) {
	testlog.Start(t)
	var out bytes.Buffer
	assert.Error(t, run([]string{"-severity", "unknown"}, strings.NewReader("x\n"), &out))

	missing := filepath.Join(t.TempDir(), "ttyMissing")
	assert.Error(t, run([]string{"-port", missing}, strings.NewReader("x\n"), &out))
	assert.Zero(t, out.Len())
}
