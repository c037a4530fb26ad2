// Package sink holds the ingest outputs: the console display, the persistent
// log file and the MQTT/NATS forwarders.
package sink

import (
	"strings"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/protocol/frame"
)

// TimestampLayout is the display timestamp, millisecond precision.
const TimestampLayout = "2006-01-02 15:04:05.000"

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiWhite  = "\x1b[37m"
)

func severityColor(s frame.Severity) string {
	switch s {
	case frame.SeverityDebug:
		return ansiCyan
	case frame.SeverityWarning:
		return ansiYellow
	case frame.SeverityError:
		return ansiRed
	default:
		return ansiWhite
	}
}

// FormatLine renders `[YYYY-MM-DD HH:MM:SS.mmm] [Severity] payload` plus a
// newline. Plain entries carry no severity tag.
func FormatLine(e ingest.Entry, color bool) string {
	var b strings.Builder
	ts := e.Time.Format(TimestampLayout)
	b.Grow(len(ts) + len(e.Record.Payload) + 32)

	if color {
		b.WriteString(ansiReset + "[" + ansiGreen + ts + ansiReset + "] ")
	} else {
		b.WriteString("[" + ts + "] ")
	}
	if !e.Plain {
		sev := e.Record.Severity.String()
		if color {
			b.WriteString(ansiReset + severityColor(e.Record.Severity) + "[" + sev + "]" + ansiReset + " ")
		} else {
			b.WriteString("[" + sev + "] ")
		}
	}
	b.WriteString(e.Record.Payload)
	b.WriteByte('\n')
	return b.String()
}

// routeToken is the last topic/subject segment for an entry.
func routeToken(e ingest.Entry) string {
	if e.Plain {
		return "plain"
	}
	return strings.ToLower(e.Record.Severity.String())
}
