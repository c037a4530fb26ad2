// Command tlogsend frames stdin lines as log records and writes them to a
// serial port or stdout, for exercising gesk without device firmware.
//
// A line may start with a severity tag ("debug:", "warn:", "error:") that
// overrides -severity for that line.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/danmuck/gesk/internal/logging"
	"github.com/danmuck/gesk/internal/protocol/frame"
	serialport "github.com/danmuck/gesk/internal/transport/serial"
	"github.com/rs/zerolog/log"
)

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "tlogsend: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, in io.Reader, stdout io.Writer) (err error) {
	fs := flag.NewFlagSet("tlogsend", flag.ContinueOnError)
	port := fs.String("port", "", "serial device to write to (stdout when empty)")
	baud := fs.Int("baud", serialport.DefaultBaud, "baud rate")
	severity := fs.String("severity", "debug", "default severity: debug|warning|error")
	if err := fs.Parse(args); err != nil {
		return err
	}

	def, err := frame.ParseSeverity(*severity)
	if err != nil || def == frame.SeverityUnknown {
		return fmt.Errorf("bad -severity %q", *severity)
	}

	var out io.WriteCloser = nopWriteCloser{stdout}
	if *port != "" {
		out, err = serialport.OpenWriter(*port, *baud)
		if err != nil {
			return err
		}
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	sent, err := send(in, out, def)
	if err != nil {
		log.Error().Err(err).Int("sent", sent).Msg("tlogsend.failed")
		return err
	}
	log.Info().Int("sent", sent).Msg("tlogsend.done")
	return nil
}

// send writes one frame per input line and returns how many it wrote.
func send(in io.Reader, out io.Writer, def frame.Severity) (int, error) {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), frame.MaxPayloadLen+64)
	sent := 0
	for sc.Scan() {
		rec := parseLine(sc.Text(), def)
		if err := frame.WriteRecord(out, rec); err != nil {
			return sent, fmt.Errorf("line %d: %w", sent+1, err)
		}
		sent++
	}
	return sent, sc.Err()
}

func parseLine(line string, def frame.Severity) frame.Record {
	line = strings.TrimRight(line, "\r")
	if tag, rest, ok := strings.Cut(line, ":"); ok && !strings.ContainsAny(tag, " \t") {
		if sev, err := frame.ParseSeverity(tag); err == nil && sev != frame.SeverityUnknown {
			return frame.Record{Severity: sev, Payload: strings.TrimPrefix(rest, " ")}
		}
	}
	return frame.Record{Severity: def, Payload: line}
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
