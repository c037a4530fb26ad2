// Package serial opens serial devices as ingest sources.
package serial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"go.bug.st/serial"
)

const (
	DefaultBaud        = 115200
	DefaultReadTimeout = 100 * time.Millisecond
)

var (
	ErrNoPort      = errors.New("serial: port path required")
	ErrInvalidBaud = errors.New("serial: baud rate must be positive")
)

// openFunc matches serial.Open so tests can swap the device layer.
type openFunc func(name string, mode *serial.Mode) (serial.Port, error)

// Opener opens Path at Baud for every session. ReadTimeout bounds each Read
// so the ingest loop gets to run its resync check on an idle line.
type Opener struct {
	Path        string
	Baud        int
	ReadTimeout time.Duration

	open openFunc
}

func NewOpener(path string, baud int, readTimeout time.Duration) *Opener {
	if baud <= 0 {
		baud = DefaultBaud
	}
	if readTimeout <= 0 {
		readTimeout = DefaultReadTimeout
	}
	return &Opener{
		Path:        NormalizePath(path),
		Baud:        baud,
		ReadTimeout: readTimeout,
		open:        serial.Open,
	}
}

func (o *Opener) Name() string {
	return o.Path
}

func (o *Opener) Open(ctx context.Context) (ingest.Source, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := o.openPort()
	if err != nil {
		return nil, err
	}
	if err := port.SetReadTimeout(o.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial: set read timeout on %s: %w", o.Path, err)
	}
	return &source{port: port}, nil
}

func (o *Opener) openPort() (serial.Port, error) {
	if o.Path == "" {
		return nil, ErrNoPort
	}
	if o.Baud <= 0 {
		return nil, ErrInvalidBaud
	}
	open := o.open
	if open == nil {
		open = serial.Open
	}
	port, err := open(o.Path, &serial.Mode{BaudRate: o.Baud})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s at %d baud: %w", o.Path, o.Baud, err)
	}
	return port, nil
}

// OpenWriter opens the port for writing, as used by tlogsend.
func OpenWriter(path string, baud int) (io.WriteCloser, error) {
	o := NewOpener(path, baud, 0)
	return o.openPort()
}

type source struct {
	port serial.Port
}

// Read returns (0, nil) when the read timeout expires with no data.
func (s *source) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil && isPortClosed(err) {
		return n, fmt.Errorf("%w: %v", ingest.ErrSourceClosed, err)
	}
	return n, err
}

func (s *source) Close() error {
	return s.port.Close()
}

func isPortClosed(err error) bool {
	var pe *serial.PortError
	if errors.As(err, &pe) {
		return pe.Code() == serial.PortClosed
	}
	return false
}

// NormalizePath maps sysfs device entries to their /dev node:
// /sys/class/tty/ttyUSB0 becomes /dev/ttyUSB0.
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	if !strings.HasPrefix(p, "/sys/class/") {
		return p
	}
	return path.Join("/dev", path.Base(p))
}
