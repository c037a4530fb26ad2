package sink

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type ColorMode string

const (
	ColorAuto   ColorMode = "auto"
	ColorAlways ColorMode = "always"
	ColorNever  ColorMode = "never"
)

func ParseColorMode(raw string) (ColorMode, error) {
	switch m := ColorMode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ColorAuto, nil
	case ColorAuto, ColorAlways, ColorNever:
		return m, nil
	default:
		return "", fmt.Errorf("sink: unknown color mode %q", raw)
	}
}

// Console is the display sink: one formatted line per entry.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

// NewConsole writes to f. In auto mode color is on only for a terminal; on
// Windows consoles the ANSI sequences go through go-colorable.
func NewConsole(f *os.File, mode ColorMode) *Console {
	color := false
	switch mode {
	case ColorAlways:
		color = true
	case ColorAuto, "":
		fd := f.Fd()
		color = isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
	}
	var out io.Writer = f
	if color {
		out = colorable.NewColorable(f)
	}
	return &Console{out: out, color: color}
}

func NewConsoleWriter(w io.Writer, color bool) *Console {
	return &Console{out: w, color: color}
}

func (c *Console) Name() string {
	return "console"
}

func (c *Console) Color() bool {
	return c.color
}

func (c *Console) Write(e ingest.Entry) error {
	line := FormatLine(e, c.color)
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.out, line)
	return err
}

func (c *Console) Close() error {
	return nil
}
