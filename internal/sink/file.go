package sink

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/klauspost/compress/zstd"
)

const DefaultOutputDir = "tlog"

type FileFormat string

const (
	FormatText  FileFormat = "text"
	FormatJSONL FileFormat = "jsonl"
)

var (
	ErrInvalidName = errors.New("sink: output name must be a plain file name")
	ErrFileClosed  = errors.New("sink: file closed")
)

func ParseFileFormat(raw string) (FileFormat, error) {
	switch f := FileFormat(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSONL:
		return f, nil
	default:
		return "", fmt.Errorf("sink: unknown file format %q", raw)
	}
}

type FileConfig struct {
	Dir      string
	Name     string
	Format   FileFormat
	Compress bool
}

// Path is where the sink writes: <dir>/<name>.txt, .jsonl for jsonl, plus .zst
// when compressed.
func (c FileConfig) Path() string {
	dir := c.Dir
	if dir == "" {
		dir = DefaultOutputDir
	}
	ext := ".txt"
	if c.Format == FormatJSONL {
		ext = ".jsonl"
	}
	if c.Compress {
		ext += ".zst"
	}
	return filepath.Join(dir, c.Name+ext)
}

// File is the persistent sink. Records are appended without color and each
// one is on disk (or in a flushed zstd block) before Write returns.
type File struct {
	mu     sync.Mutex
	path   string
	format FileFormat
	f      *os.File
	zw     *zstd.Encoder
	w      io.Writer
}

func NewFile(cfg FileConfig) (*File, error) {
	name := strings.TrimSpace(cfg.Name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, cfg.Name)
	}
	cfg.Name = name
	path := cfg.Path()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sink: create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("sink: open %s: %w", path, err)
	}

	out := &File{path: path, format: cfg.Format, f: f, w: f}
	if cfg.Compress {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sink: zstd writer: %w", err)
		}
		out.zw = zw
		out.w = zw
	}
	return out, nil
}

func (s *File) Name() string {
	return "file"
}

func (s *File) Path() string {
	return s.path
}

func (s *File) Write(e ingest.Entry) error {
	line, err := s.render(e)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return ErrFileClosed
	}
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("sink: write %s: %w", s.path, err)
	}
	if s.zw != nil {
		if err := s.zw.Flush(); err != nil {
			return fmt.Errorf("sink: flush %s: %w", s.path, err)
		}
	}
	return nil
}

func (s *File) render(e ingest.Entry) ([]byte, error) {
	if s.format == FormatJSONL {
		b, err := EncodingJSON.Marshal(e)
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	return []byte(FormatLine(e, false)), nil
}

func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	var errs []error
	if s.zw != nil {
		errs = append(errs, s.zw.Close())
	}
	errs = append(errs, s.f.Close())
	s.f = nil
	return errors.Join(errs...)
}
