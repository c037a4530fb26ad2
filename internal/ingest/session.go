package ingest

import (
	"context"
	"encoding/hex"
	"sync/atomic"

	"github.com/danmuck/gesk/internal/observability"
	"github.com/danmuck/gesk/internal/protocol/stream"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stats counts what a session has processed.
type Stats struct {
	BytesRead    uint64 `json:"bytes_read"`
	Records      uint64 `json:"records"`
	Filtered     uint64 `json:"filtered"`
	DecodeErrors uint64 `json:"decode_errors"`
	Resyncs      uint64 `json:"resyncs"`
}

// Session is one open transport plus its decoder state. Reads, decoding and
// sink writes all run on the goroutine that calls Run.
type Session struct {
	id     string
	cfg    SessionConfig
	opener Opener
	dec    stream.Decoder
	sinks  Sinks
	logger zerolog.Logger

	src Source

	bytesRead    atomic.Uint64
	records      atomic.Uint64
	filtered     atomic.Uint64
	decodeErrors atomic.Uint64
	resyncs      atomic.Uint64
}

func NewSession(cfg SessionConfig, opener Opener, dec stream.Decoder, sinks Sinks) *Session {
	id := uuid.NewString()
	return &Session{
		id:     id,
		cfg:    cfg.WithDefaults(),
		opener: opener,
		dec:    dec,
		sinks:  sinks,
		logger: observability.Component("ingest").With().
			Str("session", id).
			Str("source", opener.Name()).
			Logger(),
	}
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Source() string {
	return s.opener.Name()
}

func (s *Session) Stats() Stats {
	return Stats{
		BytesRead:    s.bytesRead.Load(),
		Records:      s.records.Load(),
		Filtered:     s.filtered.Load(),
		DecodeErrors: s.decodeErrors.Load(),
		Resyncs:      s.resyncs.Load(),
	}
}

func (s *Session) Open(ctx context.Context) error {
	if s.src != nil {
		return ErrSessionOpen
	}
	src, err := s.opener.Open(ctx)
	if err != nil {
		return err
	}
	s.src = src
	observability.RecordSessionStart(s.opener.Name())
	s.logger.Info().Msg("session.open")
	return nil
}

// Run reads until the source closes, fails, or ctx is cancelled. Cancellation
// returns nil; the other two return ErrSourceClosed or ErrTransport.
func (s *Session) Run(ctx context.Context) error {
	if s.src == nil {
		return ErrSessionNotOpen
	}
	name := s.opener.Name()
	buf := make([]byte, s.cfg.ReadBufferSize)
	for {
		if ctx.Err() != nil {
			s.logger.Info().Msg("session.shutdown")
			return nil
		}

		n, readErr := s.src.Read(buf)
		if n > 0 {
			s.bytesRead.Add(uint64(n))
			observability.RecordBytesRead(name, n)
			for _, res := range s.dec.Feed(buf[:n]) {
				s.handle(res)
			}
		}
		if err := classifyReadErr(readErr); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn().Err(err).Msg("session.read_failed")
			return err
		}

		if dropped := s.dec.CheckTimeout(s.cfg.Clock.Now()); dropped > 0 {
			s.resyncs.Add(1)
			observability.RecordResync(name, dropped)
			s.logger.Info().
				Int("dropped", dropped).
				Int("buffered", s.dec.Buffered()).
				Msg("session.resync")
		}
		observability.SetBuffered(name, s.dec.Buffered())
	}
}

func (s *Session) Close() error {
	if s.src == nil {
		return nil
	}
	err := s.src.Close()
	s.src = nil
	s.logger.Info().Msg("session.close")
	return err
}

func (s *Session) handle(res stream.Result) {
	if res.Err != nil {
		s.reportDecodeError(res)
		return
	}
	if res.Skipped > 0 {
		s.logger.Debug().Int("skipped", res.Skipped).Msg("session.stray_bytes")
	}

	entry := Entry{
		Time:    s.cfg.Clock.Now(),
		Record:  res.Record,
		Session: s.id,
		Source:  s.opener.Name(),
		Plain:   res.Plain,
	}
	if s.cfg.Filter != nil && !s.cfg.Filter.Match(entry) {
		s.filtered.Add(1)
		return
	}
	s.records.Add(1)
	observability.RecordRecord(entry.Source, entry.Record.Severity.String())

	s.sinks.each(func(sk Sink) {
		if err := sk.Write(entry); err != nil {
			observability.RecordSinkError(sk.Name())
			s.logger.Error().Err(err).Str("sink", sk.Name()).Msg("session.sink_write_failed")
		}
	})
}

func (s *Session) reportDecodeError(res stream.Result) {
	derr := DecodeError{
		Session: s.id,
		Source:  s.opener.Name(),
		Raw:     res.Raw,
		Err:     res.Err,
	}
	s.decodeErrors.Add(1)
	observability.RecordDecodeError(derr.Source, derr.Reason())
	s.logger.Error().
		Err(res.Err).
		Int("bytes", len(res.Raw)).
		Str("raw", hex.EncodeToString(res.Raw)).
		Msg("session.decode_failed")
	if s.cfg.OnDecodeError != nil {
		s.cfg.OnDecodeError(derr)
	}
}
