package ingest

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/danmuck/gesk/internal/observability"
	"github.com/danmuck/gesk/internal/protocol/stream"
	"github.com/rs/zerolog"
)

// Status is a snapshot of the supervisor for the status API.
type Status struct {
	Source    string `json:"source"`
	SessionID string `json:"session_id,omitempty"`
	Connected bool   `json:"connected"`
	Restarts  int    `json:"restarts"`
	Stats     Stats  `json:"stats"`
	LastError string `json:"last_error,omitempty"`
}

// Supervisor owns the session lifecycle: open, run, close, and restart with
// backoff when the transport goes away.
type Supervisor struct {
	opener     Opener
	newDecoder func() stream.Decoder
	sinks      Sinks
	session    SessionConfig
	restart    RestartConfig
	logger     zerolog.Logger
	rng        *rand.Rand

	mu       sync.RWMutex
	current  *Session
	last     Stats
	restarts int
	lastErr  string
}

func NewSupervisor(opener Opener, newDecoder func() stream.Decoder, sinks Sinks, session SessionConfig, restart RestartConfig) *Supervisor {
	return &Supervisor{
		opener:     opener,
		newDecoder: newDecoder,
		sinks:      sinks,
		session:    session,
		restart:    restart,
		logger:     observability.Component("supervisor").With().Str("source", opener.Name()).Logger(),
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Run blocks until ctx is cancelled (returns nil) or, without restart, until
// the first session ends with an error.
func (s *Supervisor) Run(ctx context.Context) error {
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}

		sess := NewSession(s.session, s.opener, s.newDecoder(), s.sinks)
		err := sess.Open(ctx)
		if err == nil {
			s.setCurrent(sess)
			err = sess.Run(ctx)
			if cerr := sess.Close(); cerr != nil {
				s.logger.Debug().Err(cerr).Msg("supervisor.close_failed")
			}
			s.clearCurrent(sess, err)
			if err == nil {
				return nil
			}
			// A port that opens and dies before delivering anything counts
			// as another consecutive failure.
			if sess.Stats().BytesRead > 0 {
				failures = 0
			}
		} else {
			s.noteError(err)
			s.logger.Warn().Err(err).Msg("supervisor.open_failed")
		}

		if !s.restart.Enabled {
			return err
		}
		failures++
		if s.restart.MaxAttempts > 0 && failures > s.restart.MaxAttempts {
			s.logger.Error().Err(err).Int("attempts", failures-1).Msg("supervisor.giving_up")
			return err
		}
		delay := NextBackoffDelay(s.restart.Backoff, failures, s.rng)
		s.logger.Info().Int("attempt", failures).Dur("delay", delay).Msg("supervisor.restart")
		if sleepCtx(ctx, delay) != nil {
			return nil
		}
		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
	}
}

func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Source:    s.opener.Name(),
		Restarts:  s.restarts,
		Stats:     s.last,
		LastError: s.lastErr,
	}
	if s.current != nil {
		st.SessionID = s.current.ID()
		st.Connected = true
		st.Stats = s.current.Stats()
	}
	return st
}

func (s *Supervisor) setCurrent(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = sess
}

func (s *Supervisor) clearCurrent(sess *Session, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == sess {
		s.current = nil
	}
	s.last = sess.Stats()
	if err != nil {
		s.lastErr = err.Error()
	}
}

func (s *Supervisor) noteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err.Error()
}
