package ingest

import (
	"time"

	"github.com/danmuck/gesk/internal/protocol/stream"
)

// BackoffConfig defines restart backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// RestartConfig controls what the supervisor does after a session ends.
type RestartConfig struct {
	Enabled bool
	// MaxAttempts caps consecutive failures: failed opens, and sessions that
	// ended before reading a byte. Zero means unlimited.
	MaxAttempts int
	Backoff     BackoffConfig
}

// SessionConfig is what one session needs beyond its source and sinks.
type SessionConfig struct {
	ReadBufferSize int
	Clock          stream.Clock
	Filter         Filter
	// OnDecodeError is the decode-error side channel. It runs on the session
	// goroutine and must not block.
	OnDecodeError func(DecodeError)
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		ReadBufferSize: 1024,
		Clock:          stream.SystemClock,
	}
}

func DefaultRestartConfig() RestartConfig {
	return RestartConfig{
		Enabled: true,
		Backoff: BackoffConfig{
			InitialDelay: 100 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     5 * time.Second,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values.
func (c SessionConfig) WithDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.ReadBufferSize <= 0 {
		c.ReadBufferSize = d.ReadBufferSize
	}
	if c.Clock == nil {
		c.Clock = d.Clock
	}
	return c
}
