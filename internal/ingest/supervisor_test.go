package ingest

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/gesk/internal/protocol/frame"
	"github.com/danmuck/gesk/internal/protocol/stream"
	"github.com/danmuck/gesk/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceOpener runs one step function per Open call.
type sequenceOpener struct {
	mu    sync.Mutex
	opens int
	steps []func() (Source, error)
}

func (o *sequenceOpener) Open(context.Context) (Source, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	i := o.opens
	o.opens++
	if i >= len(o.steps) {
		return nil, errors.New("no such device")
	}
	return o.steps[i]()
}

func (o *sequenceOpener) Name() string { return "/dev/ttyUSB0" }

func (o *sequenceOpener) Opens() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

func newTestDecoder() stream.Decoder {
	return stream.NewReassembler()
}

func noDelayRestart() RestartConfig {
	return RestartConfig{Enabled: true}
}

func TestSupervisorRestartsAfterDisconnect(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frameBytes := encode(t, frame.Record{Severity: frame.SeverityWarning, Payload: "back again"})
	opener := &sequenceOpener{steps: []func() (Source, error){
		func() (Source, error) { return nil, errors.New("no such device") },
		func() (Source, error) { return &scriptedSource{steps: []step{{data: frameBytes}}}, nil },
		func() (Source, error) { return &scriptedSource{steps: []step{{data: frameBytes}}}, nil },
		func() (Source, error) {
			cancel()
			return nil, errors.New("no such device")
		},
	}}
	display := &captureSink{name: "console"}
	sup := NewSupervisor(opener, newTestDecoder, Sinks{Display: display}, SessionConfig{}, noDelayRestart())

	require.NoError(t, sup.Run(ctx))
	assert.Equal(t, 4, opener.Opens())
	assert.Len(t, display.Entries(), 2)

	st := sup.Status()
	assert.False(t, st.Connected)
	assert.Equal(t, 3, st.Restarts)
	assert.Equal(t, "no such device", st.LastError)
	assert.Equal(t, uint64(1), st.Stats.Records)
}

func TestSupervisorWithoutRestartReturnsSessionError(t *testing.T) {
	testlog.Start(t)
	opener := &sequenceOpener{steps: []func() (Source, error){
		func() (Source, error) { return &scriptedSource{}, nil },
	}}
	sup := NewSupervisor(opener, newTestDecoder, Sinks{Display: &captureSink{name: "console"}}, SessionConfig{}, RestartConfig{})

	err := sup.Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.Equal(t, 1, opener.Opens())
}

func TestSupervisorGivesUpAfterMaxAttempts(t *testing.T) {
	testlog.Start(t)
	opener := &sequenceOpener{}
	restart := noDelayRestart()
	restart.MaxAttempts = 2
	sup := NewSupervisor(opener, newTestDecoder, Sinks{Display: &captureSink{name: "console"}}, SessionConfig{}, restart)

	err := sup.Run(context.Background())
	assert.EqualError(t, err, "no such device")
	assert.Equal(t, 3, opener.Opens())
}

func TestSupervisorCountsSilentSessionsTowardMaxAttempts(t *testing.T) {
	testlog.Start(t)
	opener := &sequenceOpener{}
	for i := 0; i < 10; i++ {
		opener.steps = append(opener.steps, func() (Source, error) {
			return &scriptedSource{steps: []step{{err: errors.New("device reset")}}}, nil
		})
	}
	restart := noDelayRestart()
	restart.MaxAttempts = 2
	sup := NewSupervisor(opener, newTestDecoder, Sinks{Display: &captureSink{name: "console"}}, SessionConfig{}, restart)

	err := sup.Run(context.Background())
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, 3, opener.Opens())
}

func TestSupervisorProductiveSessionResetsFailures(t *testing.T) {
	testlog.Start(t)
	frameBytes := encode(t, frame.Record{Severity: frame.SeverityDebug, Payload: "alive"})
	silent := func() (Source, error) { return &scriptedSource{}, nil }
	opener := &sequenceOpener{steps: []func() (Source, error){
		silent,
		silent,
		func() (Source, error) { return &scriptedSource{steps: []step{{data: frameBytes}}}, nil },
		silent,
		silent,
	}}
	restart := noDelayRestart()
	restart.MaxAttempts = 2
	display := &captureSink{name: "console"}
	sup := NewSupervisor(opener, newTestDecoder, Sinks{Display: display}, SessionConfig{}, restart)

	err := sup.Run(context.Background())
	assert.ErrorIs(t, err, ErrSourceClosed)
	assert.Equal(t, 5, opener.Opens())
	assert.Len(t, display.Entries(), 1)
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	opener := &sequenceOpener{}
	restart := noDelayRestart()
	restart.Backoff = BackoffConfig{InitialDelay: time.Hour}
	sup := NewSupervisor(opener, newTestDecoder, Sinks{Display: &captureSink{name: "console"}}, SessionConfig{}, restart)

	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestNextBackoffDelayDeterministicNoJitter(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
	}
	assert.Equal(t, time.Duration(0), NextBackoffDelay(cfg, 0, nil))
	assert.Equal(t, 250*time.Millisecond, NextBackoffDelay(cfg, 1, nil))
	assert.Equal(t, 500*time.Millisecond, NextBackoffDelay(cfg, 2, nil))
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 3, nil))
	assert.Equal(t, 5*time.Second, NextBackoffDelay(cfg, 6, nil))
}

func TestNextBackoffDelayJitterRange(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{
		InitialDelay: 250 * time.Millisecond,
		Multiplier:   2.0,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
	}
	rng := rand.New(rand.NewSource(7))
	for attempt := 1; attempt <= 8; attempt++ {
		base := NextBackoffDelay(BackoffConfig{InitialDelay: cfg.InitialDelay, Multiplier: cfg.Multiplier, MaxDelay: cfg.MaxDelay}, attempt, nil)
		got := NextBackoffDelay(cfg, attempt, rng)
		assert.GreaterOrEqual(t, got, base/2, "attempt %d", attempt)
		assert.Less(t, got, base*3/2, "attempt %d", attempt)
	}
}

func TestNextBackoffDelayMultiplierFloor(t *testing.T) {
	testlog.Start(t)
	cfg := BackoffConfig{InitialDelay: time.Second, Multiplier: 0.1}
	assert.Equal(t, time.Second, NextBackoffDelay(cfg, 4, nil))
}
