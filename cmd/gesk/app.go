package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/danmuck/gesk/internal/config"
	"github.com/danmuck/gesk/internal/filter"
	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/protocol/stream"
	"github.com/danmuck/gesk/internal/server"
	"github.com/danmuck/gesk/internal/sink"
	"github.com/danmuck/gesk/internal/transport/replay"
	serialport "github.com/danmuck/gesk/internal/transport/serial"
	"github.com/rs/zerolog/log"
)

// app is one configured ingestion pipeline plus its optional status server.
type app struct {
	cfg        config.Config
	opener     ingest.Opener
	sinks      ingest.Sinks
	tail       *server.Tail
	supervisor *ingest.Supervisor
	server     *server.Server
}

func newApp(cfg config.Config, display io.Writer) (*app, error) {
	a := &app{cfg: cfg, opener: newOpener(cfg)}

	sessionCfg := ingest.DefaultSessionConfig()
	if cfg.Filter != "" {
		f, err := filter.Compile(cfg.Filter)
		if err != nil {
			return nil, err
		}
		sessionCfg.Filter = f
	}

	if cfg.HTTP.Addr != "" {
		a.tail = server.NewTail(cfg.HTTP.TailSize)
	}
	sinks, err := buildSinks(cfg, display, a.tail)
	if err != nil {
		return nil, err
	}
	a.sinks = sinks

	a.supervisor = ingest.NewSupervisor(a.opener, newDecoderFactory(cfg), sinks, sessionCfg, cfg.RestartPolicy())
	if a.tail != nil {
		a.server = server.New(cfg.ServerConfig(version), a.supervisor, a.tail)
	}
	return a, nil
}

// Run blocks until ctx is cancelled or ingestion stops for good. The end of
// a replay capture is a clean exit. A status server that fails, for example
// on a busy port, stops ingestion and its error is returned.
func (a *app) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	serverErr := make(chan error, 1)
	if a.server != nil {
		go func() {
			serverErr <- a.server.Serve(ctx)
		}()
	}
	ingestErr := make(chan error, 1)
	go func() {
		ingestErr <- a.supervisor.Run(ctx)
	}()

	select {
	case err := <-ingestErr:
		err = a.ingestResult(err)
		cancel()
		if a.server != nil {
			if serr := <-serverErr; serr != nil && err == nil {
				err = fmt.Errorf("status server: %w", serr)
			}
		}
		return err
	case serr := <-serverErr:
		cancel()
		err := a.ingestResult(<-ingestErr)
		if serr != nil {
			log.Error().Err(serr).Str("addr", a.cfg.HTTP.Addr).Msg("gesk.server_failed")
			return fmt.Errorf("status server: %w", serr)
		}
		return err
	}
}

func (a *app) ingestResult(err error) error {
	if a.cfg.Serial.Replay != "" && errors.Is(err, ingest.ErrSourceClosed) {
		log.Info().Interface("stats", a.supervisor.Status().Stats).Msg("gesk.replay_done")
		return nil
	}
	return err
}

func (a *app) Close() error {
	return a.sinks.Close()
}

func newOpener(cfg config.Config) ingest.Opener {
	if cfg.Serial.Replay != "" {
		return replay.NewOpener(cfg.Serial.Replay)
	}
	return serialport.NewOpener(cfg.Serial.Port, cfg.Serial.Baud, cfg.Serial.ReadTimeout.Std())
}

// newDecoderFactory gives every session a fresh decoder so bytes from a dead
// connection never prefix the next one.
func newDecoderFactory(cfg config.Config) func() stream.Decoder {
	if cfg.Mode == config.ModeSLog {
		maxLine := cfg.Lines.MaxLine
		return func() stream.Decoder {
			return stream.NewLineSplitter(maxLine)
		}
	}
	opts := []stream.Option{
		stream.WithLayout(cfg.FrameLayout()),
		stream.WithTimeout(cfg.Resync.Timeout.Std()),
		stream.WithMaxStray(cfg.Resync.MaxStray),
	}
	return func() stream.Decoder {
		return stream.NewReassembler(opts...)
	}
}

func buildSinks(cfg config.Config, display io.Writer, tail *server.Tail) (ingest.Sinks, error) {
	var sinks ingest.Sinks
	if f, ok := display.(*os.File); ok {
		sinks.Display = sink.NewConsole(f, cfg.ColorMode())
	} else {
		sinks.Display = sink.NewConsoleWriter(display, cfg.ColorMode() == sink.ColorAlways)
	}

	if fileCfg, enabled := cfg.FileSink(); enabled {
		fs, err := sink.NewFile(fileCfg)
		if err != nil {
			return ingest.Sinks{}, err
		}
		sinks.Persist = fs
		log.Info().Str("path", fs.Path()).Msg("gesk.file_output")
	}

	if tail != nil {
		sinks.Forward = append(sinks.Forward, tail)
	}
	if cfg.MQTT.Enabled {
		m, err := sink.NewMQTT(cfg.MQTTSink())
		if err != nil {
			_ = sinks.Close()
			return ingest.Sinks{}, err
		}
		sinks.Forward = append(sinks.Forward, m)
	}
	if cfg.NATS.Enabled {
		n, err := sink.NewNATS(cfg.NATSSink())
		if err != nil {
			_ = sinks.Close()
			return ingest.Sinks{}, err
		}
		sinks.Forward = append(sinks.Forward, n)
	}
	return sinks, nil
}
