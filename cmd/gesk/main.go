package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/gesk/internal/logging"
	"github.com/rs/zerolog/log"
)

var version = "dev"

func main() {
	logging.ConfigureRuntime()
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "gesk: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs, opts := newFlagSet(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Println("gesk", version)
		return nil
	}
	cfg, err := loadConfig(fs, opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("gesk.close_failed")
		}
	}()

	log.Info().
		Str("mode", string(cfg.Mode)).
		Str("source", a.opener.Name()).
		Int("baud", cfg.Serial.Baud).
		Dur("timeout", cfg.Resync.Timeout.Std()).
		Msg("gesk.start")
	return a.Run(ctx)
}
