package main

import (
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/danmuck/gesk/internal/config"
)

type options struct {
	configPath  string
	mode        string
	port        string
	baud        int
	timeout     time.Duration
	readTimeout time.Duration
	output      string
	outputDir   string
	format      string
	compress    bool
	color       string
	filter      string
	httpAddr    string
	replay      string
	noRestart   bool
	mqttBroker  string
	natsURL     string
	showVersion bool
}

func newFlagSet(out io.Writer) (*flag.FlagSet, *options) {
	o := &options{}
	fs := flag.NewFlagSet("gesk", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: gesk [flags] [port]\n\n")
		fs.PrintDefaults()
	}
	fs.StringVar(&o.configPath, "config", "", "config file (.toml, .yaml or .yml)")
	fs.StringVar(&o.mode, "mode", "", "tlog (framed) or slog (newline lines)")
	fs.StringVar(&o.port, "port", "", "serial device, e.g. /dev/ttyUSB0")
	fs.IntVar(&o.baud, "baud", 0, "baud rate (default 115200)")
	fs.DurationVar(&o.timeout, "timeout", 0, "drop a stalled partial frame after this long (default 5s)")
	fs.DurationVar(&o.readTimeout, "read-timeout", 0, "serial read timeout per poll (default 100ms)")
	fs.StringVar(&o.output, "output", "", "also append records to <output-dir>/<name>.txt")
	fs.StringVar(&o.outputDir, "output-dir", "", "directory for -output (default tlog)")
	fs.StringVar(&o.format, "format", "", "file format: text or jsonl")
	fs.BoolVar(&o.compress, "compress", false, "zstd-compress the output file")
	fs.StringVar(&o.color, "color", "", "console color: auto, always or never")
	fs.StringVar(&o.filter, "filter", "", `only show records matching an expression, e.g. 'severity != "Debug"'`)
	fs.StringVar(&o.httpAddr, "http", "", "serve status, metrics and live tail on this address, e.g. :9200")
	fs.StringVar(&o.replay, "replay", "", "decode a capture file (- for stdin) instead of a device")
	fs.BoolVar(&o.noRestart, "no-restart", false, "exit when the device disconnects")
	fs.StringVar(&o.mqttBroker, "mqtt-broker", "", "forward records to this MQTT broker, e.g. tcp://localhost:1883")
	fs.StringVar(&o.natsURL, "nats-url", "", "forward records to this NATS server")
	fs.BoolVar(&o.showVersion, "version", false, "print version and exit")
	return fs, o
}

// loadConfig resolves defaults, then the config file, then GESK_* variables,
// then flags that were set explicitly. A positional argument is the port.
func loadConfig(fs *flag.FlagSet, o *options) (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		loaded, err := config.Load(o.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = loaded
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return config.Config{}, err
	}
	applyFlags(fs, o, &cfg)
	if fs.NArg() > 0 {
		cfg.Serial.Port = fs.Arg(0)
	}
	if cfg.Serial.Replay != "" {
		cfg.Restart.Enabled = false
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func applyFlags(fs *flag.FlagSet, o *options, cfg *config.Config) {
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = config.Mode(o.mode)
		case "port":
			cfg.Serial.Port = o.port
		case "baud":
			cfg.Serial.Baud = o.baud
		case "timeout":
			cfg.Resync.Timeout = config.Duration(o.timeout)
		case "read-timeout":
			cfg.Serial.ReadTimeout = config.Duration(o.readTimeout)
		case "output":
			cfg.Output.Name = o.output
		case "output-dir":
			cfg.Output.Dir = o.outputDir
		case "format":
			cfg.Output.Format = o.format
		case "compress":
			cfg.Output.Compress = o.compress
		case "color":
			cfg.Display.Color = o.color
		case "filter":
			cfg.Filter = o.filter
		case "http":
			cfg.HTTP.Addr = o.httpAddr
		case "replay":
			cfg.Serial.Replay = o.replay
		case "no-restart":
			cfg.Restart.Enabled = !o.noRestart
		case "mqtt-broker":
			cfg.MQTT.Broker = o.mqttBroker
			cfg.MQTT.Enabled = o.mqttBroker != ""
		case "nats-url":
			cfg.NATS.URL = o.natsURL
			cfg.NATS.Enabled = o.natsURL != ""
		}
	})
}
