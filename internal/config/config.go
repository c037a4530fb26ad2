// Package config loads gesk settings. Precedence, lowest first: Default(),
// the config file (TOML, or YAML by extension), GESK_* environment variables,
// then command-line flags applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeTLog Mode = "tlog"
	ModeSLog Mode = "slog"
)

var ErrInvalid = errors.New("config: invalid")

// Duration reads and writes as a Go duration string ("250ms", "5s").
type Duration time.Duration

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type Config struct {
	Mode    Mode          `toml:"mode" yaml:"mode"`
	Filter  string        `toml:"filter" yaml:"filter"`
	Serial  SerialConfig  `toml:"serial" yaml:"serial"`
	Frame   FrameConfig   `toml:"frame" yaml:"frame"`
	Resync  ResyncConfig  `toml:"resync" yaml:"resync"`
	Lines   LinesConfig   `toml:"lines" yaml:"lines"`
	Output  OutputConfig  `toml:"output" yaml:"output"`
	Display DisplayConfig `toml:"display" yaml:"display"`
	Restart RestartConfig `toml:"restart" yaml:"restart"`
	HTTP    HTTPConfig    `toml:"http" yaml:"http"`
	MQTT    MQTTConfig    `toml:"mqtt" yaml:"mqtt"`
	NATS    NATSConfig    `toml:"nats" yaml:"nats"`
}

type SerialConfig struct {
	Port        string   `toml:"port" yaml:"port"`
	Baud        int      `toml:"baud" yaml:"baud"`
	ReadTimeout Duration `toml:"read_timeout" yaml:"read_timeout"`
	// Replay reads a capture file ("-" for stdin) instead of a device.
	Replay string `toml:"replay" yaml:"replay"`
}

type FrameConfig struct {
	StartMarker uint8 `toml:"start_marker" yaml:"start_marker"`
	Kind        uint8 `toml:"kind" yaml:"kind"`
}

type ResyncConfig struct {
	Timeout  Duration `toml:"timeout" yaml:"timeout"`
	MaxStray int      `toml:"max_stray" yaml:"max_stray"`
}

type LinesConfig struct {
	MaxLine int `toml:"max_line" yaml:"max_line"`
}

type OutputConfig struct {
	Dir string `toml:"dir" yaml:"dir"`
	// Name enables the file sink; empty means display only.
	Name     string `toml:"name" yaml:"name"`
	Format   string `toml:"format" yaml:"format"`
	Compress bool   `toml:"compress" yaml:"compress"`
}

type DisplayConfig struct {
	Color string `toml:"color" yaml:"color"`
}

type RestartConfig struct {
	Enabled      bool     `toml:"enabled" yaml:"enabled"`
	MaxAttempts  int      `toml:"max_attempts" yaml:"max_attempts"`
	InitialDelay Duration `toml:"initial_delay" yaml:"initial_delay"`
	Multiplier   float64  `toml:"multiplier" yaml:"multiplier"`
	MaxDelay     Duration `toml:"max_delay" yaml:"max_delay"`
	Jitter       bool     `toml:"jitter" yaml:"jitter"`
}

type HTTPConfig struct {
	// Addr enables the status server, e.g. ":9200". Empty disables it.
	Addr        string   `toml:"addr" yaml:"addr"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	TailSize    int      `toml:"tail_size" yaml:"tail_size"`
}

type MQTTConfig struct {
	Enabled     bool   `toml:"enabled" yaml:"enabled"`
	Broker      string `toml:"broker" yaml:"broker"`
	ClientID    string `toml:"client_id" yaml:"client_id"`
	Username    string `toml:"username" yaml:"username"`
	Password    string `toml:"password" yaml:"password"`
	TopicPrefix string `toml:"topic_prefix" yaml:"topic_prefix"`
	QoS         uint8  `toml:"qos" yaml:"qos"`
	Retain      bool   `toml:"retain" yaml:"retain"`
	Encoding    string `toml:"encoding" yaml:"encoding"`
}

type NATSConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	URL           string `toml:"url" yaml:"url"`
	SubjectPrefix string `toml:"subject_prefix" yaml:"subject_prefix"`
	Encoding      string `toml:"encoding" yaml:"encoding"`
}

func Default() Config {
	return Config{
		Mode: ModeTLog,
		Serial: SerialConfig{
			Baud:        115200,
			ReadTimeout: Duration(100 * time.Millisecond),
		},
		Frame: FrameConfig{StartMarker: 0x1A, Kind: 0x01},
		Resync: ResyncConfig{
			Timeout:  Duration(5 * time.Second),
			MaxStray: 64 * 1024,
		},
		Lines:   LinesConfig{MaxLine: 16 * 1024},
		Output:  OutputConfig{Dir: "tlog", Format: "text"},
		Display: DisplayConfig{Color: "auto"},
		Restart: RestartConfig{
			Enabled:      true,
			InitialDelay: Duration(100 * time.Millisecond),
			Multiplier:   2.0,
			MaxDelay:     Duration(5 * time.Second),
			Jitter:       true,
		},
		HTTP: HTTPConfig{TailSize: 256},
		MQTT: MQTTConfig{
			ClientID:    "gesk",
			TopicPrefix: "gesk/logs",
			Encoding:    "json",
		},
		NATS: NATSConfig{
			URL:           "nats://127.0.0.1:4222",
			SubjectPrefix: "gesk.logs",
			Encoding:      "json",
		},
	}
}

// Load reads path over Default(). Unknown keys are errors.
func Load(path string) (Config, error) {
	cfg := Default()
	if err := loadFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	if isYAML(path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("config load failed (%s): %w", path, err)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		return nil
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("%w: unknown keys in %s: %s", ErrInvalid, path, strings.Join(keys, ", "))
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
