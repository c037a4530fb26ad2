package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const EnvPrefix = "GESK_"

// envOverrides maps GESK_* variables. Nil means the variable is unset.
type envOverrides struct {
	Mode        *string        `env:"MODE"`
	Filter      *string        `env:"FILTER"`
	Port        *string        `env:"PORT"`
	Baud        *int           `env:"BAUD"`
	ReadTimeout *time.Duration `env:"READ_TIMEOUT"`
	Replay      *string        `env:"REPLAY"`
	Timeout     *time.Duration `env:"TIMEOUT"`
	OutputDir   *string        `env:"OUTPUT_DIR"`
	Output      *string        `env:"OUTPUT"`
	Format      *string        `env:"FORMAT"`
	Compress    *bool          `env:"COMPRESS"`
	Color       *string        `env:"COLOR"`
	Restart     *bool          `env:"RESTART"`
	HTTPAddr    *string        `env:"HTTP_ADDR"`
	MQTTBroker  *string        `env:"MQTT_BROKER"`
	MQTTUser    *string        `env:"MQTT_USERNAME"`
	MQTTPass    *string        `env:"MQTT_PASSWORD"`
	NATSURL     *string        `env:"NATS_URL"`
}

// ApplyEnv overlays GESK_* variables onto cfg. Setting a broker or NATS URL
// also enables that forwarder.
func ApplyEnv(cfg *Config) error {
	return applyEnv(cfg, env.Options{Prefix: EnvPrefix})
}

func applyEnv(cfg *Config, opts env.Options) error {
	var raw envOverrides
	if err := env.ParseWithOptions(&raw, opts); err != nil {
		return fmt.Errorf("config env: %w", err)
	}
	setString(&cfg.Filter, raw.Filter)
	if raw.Mode != nil {
		cfg.Mode = Mode(*raw.Mode)
	}
	setString(&cfg.Serial.Port, raw.Port)
	if raw.Baud != nil {
		cfg.Serial.Baud = *raw.Baud
	}
	if raw.ReadTimeout != nil {
		cfg.Serial.ReadTimeout = Duration(*raw.ReadTimeout)
	}
	setString(&cfg.Serial.Replay, raw.Replay)
	if raw.Timeout != nil {
		cfg.Resync.Timeout = Duration(*raw.Timeout)
	}
	setString(&cfg.Output.Dir, raw.OutputDir)
	setString(&cfg.Output.Name, raw.Output)
	setString(&cfg.Output.Format, raw.Format)
	if raw.Compress != nil {
		cfg.Output.Compress = *raw.Compress
	}
	setString(&cfg.Display.Color, raw.Color)
	if raw.Restart != nil {
		cfg.Restart.Enabled = *raw.Restart
	}
	setString(&cfg.HTTP.Addr, raw.HTTPAddr)
	if raw.MQTTBroker != nil {
		cfg.MQTT.Broker = *raw.MQTTBroker
		cfg.MQTT.Enabled = *raw.MQTTBroker != ""
	}
	setString(&cfg.MQTT.Username, raw.MQTTUser)
	setString(&cfg.MQTT.Password, raw.MQTTPass)
	if raw.NATSURL != nil {
		cfg.NATS.URL = *raw.NATSURL
		cfg.NATS.Enabled = *raw.NATSURL != ""
	}
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
