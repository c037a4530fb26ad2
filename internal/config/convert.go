package config

import (
	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/server"
	"github.com/danmuck/gesk/internal/sink"
)

func (c Config) RestartPolicy() ingest.RestartConfig {
	return ingest.RestartConfig{
		Enabled:     c.Restart.Enabled,
		MaxAttempts: c.Restart.MaxAttempts,
		Backoff: ingest.BackoffConfig{
			InitialDelay: c.Restart.InitialDelay.Std(),
			Multiplier:   c.Restart.Multiplier,
			MaxDelay:     c.Restart.MaxDelay.Std(),
			Jitter:       c.Restart.Jitter,
		},
	}
}

// FileSink returns the file sink settings and whether the sink is enabled.
func (c Config) FileSink() (sink.FileConfig, bool) {
	format, _ := sink.ParseFileFormat(c.Output.Format)
	return sink.FileConfig{
		Dir:      c.Output.Dir,
		Name:     c.Output.Name,
		Format:   format,
		Compress: c.Output.Compress,
	}, c.Output.Name != ""
}

func (c Config) ColorMode() sink.ColorMode {
	mode, _ := sink.ParseColorMode(c.Display.Color)
	return mode
}

func (c Config) MQTTSink() sink.MQTTConfig {
	enc, _ := sink.ParseEncoding(c.MQTT.Encoding)
	return sink.MQTTConfig{
		Broker:      c.MQTT.Broker,
		ClientID:    c.MQTT.ClientID,
		Username:    c.MQTT.Username,
		Password:    c.MQTT.Password,
		TopicPrefix: c.MQTT.TopicPrefix,
		QoS:         c.MQTT.QoS,
		Retain:      c.MQTT.Retain,
		Encoding:    enc,
	}
}

func (c Config) NATSSink() sink.NATSConfig {
	enc, _ := sink.ParseEncoding(c.NATS.Encoding)
	return sink.NATSConfig{
		URL:           c.NATS.URL,
		SubjectPrefix: c.NATS.SubjectPrefix,
		Encoding:      enc,
	}
}

func (c Config) ServerConfig(version string) server.Config {
	return server.Config{
		Addr:        c.HTTP.Addr,
		CORSOrigins: c.HTTP.CORSOrigins,
		Version:     version,
	}
}
