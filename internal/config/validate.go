package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/gesk/internal/protocol/frame"
	"github.com/danmuck/gesk/internal/sink"
)

// Validate reports every problem at once, joined.
func (c Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	switch c.Mode {
	case ModeTLog, ModeSLog:
	default:
		bad("mode %q (want tlog or slog)", c.Mode)
	}
	if strings.TrimSpace(c.Serial.Port) == "" && strings.TrimSpace(c.Serial.Replay) == "" {
		bad("serial.port is required unless serial.replay is set")
	}
	if c.Serial.Baud <= 0 {
		bad("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeout <= 0 {
		bad("serial.read_timeout must be positive")
	}
	if c.Frame.StartMarker == c.Frame.Kind {
		bad("frame.start_marker and frame.kind must differ")
	}
	if c.Resync.Timeout <= 0 {
		bad("resync.timeout must be positive")
	}
	if c.Resync.MaxStray < 0 {
		bad("resync.max_stray must not be negative")
	}
	if c.Lines.MaxLine < 0 {
		bad("lines.max_line must not be negative")
	}
	if _, err := sink.ParseFileFormat(c.Output.Format); err != nil {
		bad("output.format: %v", err)
	}
	if name := c.Output.Name; name != "" && strings.ContainsAny(name, `/\`) {
		bad("output.name %q must not contain path separators", name)
	}
	if _, err := sink.ParseColorMode(c.Display.Color); err != nil {
		bad("display.color: %v", err)
	}
	if c.Restart.Enabled {
		if c.Restart.MaxAttempts < 0 {
			bad("restart.max_attempts must not be negative")
		}
		if c.Restart.Multiplier != 0 && c.Restart.Multiplier < 1 {
			bad("restart.multiplier must be >= 1")
		}
	}
	if c.HTTP.TailSize < 0 {
		bad("http.tail_size must not be negative")
	}
	if c.MQTT.Enabled {
		if strings.TrimSpace(c.MQTT.Broker) == "" {
			bad("mqtt.broker is required when mqtt is enabled")
		}
		if c.MQTT.QoS > 2 {
			bad("mqtt.qos must be 0, 1 or 2")
		}
		if _, err := sink.ParseEncoding(c.MQTT.Encoding); err != nil {
			bad("mqtt.encoding: %v", err)
		}
	}
	if c.NATS.Enabled {
		if strings.TrimSpace(c.NATS.URL) == "" {
			bad("nats.url is required when nats is enabled")
		}
		if _, err := sink.ParseEncoding(c.NATS.Encoding); err != nil {
			bad("nats.encoding: %v", err)
		}
	}
	return errors.Join(errs...)
}

// FrameLayout is the wire layout the frame section describes.
func (c Config) FrameLayout() frame.Layout {
	return frame.Layout{StartMarker: c.Frame.StartMarker, Kind: c.Frame.Kind}
}
