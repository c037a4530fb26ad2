package sink

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/observability"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

var (
	ErrMQTTTimeout      = errors.New("sink: mqtt timeout")
	ErrMQTTNotConnected = errors.New("sink: mqtt not connected")
)

type MQTTConfig struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	Encoding       Encoding
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (c MQTTConfig) withDefaults() MQTTConfig {
	if c.ClientID == "" {
		c.ClientID = "gesk"
	}
	if c.TopicPrefix == "" {
		c.TopicPrefix = "gesk/logs"
	}
	if c.Encoding == "" {
		c.Encoding = EncodingJSON
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 2 * time.Second
	}
	return c
}

// MQTT forwards entries to <prefix>/<source>/<severity>.
type MQTT struct {
	cfg       MQTTConfig
	client    mqtt.Client
	logger    zerolog.Logger
	published atomic.Uint64
}

// NewMQTT connects to the broker. The client reconnects on its own after
// that; publishes while disconnected fail and are counted as sink errors.
func NewMQTT(cfg MQTTConfig) (*MQTT, error) {
	cfg = cfg.withDefaults()
	logger := observability.Component("sink.mqtt").With().Str("broker", cfg.Broker).Logger()

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.OnConnect = func(mqtt.Client) {
		logger.Info().Msg("mqtt.connected")
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt.connection_lost")
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		client.Disconnect(0)
		return nil, fmt.Errorf("%w: connect %s", ErrMQTTTimeout, cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("sink: mqtt connect %s: %w", cfg.Broker, err)
	}
	return newMQTTWithClient(cfg, client, logger), nil
}

func newMQTTWithClient(cfg MQTTConfig, client mqtt.Client, logger zerolog.Logger) *MQTT {
	return &MQTT{cfg: cfg.withDefaults(), client: client, logger: logger}
}

func (m *MQTT) Name() string {
	return "mqtt"
}

func (m *MQTT) Topic(e ingest.Entry) string {
	return m.cfg.TopicPrefix + "/" + topicSegment(e.Source) + "/" + routeToken(e)
}

func (m *MQTT) Write(e ingest.Entry) error {
	if !m.client.IsConnected() {
		return ErrMQTTNotConnected
	}
	payload, err := m.cfg.Encoding.Marshal(e)
	if err != nil {
		return err
	}
	topic := m.Topic(e)
	token := m.client.Publish(topic, m.cfg.QoS, m.cfg.Retain, payload)
	if !token.WaitTimeout(m.cfg.PublishTimeout) {
		return fmt.Errorf("%w: publish %s", ErrMQTTTimeout, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("sink: mqtt publish %s: %w", topic, err)
	}
	m.published.Add(1)
	return nil
}

func (m *MQTT) Published() uint64 {
	return m.published.Load()
}

func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	m.logger.Info().Uint64("published", m.Published()).Msg("mqtt.disconnected")
	return nil
}

// topicSegment turns a device path into one topic level: /dev/ttyUSB0 -> ttyUSB0.
func topicSegment(source string) string {
	s := source
	if i := strings.LastIndexAny(s, `/\`); i >= 0 {
		s = s[i+1:]
	}
	s = strings.NewReplacer("+", "_", "#", "_", ".", "_", " ", "_").Replace(s)
	if s == "" {
		return "unknown"
	}
	return s
}
