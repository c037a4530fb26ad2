package sink

import (
	"fmt"
	"time"

	"github.com/danmuck/gesk/internal/ingest"
	"github.com/danmuck/gesk/internal/observability"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type NATSConfig struct {
	URL           string
	Name          string
	SubjectPrefix string
	Encoding      Encoding
}

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATS forwards entries to <prefix>.<source>.<severity>.
type NATS struct {
	cfg    NATSConfig
	conn   publisher
	logger zerolog.Logger
}

func NewNATS(cfg NATSConfig) (*NATS, error) {
	if cfg.URL == "" {
		cfg.URL = nats.DefaultURL
	}
	if cfg.Name == "" {
		cfg.Name = "gesk"
	}
	logger := observability.Component("sink.nats").With().Str("url", cfg.URL).Logger()
	conn, err := nats.Connect(cfg.URL,
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("nats.disconnected")
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			logger.Info().Msg("nats.reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("sink: nats connect %s: %w", cfg.URL, err)
	}
	logger.Info().Msg("nats.connected")
	return newNATSWithConn(cfg, conn, logger), nil
}

func newNATSWithConn(cfg NATSConfig, conn publisher, logger zerolog.Logger) *NATS {
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "gesk.logs"
	}
	if cfg.Encoding == "" {
		cfg.Encoding = EncodingJSON
	}
	return &NATS{cfg: cfg, conn: conn, logger: logger}
}

func (n *NATS) Name() string {
	return "nats"
}

func (n *NATS) Subject(e ingest.Entry) string {
	return n.cfg.SubjectPrefix + "." + topicSegment(e.Source) + "." + routeToken(e)
}

func (n *NATS) Write(e ingest.Entry) error {
	data, err := n.cfg.Encoding.Marshal(e)
	if err != nil {
		return err
	}
	subject := n.Subject(e)
	if err := n.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("sink: nats publish %s: %w", subject, err)
	}
	return nil
}

// Close drains pending publishes before disconnecting.
func (n *NATS) Close() error {
	return n.conn.Drain()
}
