package notify

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSSink publishes observability events as JSON to hohma.sync.<kind>
// subjects so fleet-wide decode and reconnect failures can be aggregated.
type NATSSink struct {
	nc            *nats.Conn
	subjectPrefix string
}

// NATSSinkConfig holds connection settings for the NATS sink.
type NATSSinkConfig struct {
	URL           string
	SubjectPrefix string
	MaxReconnects int
}

// DefaultNATSSinkConfig returns settings suitable for a local NATS server.
func DefaultNATSSinkConfig() NATSSinkConfig {
	return NATSSinkConfig{
		URL:           nats.DefaultURL,
		SubjectPrefix: "hohma.sync",
		MaxReconnects: -1,
	}
}

// NewNATSSink connects to NATS and returns a sink publishing to it.
func NewNATSSink(cfg NATSSinkConfig) (*NATSSink, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("notify sink NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("notify sink NATS reconnected")
		}),
	}
	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, subjectPrefix: cfg.SubjectPrefix}, nil
}

func (s *NATSSink) Report(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal observability event")
		return
	}
	subject := fmt.Sprintf("%s.%s", s.subjectPrefix, ev.Kind)
	if err := s.nc.Publish(subject, data); err != nil {
		log.Error().Err(err).Str("subject", subject).Msg("failed to publish observability event")
	}
}

// Close drains the underlying connection.
func (s *NATSSink) Close() {
	if err := s.nc.Drain(); err != nil {
		log.Error().Err(err).Msg("failed to drain NATS connection")
	}
}
