// Package nats publishes detector signals over NATS, one subject per
// pool so consumers can subscribe to scf.signal.> or a single pool.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/pubsub"
)

const subjectPrefix = "scf.signal."

// Publisher implements pubsub.Publisher over a NATS connection.
type Publisher struct {
	nc  *nats.Conn
	log zerolog.Logger
}

// Compile-time interface check.
var _ pubsub.Publisher = (*Publisher)(nil)

// New connects to NATS. The connection retries forever in the
// background; Publish fails fast while disconnected.
func New(url string, log zerolog.Logger) (*Publisher, error) {
	if url == "" {
		return nil, errors.New("nats url is required")
	}

	opts := []nats.Option{
		nats.Name("coil-detector"),
		nats.Timeout(5 * time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	return &Publisher{nc: nc, log: log}, nil
}

// Publish sends the signal to scf.signal.<pool> as JSON.
func (p *Publisher) Publish(_ context.Context, sig *domain.DetectorSignal) error {
	if sig == nil || sig.Pool == "" {
		return errors.New("signal with pool is required")
	}

	data, err := json.Marshal(sig)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	if err := p.nc.Publish(subjectPrefix+sig.Pool, data); err != nil {
		return fmt.Errorf("publish signal: %w", err)
	}
	return nil
}

// Close drains the connection so queued signals flush before shutdown.
func (p *Publisher) Close() error {
	if p.nc == nil || p.nc.Status() == nats.CLOSED {
		return nil
	}
	if err := p.nc.Drain(); err != nil {
		p.nc.Close()
		return fmt.Errorf("drain nats connection: %w", err)
	}
	return nil
}
