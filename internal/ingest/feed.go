package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/observability"
)

// Sink receives decoded events from the feed. The aggregator satisfies
// this directly.
type Sink interface {
	Ingest(ev domain.Event) error
}

// FeedConfig configures feed client behavior.
type FeedConfig struct {
	// ReconnectDelay is the initial delay before a reconnect attempt.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the exponential backoff between attempts.
	MaxReconnectDelay time.Duration
	// PingInterval is the interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is the timeout for reading messages.
	ReadTimeout time.Duration
	// WriteTimeout is the timeout for writing messages.
	WriteTimeout time.Duration
	// HandshakeTimeout bounds the websocket dial.
	HandshakeTimeout time.Duration
	// ReconnectRate limits reconnect attempts globally, on top of the
	// backoff, so a flapping upstream cannot be hammered.
	ReconnectRate rate.Limit
}

// DefaultFeedConfig returns default feed configuration.
func DefaultFeedConfig() FeedConfig {
	return FeedConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		HandshakeTimeout:  10 * time.Second,
		ReconnectRate:     rate.Every(500 * time.Millisecond),
	}
}

// Feed consumes the upstream normalized event stream over WebSocket and
// forwards decoded events to the sink. It reconnects with exponential
// backoff and never drops a decodable row while connected.
type Feed struct {
	endpoint string
	config   FeedConfig
	sink     Sink
	metrics  *observability.Metrics
	log      zerolog.Logger

	conn    *websocket.Conn
	connMu  sync.Mutex
	closed  atomic.Bool
	limiter *rate.Limiter

	done chan struct{}
	wg   sync.WaitGroup
}

// NewFeed creates a feed client and connects to the endpoint.
func NewFeed(ctx context.Context, endpoint string, sink Sink, metrics *observability.Metrics, log zerolog.Logger, config *FeedConfig) (*Feed, error) {
	cfg := DefaultFeedConfig()
	if config != nil {
		cfg = *config
	}
	if sink == nil {
		return nil, fmt.Errorf("nil sink")
	}
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}

	f := &Feed{
		endpoint: endpoint,
		config:   cfg,
		sink:     sink,
		metrics:  metrics,
		log:      log.With().Str("component", "feed").Logger(),
		limiter:  rate.NewLimiter(cfg.ReconnectRate, 1),
		done:     make(chan struct{}),
	}

	if err := f.connect(ctx); err != nil {
		return nil, err
	}

	f.wg.Add(1)
	go f.readLoop()

	f.wg.Add(1)
	go f.pingLoop()

	return f, nil
}

// connect establishes the WebSocket connection.
func (f *Feed) connect(ctx context.Context) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: f.config.HandshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, f.endpoint, nil)
	if err != nil {
		return fmt.Errorf("feed dial: %w", err)
	}

	f.conn = conn
	return nil
}

// Close shuts the feed down and waits for its goroutines.
func (f *Feed) Close() error {
	if f.closed.Swap(true) {
		return nil
	}

	close(f.done)

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		f.conn.Close()
	}
	f.connMu.Unlock()

	f.wg.Wait()
	return nil
}

// readLoop reads rows from the socket, decodes them and forwards events
// to the sink. On a read error it reconnects with exponential backoff.
func (f *Feed) readLoop() {
	defer f.wg.Done()

	delay := f.config.ReconnectDelay

	for !f.closed.Load() {
		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		if conn == nil {
			if !f.reconnect(delay) {
				return
			}
			delay = delay * 2
			if delay > f.config.MaxReconnectDelay {
				delay = f.config.MaxReconnectDelay
			}
			continue
		}

		conn.SetReadDeadline(time.Now().Add(f.config.ReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if f.closed.Load() {
				return
			}
			f.log.Warn().Err(err).Msg("feed read failed, reconnecting")
			f.dropConn()
			continue
		}

		// Reset backoff on a successful read.
		delay = f.config.ReconnectDelay

		f.handleMessage(message)
	}
}

// dropConn closes and clears the current connection so readLoop enters
// its reconnect path.
func (f *Feed) dropConn() {
	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
		f.conn = nil
	}
	f.connMu.Unlock()
}

// reconnect waits out the backoff delay plus the global rate limit and
// dials again. Returns false when the feed is shutting down.
func (f *Feed) reconnect(delay time.Duration) bool {
	select {
	case <-f.done:
		return false
	case <-time.After(delay):
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.limiter.Wait(ctx); err != nil {
		return !f.closed.Load()
	}

	f.metrics.FeedReconnects.Inc()

	if err := f.connect(ctx); err != nil {
		f.log.Warn().Err(err).Msg("feed reconnect failed")
		return !f.closed.Load()
	}

	f.log.Info().Str("endpoint", f.endpoint).Msg("feed reconnected")
	return true
}

// handleMessage decodes one feed row and forwards it. Undecodable rows
// are counted and skipped; the stream keeps going.
func (f *Feed) handleMessage(message []byte) {
	f.metrics.FeedMessages.Inc()

	var row Row
	if err := json.Unmarshal(message, &row); err != nil {
		f.metrics.EventsDropped.Inc()
		f.log.Warn().Err(err).Msg("undecodable feed row")
		return
	}

	ev, err := row.Event()
	if err != nil {
		f.metrics.EventsDropped.Inc()
		f.log.Warn().Err(err).Str("type", row.Type).Msg("invalid feed row")
		return
	}

	if err := f.sink.Ingest(ev); err != nil {
		f.metrics.EventsDropped.Inc()
		f.log.Warn().Err(err).
			Str("pool", ev.EventPool()).
			Int64("slot", ev.EventSlot()).
			Msg("sink rejected event")
		return
	}
	f.metrics.EventsFolded.WithLabelValues(row.Type).Inc()
}

// pingLoop sends periodic ping frames to keep the connection alive.
func (f *Feed) pingLoop() {
	defer f.wg.Done()

	ticker := time.NewTicker(f.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.connMu.Lock()
			if f.conn != nil {
				f.conn.SetWriteDeadline(time.Now().Add(f.config.WriteTimeout))
				if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					// Reader will notice the dead connection.
				}
			}
			f.connMu.Unlock()
		}
	}
}
