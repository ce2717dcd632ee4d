// Package memory is an in-process pubsub.Publisher for tests and
// replay runs.
package memory

import (
	"context"
	"sync"

	"solana-coil-detector/internal/domain"
	"solana-coil-detector/internal/pubsub"
)

// Publisher records every published signal.
type Publisher struct {
	mu      sync.Mutex
	signals []*domain.DetectorSignal
	closed  bool
}

// NewPublisher creates a new in-memory publisher.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Compile-time interface check.
var _ pubsub.Publisher = (*Publisher)(nil)

// Publish records the signal.
func (p *Publisher) Publish(_ context.Context, sig *domain.DetectorSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := *sig
	p.signals = append(p.signals, &cp)
	return nil
}

// Close marks the publisher closed.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Signals returns every published signal in order.
func (p *Publisher) Signals() []*domain.DetectorSignal {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.DetectorSignal, len(p.signals))
	copy(out, p.signals)
	return out
}
