// Package pubsub broadcasts actionable detector signals to downstream
// consumers (execution bots, dashboards).
package pubsub

import (
	"context"

	"solana-coil-detector/internal/domain"
)

// Publisher delivers emitted signals. Implementations must be safe for
// concurrent use by per-pool workers.
type Publisher interface {
	// Publish sends one signal. Delivery is best-effort; the caller
	// logs failures and never blocks a tick on them.
	Publish(ctx context.Context, sig *domain.DetectorSignal) error

	// Close flushes and releases the transport.
	Close() error
}
