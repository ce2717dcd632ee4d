package replay

import (
	"context"
	"errors"

	"solana-coil-detector/internal/ingest"
)

// ErrDiverged means two replays of the same recording produced
// different trajectories. The fold is supposed to be a pure function of
// the sorted event sequence, so this indicates nondeterminism in the
// pipeline, not in the recording.
var ErrDiverged = errors.New("replay runs diverged")

// Verify replays the recording twice through independent pipelines and
// compares fingerprints. Returns the first run's result on success.
func Verify(ctx context.Context, rows []ingest.Row, opts Options) (*Result, error) {
	runner := NewRunner(opts)
	first, err := runner.Run(ctx, rows)
	if err != nil {
		return nil, err
	}
	second, err := runner.Run(ctx, rows)
	if err != nil {
		return nil, err
	}
	if first.Fingerprint != second.Fingerprint {
		return nil, ErrDiverged
	}
	return first, nil
}
