package config

import (
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Watcher holds the active threshold set and swaps in a fresh one on
// Reload. A failed reload keeps the last-known-good thresholds active.
type Watcher struct {
	path    string
	current atomic.Pointer[ThresholdConfig]
	log     zerolog.Logger
}

// NewWatcher loads the initial threshold set from path (plus env
// overrides). A malformed initial config is fatal: the error is
// returned and no watcher is created.
func NewWatcher(path string, log zerolog.Logger) (*Watcher, error) {
	initial, err := LoadThresholds(path)
	if err != nil {
		return nil, err
	}
	w := &Watcher{path: path, log: log}
	w.current.Store(initial)
	return w, nil
}

// Current returns the active threshold set. The returned value is
// immutable; callers keep it for the duration of one tick.
func (w *Watcher) Current() *ThresholdConfig {
	return w.current.Load()
}

// Reload re-reads thresholds. On error, the previous set stays active
// and the error is logged, not returned: a bad runtime edit must not
// take down the detector.
func (w *Watcher) Reload() {
	next, err := LoadThresholds(w.path)
	if err != nil {
		w.log.Warn().Err(err).Msg("threshold reload failed, keeping last-known-good")
		return
	}
	w.current.Store(next)
}
