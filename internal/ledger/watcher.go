package ledger

import (
	"context"
	"time"

	"slicectl/pkg/logger"
)

// Watcher is the optional long-running task that polls the ledger file for
// external edits and merges them into the Store via Sync. It runs at the
// same T_poll cadence as the Reconciler, so an operator-appended tunnel line
// is picked up for data-plane installation within one reconciler tick of
// being noticed here.
type Watcher struct {
	store    *Store
	path     string
	interval time.Duration
}

// NewWatcher constructs a Watcher over store, polling path every interval.
func NewWatcher(store *Store, path string, interval time.Duration) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Watcher{store: store, path: path, interval: interval}
}

// Run blocks, polling until ctx is canceled. A failed poll (e.g. a
// momentarily truncated file mid-write) is logged and retried next tick.
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			added, removed, err := w.store.Sync(w.path)
			if err != nil {
				logger.Log.Warn("ledger watcher sync failed", "path", w.path, "error", err)
				continue
			}
			if len(added) > 0 || len(removed) > 0 {
				logger.Log.Info("ledger watcher picked up external edit",
					"path", w.path, "added", added, "removed", removed)
			}
		}
	}
}
