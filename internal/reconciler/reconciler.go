// Package reconciler runs the long-lived poll loop that keeps the data
// plane in sync with the ledger: it diffs the ledger's desired tunnel set
// against what it believes is currently installed and issues install/remove
// calls through the Controller Adapter to close the gap.
package reconciler

import (
	"context"
	"time"

	"slicectl/internal/controller"
	"slicectl/internal/domain"
	"slicectl/internal/ledger"
	"slicectl/pkg/logger"
)

// DefaultInterval is T_poll, the period between reconciliation ticks.
const DefaultInterval = 2 * time.Second

// Reconciler owns the in-memory "installed" fingerprint set and drives it
// toward the ledger's desired set on every tick.
type Reconciler struct {
	ledger   *ledger.Store
	ctrl     *controller.Adapter
	interval time.Duration

	installed map[domain.Fingerprint]*domain.Tunnel
}

// New constructs a Reconciler with an empty installed set: the first tick
// treats every ledger entry as needing installation, which is the correct
// behavior on process restart (Scenario S6).
func New(ledgerStore *ledger.Store, ctrl *controller.Adapter, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		ledger:    ledgerStore,
		ctrl:      ctrl,
		interval:  interval,
		installed: make(map[domain.Fingerprint]*domain.Tunnel),
	}
}

// Run blocks, ticking every interval until ctx is canceled. A tick's error
// is logged, not fatal: the next tick tries again.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.Tick(ctx); err != nil {
				logger.Log.Error("reconciliation tick failed", "error", err)
			}
		}
	}
}

// Tick runs one reconciliation pass: removals before additions, so freed
// ports and queue IDs are available to the additions in the same tick. A
// change discovered mid-tick is deferred to the next tick by construction
// — desired is a single snapshot taken at the start.
func (r *Reconciler) Tick(ctx context.Context) error {
	desired := r.ledger.List()
	desiredByFP := make(map[domain.Fingerprint]*domain.Tunnel, len(desired))
	for _, t := range desired {
		desiredByFP[t.Fingerprint()] = t
	}

	for fp, t := range r.installed {
		if _, stillDesired := desiredByFP[fp]; stillDesired {
			continue
		}
		if err := r.ctrl.Remove(ctx, t); err != nil {
			logger.Log.Warn("reconciler failed to remove stale tunnel", "tunnel_id", t.TunnelID, "error", err)
			continue
		}
		delete(r.installed, fp)
	}

	for fp, t := range desiredByFP {
		if _, alreadyInstalled := r.installed[fp]; alreadyInstalled {
			continue
		}
		if err := r.ctrl.Install(ctx, t); err != nil {
			logger.Log.Warn("reconciler failed to install tunnel", "tunnel_id", t.TunnelID, "error", err)
			continue
		}
		r.installed[fp] = t
	}

	return nil
}

// Installed returns the fingerprints the reconciler currently believes are
// programmed on the data plane, for tests and diagnostics.
func (r *Reconciler) Installed() []domain.Fingerprint {
	out := make([]domain.Fingerprint, 0, len(r.installed))
	for fp := range r.installed {
		out = append(out, fp)
	}
	return out
}
