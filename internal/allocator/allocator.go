// Package allocator implements the two-phase-commit tunnel allocator: it
// reserves a path, programs the data plane, and only then commits the
// capacity reservation and ledger entry — or rolls back everything it did
// if any step fails.
package allocator

import (
	"context"
	"fmt"
	"time"

	"slicectl/internal/controller"
	"slicectl/internal/domain"
	"slicectl/internal/ledger"
	"slicectl/internal/pathengine"
	"slicectl/internal/topology"
	"slicectl/pkg/apperror"
	"slicectl/pkg/cache"
	"slicectl/pkg/logger"
)

// installTimeout bounds how long agent installation for one tunnel may
// take before the allocation is aborted and rolled back.
const installTimeout = 10 * time.Second

// defaultCandidates is k in k_shortest_simple_paths when the caller does
// not specify one.
const defaultCandidates = 3

// Allocator owns the topology/ledger/agent wiring for allocate and
// deallocate. It holds no state of its own beyond its collaborators: all
// durable state lives in topo and ledger.
type Allocator struct {
	topo       *topology.Store
	ledger     *ledger.Store
	ctrl       *controller.Adapter
	paths      *cache.PathCache
	candidates int
}

// New constructs an Allocator. candidates is k for the path search; zero
// selects defaultCandidates. paths may be nil, in which case every
// allocation runs a fresh Yen's-algorithm search.
func New(topo *topology.Store, ledgerStore *ledger.Store, ctrl *controller.Adapter, paths *cache.PathCache, candidates int) *Allocator {
	if candidates <= 0 {
		candidates = defaultCandidates
	}
	return &Allocator{topo: topo, ledger: ledgerStore, ctrl: ctrl, paths: paths, candidates: candidates}
}

// Request is the caller-supplied intent for a new tunnel. K overrides the
// Allocator's default candidate count for this call alone; zero selects the
// Allocator's configured default.
type Request struct {
	Src           string
	Dst           string
	K             int
	Rate          int
	Bidirectional bool
}

// Allocate reserves a guaranteed-bandwidth path between req.Src and
// req.Dst. On success the returned Tunnel is already programmed on the
// data plane, capacity-deducted, and durably recorded in the ledger. On
// any failure nothing observable has changed: a failed agent install
// leaves the ledger and topology untouched; a failed post-install commit
// rolls the agent install back out.
func (a *Allocator) Allocate(ctx context.Context, req Request) (*domain.Tunnel, error) {
	if req.Rate <= 0 {
		return nil, apperror.New(apperror.CodeInvalidInput, "rate must be positive").WithField("rate")
	}
	srcNode, err := domain.ParseNode(req.Src)
	if err != nil || !srcNode.IsHost() {
		return nil, apperror.New(apperror.CodeInvalidInput, fmt.Sprintf("source %q is not a valid host", req.Src)).WithField("src")
	}
	dstNode, err := domain.ParseNode(req.Dst)
	if err != nil || !dstNode.IsHost() {
		return nil, apperror.New(apperror.CodeInvalidInput, fmt.Sprintf("destination %q is not a valid host", req.Dst)).WithField("dst")
	}

	snap := a.topo.Snapshot()
	if _, ok := snap.Nodes[req.Src]; !ok {
		return nil, apperror.New(apperror.CodeInvalidInput, fmt.Sprintf("unknown node %q", req.Src)).WithField("src")
	}
	if _, ok := snap.Nodes[req.Dst]; !ok {
		return nil, apperror.New(apperror.CodeInvalidInput, fmt.Sprintf("unknown node %q", req.Dst)).WithField("dst")
	}

	k := a.candidates
	if req.K > 0 {
		k = req.K
	}
	candidates, err := cache.Lookup(ctx, a.paths, snap, req.Src, req.Dst, k)
	if err != nil {
		return nil, err
	}
	sel, err := pathengine.LeastSegmentation(snap, candidates, req.Rate)
	if err != nil {
		return nil, err
	}

	tunnelID := a.ledger.NextID()
	t := &domain.Tunnel{
		TunnelID:      tunnelID,
		Path:          sel.Path,
		Rate:          req.Rate,
		TCPPort:       domain.TCPPortFor(tunnelID),
		Bidirectional: req.Bidirectional,
		SrcIP:         srcNode.IP(),
		DstIP:         dstNode.IP(),
		SrcMAC:        srcNode.MAC(),
		DstMAC:        dstNode.MAC(),
		Links:         domain.LinksForPath(sel.Path),
	}

	installCtx, cancel := context.WithTimeout(ctx, installTimeout)
	defer cancel()

	if err := a.ctrl.Install(installCtx, t); err != nil {
		code := apperror.CodeAgentUnavailable
		if apperror.Is(err, apperror.CodeAgentRejected) {
			code = apperror.CodeAgentRejected
		}
		return nil, apperror.Wrap(err, code, "failed to install tunnel on data plane")
	}

	if err := a.topo.ApplyDelta(t.Links, t.Rate); err != nil {
		// The snapshot promised this capacity was available; losing the
		// race here means a concurrent allocator already consumed it.
		if rbErr := a.ctrl.Remove(ctx, t); rbErr != nil {
			logger.Log.Error("failed to roll back agent install after capacity commit failure",
				"tunnel_id", tunnelID, "error", rbErr)
		}
		return nil, err
	}

	if err := a.ledger.Append(t); err != nil {
		if rbErr := a.topo.ApplyDelta(t.Links, -t.Rate); rbErr != nil {
			logger.Log.Error("failed to roll back capacity after ledger append failure",
				"tunnel_id", tunnelID, "error", rbErr)
		}
		if rbErr := a.ctrl.Remove(ctx, t); rbErr != nil {
			logger.Log.Error("failed to roll back agent install after ledger append failure",
				"tunnel_id", tunnelID, "error", rbErr)
		}
		return nil, err
	}

	return t, nil
}

// Deallocate releases a previously allocated tunnel: removes its flow
// programs, returns its capacity to the topology, and removes it from the
// ledger. A failure to remove the flow programs is logged as a warning but
// does not block the rest of the teardown, per the forward-progress
// preference on removal.
func (a *Allocator) Deallocate(ctx context.Context, tunnelID int64) (*domain.Tunnel, error) {
	t, ok := a.ledger.Get(tunnelID)
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("tunnel %d not found", tunnelID))
	}

	if err := a.ctrl.Remove(ctx, t); err != nil {
		logger.Log.Warn("agent-side removal failed, continuing teardown", "tunnel_id", tunnelID, "error", err)
	}

	if err := a.topo.ApplyDelta(t.Links, -t.Rate); err != nil {
		logger.Log.Error("failed to release capacity during deallocation", "tunnel_id", tunnelID, "error", err)
	}

	if _, err := a.ledger.Remove(tunnelID); err != nil {
		return nil, err
	}

	return t, nil
}
