package allocator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicectl/internal/agent"
	"slicectl/internal/controller"
	"slicectl/internal/domain"
	"slicectl/internal/ledger"
	"slicectl/internal/topology"
	"slicectl/pkg/apperror"
	"slicectl/pkg/cache"
)

type fakeAgent struct {
	installErr error
}

func (f *fakeAgent) QueryPorts(ctx context.Context, path []string) (map[string]int, map[string]int, error) {
	out, in := map[string]int{}, map[string]int{}
	for _, n := range path[1 : len(path)-1] {
		out[n], in[n] = 1, 2
	}
	return out, in, nil
}
func (f *fakeAgent) InstallFlow(ctx context.Context, cmd agent.FlowCommand) (map[string]int, map[string]int, error) {
	return nil, nil, f.installErr
}
func (f *fakeAgent) DeleteFlow(ctx context.Context, cmd agent.FlowCommand) error     { return nil }
func (f *fakeAgent) SetLinkBandwidth(ctx context.Context, u, v string, bw int) error { return nil }
func (f *fakeAgent) StaticARP(ctx context.Context, host, ip, mac string) error       { return nil }

type memPersister struct{}

func (memPersister) WriteRunning(map[string]domain.Node, map[domain.LinkKey]domain.Link) error {
	return nil
}

type memLedgerPersister struct{}

func (memLedgerPersister) WriteAll([]*domain.Tunnel) error { return nil }

func lineTopology() *topology.Store {
	nodes := map[string]domain.Node{
		"h1": {Name: "h1", Kind: domain.NodeKindHost, Num: 1},
		"s1": {Name: "s1", Kind: domain.NodeKindSwitch, Num: 1},
		"h2": {Name: "h2", Kind: domain.NodeKindHost, Num: 2},
	}
	links := map[domain.LinkKey]domain.Link{
		domain.NewLinkKey("h1", "s1"): {Key: domain.NewLinkKey("h1", "s1"), Residual: 100},
		domain.NewLinkKey("s1", "h2"): {Key: domain.NewLinkKey("s1", "h2"), Residual: 100},
	}
	return topology.New(nodes, links, memPersister{})
}

func TestAllocate_Success(t *testing.T) {
	topo := lineTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	a := New(topo, ldg, controller.New(&fakeAgent{}), nil, 2)

	tun, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 10, Bidirectional: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"h1", "s1", "h2"}, tun.Path)

	residual, _ := topo.Snapshot().Residual("h1", "s1")
	assert.Equal(t, 90, residual)

	listed := ldg.List()
	require.Len(t, listed, 1)
	assert.Equal(t, tun.TunnelID, listed[0].TunnelID)
}

func TestAllocate_InsufficientCapacity(t *testing.T) {
	topo := lineTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	a := New(topo, ldg, controller.New(&fakeAgent{}), nil, 2)

	_, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 1000})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeInsufficientCapacity, apperror.Code(err))
	assert.Empty(t, ldg.List())
}

func TestAllocate_AgentFailureLeavesNoSideEffects(t *testing.T) {
	topo := lineTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	a := New(topo, ldg, controller.New(&fakeAgent{installErr: apperror.New(apperror.CodeAgentRejected, "nope")}), nil, 2)

	_, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 10})
	require.Error(t, err)
	assert.Empty(t, ldg.List())

	residual, _ := topo.Snapshot().Residual("h1", "s1")
	assert.Equal(t, 100, residual, "capacity must be untouched when agent install fails")
}

func TestDeallocate_ReleasesCapacityAndLedgerEntry(t *testing.T) {
	topo := lineTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	a := New(topo, ldg, controller.New(&fakeAgent{}), nil, 2)

	tun, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 10})
	require.NoError(t, err)

	_, err = a.Deallocate(context.Background(), tun.TunnelID)
	require.NoError(t, err)

	residual, _ := topo.Snapshot().Residual("h1", "s1")
	assert.Equal(t, 100, residual)
	assert.Empty(t, ldg.List())
}

func TestAllocate_UsesPathCacheOnSecondLookup(t *testing.T) {
	topo := lineTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	paths := cache.NewPathCache(cache.MustNew(cache.DefaultOptions()), 0)
	a := New(topo, ldg, controller.New(&fakeAgent{}), paths, 2)

	tun1, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 5})
	require.NoError(t, err)

	_, err = a.Deallocate(context.Background(), tun1.TunnelID)
	require.NoError(t, err)

	tun2, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 5})
	require.NoError(t, err)
	assert.Equal(t, tun1.Path, tun2.Path)
}

// trackingAgent records every path it was asked to remove, so a concurrency
// test can confirm a losing allocation's rollback actually reached the
// agent rather than merely returning the right error code.
type trackingAgent struct {
	mu      sync.Mutex
	removed [][]string
}

func (a *trackingAgent) QueryPorts(ctx context.Context, path []string) (map[string]int, map[string]int, error) {
	out, in := map[string]int{}, map[string]int{}
	for _, n := range path[1 : len(path)-1] {
		out[n], in[n] = 1, 2
	}
	return out, in, nil
}
func (a *trackingAgent) InstallFlow(ctx context.Context, cmd agent.FlowCommand) (map[string]int, map[string]int, error) {
	return nil, nil, nil
}
func (a *trackingAgent) DeleteFlow(ctx context.Context, cmd agent.FlowCommand) error {
	a.mu.Lock()
	a.removed = append(a.removed, cmd.Path)
	a.mu.Unlock()
	return nil
}
func (a *trackingAgent) SetLinkBandwidth(ctx context.Context, u, v string, bw int) error {
	return nil
}
func (a *trackingAgent) StaticARP(ctx context.Context, host, ip, mac string) error { return nil }

func (a *trackingAgent) removedCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.removed)
}

// bottleneckTopology models a single link with exactly enough residual
// capacity for one of two concurrent 40-unit requests, never both.
func bottleneckTopology() *topology.Store {
	nodes := map[string]domain.Node{
		"h1": {Name: "h1", Kind: domain.NodeKindHost, Num: 1},
		"s1": {Name: "s1", Kind: domain.NodeKindSwitch, Num: 1},
		"h2": {Name: "h2", Kind: domain.NodeKindHost, Num: 2},
	}
	links := map[domain.LinkKey]domain.Link{
		domain.NewLinkKey("h1", "s1"): {Key: domain.NewLinkKey("h1", "s1"), Residual: 50},
		domain.NewLinkKey("s1", "h2"): {Key: domain.NewLinkKey("s1", "h2"), Residual: 50},
	}
	return topology.New(nodes, links, memPersister{})
}

func TestAllocate_ConcurrentRequestsOverSameBottleneck(t *testing.T) {
	topo := bottleneckTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	ag := &trackingAgent{}
	a := New(topo, ldg, controller.New(ag), nil, 2)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := a.Allocate(context.Background(), Request{Src: "h1", Dst: "h2", Rate: 40})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var succeeded, failed int
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperror.Code(err) == apperror.CodeInsufficientCapacity:
			failed++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, succeeded, "exactly one concurrent allocation over a 50-unit bottleneck should succeed")
	assert.Equal(t, 1, failed, "the other must fail with InsufficientCapacity")
	assert.Len(t, ldg.List(), 1)

	residual, _ := topo.Snapshot().Residual("h1", "s1")
	assert.Equal(t, 10, residual)

	assert.Equal(t, 1, ag.removedCount(), "the losing allocation's agent install must be rolled back")
}

func TestDeallocate_NotFound(t *testing.T) {
	topo := lineTopology()
	ldg := ledger.New(nil, memLedgerPersister{}, nil)
	a := New(topo, ldg, controller.New(&fakeAgent{}), nil, 2)

	_, err := a.Deallocate(context.Background(), 999)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}
