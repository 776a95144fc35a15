package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicectl/internal/domain"
	"slicectl/internal/topology"
)

func testSnapshot() *topology.Snapshot {
	nodes := map[string]domain.Node{
		"h1": {Name: "h1", Kind: domain.NodeKindHost, Num: 1},
		"s1": {Name: "s1", Kind: domain.NodeKindSwitch, Num: 1},
		"h2": {Name: "h2", Kind: domain.NodeKindHost, Num: 2},
	}
	links := map[domain.LinkKey]domain.Link{
		domain.NewLinkKey("h1", "s1"): {Key: domain.NewLinkKey("h1", "s1"), Residual: 100},
		domain.NewLinkKey("s1", "h2"): {Key: domain.NewLinkKey("s1", "h2"), Residual: 100},
	}
	return &topology.Snapshot{Nodes: nodes, Links: links}
}

func TestTopologyHash_StableAndSensitiveToCapacity(t *testing.T) {
	snap := testSnapshot()
	h1 := TopologyHash(snap)
	h2 := TopologyHash(snap)
	assert.Equal(t, h1, h2)

	snap.Links[domain.NewLinkKey("h1", "s1")] = domain.Link{Residual: 50}
	assert.NotEqual(t, h1, TopologyHash(snap))
}

func TestPathCache_SetThenGet(t *testing.T) {
	backend := NewMemoryCache(DefaultOptions())
	pc := NewPathCache(backend, 0)
	snap := testSnapshot()

	candidates, err := Lookup(context.Background(), pc, snap, "h1", "h2", 2)
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	got, ok, err := pc.Get(context.Background(), snap, "h1", "h2", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, candidates[0].Path, got[0].Path)
}

func TestLookup_MissFallsBackToFreshSearch(t *testing.T) {
	backend := NewMemoryCache(DefaultOptions())
	pc := NewPathCache(backend, 0)
	snap := testSnapshot()

	candidates, err := Lookup(context.Background(), pc, snap, "h1", "h2", 1)
	require.NoError(t, err)
	assert.NotEmpty(t, candidates)
}
