package cache

import (
	"context"
	"encoding/json"
	"time"

	"slicectl/internal/pathengine"
	"slicectl/internal/topology"
)

// PathCache memoizes k_shortest_simple_paths lookups. Entries are keyed by
// a hash of the residual capacities, so a hit only returns candidates
// computed from identical residuals. The cache indexes path candidates —
// loopless routes through the graph shape — not admission decisions; those
// are still made by least_segmentation.
type PathCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// cachedCandidate mirrors pathengine.Candidate for JSON round-tripping.
type cachedCandidate struct {
	Path []string `json:"path"`
	Cost int      `json:"cost"`
}

// NewPathCache constructs a PathCache over the given backend.
func NewPathCache(cache Cache, defaultTTL time.Duration) *PathCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &PathCache{cache: cache, defaultTTL: defaultTTL}
}

// Get looks up previously computed candidates for (snap's topology hash,
// src, dst, k).
func (pc *PathCache) Get(ctx context.Context, snap *topology.Snapshot, src, dst string, k int) ([]pathengine.Candidate, bool, error) {
	key := BuildPathKey(TopologyHash(snap), src, dst, k)

	data, err := pc.cache.Get(ctx, key)
	if err != nil {
		if err == ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var cached []cachedCandidate
	if err := json.Unmarshal(data, &cached); err != nil {
		_ = pc.cache.Delete(ctx, key)
		return nil, false, nil
	}

	out := make([]pathengine.Candidate, 0, len(cached))
	for _, c := range cached {
		out = append(out, pathengine.Candidate{Path: c.Path, Cost: c.Cost})
	}
	return out, true, nil
}

// Set stores candidates for (snap's topology hash, src, dst, k).
func (pc *PathCache) Set(ctx context.Context, snap *topology.Snapshot, src, dst string, k int, candidates []pathengine.Candidate) error {
	key := BuildPathKey(TopologyHash(snap), src, dst, k)

	cached := make([]cachedCandidate, 0, len(candidates))
	for _, c := range candidates {
		cached = append(cached, cachedCandidate{Path: c.Path, Cost: c.Cost})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return err
	}
	return pc.cache.Set(ctx, key, data, pc.defaultTTL)
}

// InvalidateAll drops every cached path-search result, used after a bulk
// topology reload.
func (pc *PathCache) InvalidateAll(ctx context.Context) (int64, error) {
	return pc.cache.DeleteByPattern(ctx, "paths:*")
}

// Lookup is the convenience entry point the Allocator calls: it tries the
// cache, checks that every link of each cached candidate still exists in the
// live snapshot, and falls back to a fresh Yen's-algorithm search on a miss or
// stale hit.
func Lookup(ctx context.Context, pc *PathCache, snap *topology.Snapshot, src, dst string, k int) ([]pathengine.Candidate, error) {
	if pc != nil {
		if candidates, ok, err := pc.Get(ctx, snap, src, dst, k); err == nil && ok {
			if allLinksExist(snap, candidates) {
				return candidates, nil
			}
		}
	}

	candidates, err := pathengine.KShortestSimplePaths(snap, src, dst, k)
	if err != nil {
		return nil, err
	}
	if pc != nil {
		_ = pc.Set(ctx, snap, src, dst, k, candidates)
	}
	return candidates, nil
}

func allLinksExist(snap *topology.Snapshot, candidates []pathengine.Candidate) bool {
	for _, c := range candidates {
		for i := 0; i+1 < len(c.Path); i++ {
			if _, ok := snap.Residual(c.Path[i], c.Path[i+1]); !ok {
				return false
			}
		}
	}
	return true
}
