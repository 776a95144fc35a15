package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"slicectl/internal/domain"
	"slicectl/internal/topology"
)

// TopologyHash computes a deterministic hash of a topology snapshot's
// residual capacities, used as the cache-invalidating component of a path
// cache key: any capacity change anywhere in the graph produces a
// different hash, so a stale snapshot's candidates are never served.
func TopologyHash(snap *topology.Snapshot) string {
	if snap == nil {
		return ""
	}

	keys := make([]domain.LinkKey, 0, len(snap.Links))
	for k := range snap.Links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].U != keys[j].U {
			return keys[i].U < keys[j].U
		}
		return keys[i].V < keys[j].V
	})

	var data []byte
	for _, k := range keys {
		data = append(data, []byte(fmt.Sprintf("%s-%s:%d;", k.U, k.V, snap.Links[k].Residual))...)
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:16])
}

// BuildPathKey builds the cache key for a k_shortest_simple_paths lookup.
func BuildPathKey(topologyHash, src, dst string, k int) string {
	return fmt.Sprintf("paths:%s:%s:%s:%d", topologyHash, src, dst, k)
}

// QuickHash is a general-purpose hash for arbitrary byte payloads (e.g.
// request-body idempotency keys in the control-plane API).
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash is QuickHash truncated to 16 hex characters.
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
