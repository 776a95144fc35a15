// Package pathengine computes candidate tunnel paths over a topology
// snapshot. It implements Yen's algorithm for k loopless shortest paths and
// the least-segmentation selection rule used to pick one for allocation.
package pathengine

import (
	"fmt"
	"sort"
	"strings"

	"slicectl/internal/domain"
	"slicectl/internal/topology"
	"slicectl/pkg/apperror"
)

// Candidate is one loopless path together with its precomputed cost: the sum
// of residual capacities of the links it traverses, evaluated against the
// snapshot it was found in.
type Candidate struct {
	Path []string
	Cost int
}

// KShortestSimplePaths returns up to k loopless paths from src to dst ordered
// by nondecreasing total edge weight (residual capacity used as weight), via
// Yen's algorithm. Ties at every step are broken by lexicographic order of
// the path's node sequence, so the result is deterministic for a given
// snapshot. Fails with CodeNoPath if src == dst or no path exists at all.
func KShortestSimplePaths(snap *topology.Snapshot, src, dst string, k int) ([]Candidate, error) {
	if src == dst {
		return nil, apperror.New(apperror.CodeNoPath, fmt.Sprintf("source and destination are both %q", src))
	}
	if k < 1 {
		k = 1
	}

	first, cost, ok := dijkstra(snap, src, dst, nil, nil)
	if !ok {
		return nil, apperror.New(apperror.CodeNoPath, fmt.Sprintf("no path from %s to %s", src, dst))
	}

	A := []Candidate{{Path: first, Cost: cost}}
	var B []Candidate
	seen := map[string]bool{pathKey(first): true}

	for len(A) < k {
		prev := A[len(A)-1].Path

		for i := 0; i < len(prev)-1; i++ {
			spurNode := prev[i]
			rootPath := append([]string(nil), prev[:i+1]...)

			removedEdges := map[domain.LinkKey]bool{}
			for _, a := range A {
				if samePrefix(a.Path, rootPath) {
					removedEdges[domain.NewLinkKey(a.Path[i], a.Path[i+1])] = true
				}
			}
			removedNodes := map[string]bool{}
			for _, n := range rootPath[:len(rootPath)-1] {
				removedNodes[n] = true
			}

			spurPath, spurCost, ok := dijkstra(snap, spurNode, dst, removedNodes, removedEdges)
			if !ok {
				continue
			}

			total := append(append([]string(nil), rootPath[:len(rootPath)-1]...), spurPath...)
			rootCost := pathCost(snap, rootPath)
			key := pathKey(total)
			if seen[key] {
				continue
			}
			// total cost = cost of root edges + spur cost; root edges already
			// counted once in rootCost, spurCost covers spurNode..dst.
			cand := Candidate{Path: total, Cost: rootCost + spurCost}
			B = append(B, cand)
			seen[key] = true
		}

		if len(B) == 0 {
			break
		}

		sort.SliceStable(B, func(i, j int) bool {
			if B[i].Cost != B[j].Cost {
				return B[i].Cost < B[j].Cost
			}
			return lessLex(B[i].Path, B[j].Path)
		})

		A = append(A, B[0])
		B = B[1:]
	}

	return A, nil
}

// dijkstra finds the cheapest simple path from src to dst in snap, ignoring
// any node in removedNodes and any link in removedEdges. Edge weight is the
// link's residual capacity.
func dijkstra(snap *topology.Snapshot, src, dst string, removedNodes map[string]bool, removedEdges map[domain.LinkKey]bool) ([]string, int, bool) {
	if removedNodes[src] || removedNodes[dst] {
		return nil, 0, false
	}
	if _, ok := snap.Nodes[src]; !ok {
		return nil, 0, false
	}
	if _, ok := snap.Nodes[dst]; !ok {
		return nil, 0, false
	}

	const inf = 1 << 30
	dist := map[string]int{src: 0}
	parent := map[string]string{}
	visited := map[string]bool{}

	for {
		// pick the unvisited node with smallest dist, breaking ties
		// lexicographically for determinism.
		u, best := "", inf
		for n, d := range dist {
			if visited[n] {
				continue
			}
			if d < best || (d == best && (u == "" || n < u)) {
				u, best = n, d
			}
		}
		if u == "" {
			break
		}
		if u == dst {
			break
		}
		visited[u] = true

		for _, v := range snap.Neighbors(u) {
			if removedNodes[v] || visited[v] {
				continue
			}
			key := domain.NewLinkKey(u, v)
			if removedEdges[key] {
				continue
			}
			w, ok := snap.Residual(u, v)
			if !ok {
				continue
			}
			nd := dist[u] + w
			if cur, ok := dist[v]; !ok || nd < cur {
				dist[v] = nd
				parent[v] = u
			}
		}
	}

	if _, ok := dist[dst]; !ok {
		return nil, 0, false
	}

	var path []string
	for n := dst; n != src; n = parent[n] {
		path = append([]string{n}, path...)
	}
	path = append([]string{src}, path...)
	return path, dist[dst], true
}

func pathCost(snap *topology.Snapshot, path []string) int {
	total := 0
	for i := 0; i+1 < len(path); i++ {
		if w, ok := snap.Residual(path[i], path[i+1]); ok {
			total += w
		}
	}
	return total
}

func pathKey(path []string) string {
	return strings.Join(path, ">")
}

func samePrefix(path, prefix []string) bool {
	if len(path) < len(prefix) {
		return false
	}
	for i, n := range prefix {
		if path[i] != n {
			return false
		}
	}
	return true
}

func lessLex(a, b []string) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
