// Package topology implements the Topology Store: the persisted undirected
// weighted graph of hosts and switches, with atomic residual-capacity
// updates. The representation follows the arena design: a node table keyed
// by name and an edge table keyed by unordered pair, so "references" between
// nodes and links are always string keys, never pointers.
package topology

import (
	"fmt"
	"sync"

	"slicectl/internal/domain"
	"slicectl/pkg/apperror"
)

// Snapshot is an immutable point-in-time view of the topology, safe to hand
// to the Path Engine without holding the Store's lock across a search.
type Snapshot struct {
	Nodes map[string]domain.Node
	Links map[domain.LinkKey]domain.Link
}

// Residual returns the residual capacity of the link between a and b, and
// whether that link exists.
func (s *Snapshot) Residual(a, b string) (int, bool) {
	l, ok := s.Links[domain.NewLinkKey(a, b)]
	if !ok {
		return 0, false
	}
	return l.Residual, true
}

// Neighbors returns the node names adjacent to n.
func (s *Snapshot) Neighbors(n string) []string {
	var out []string
	for key := range s.Links {
		if key.Has(n) {
			out = append(out, key.Other(n))
		}
	}
	return out
}

// Store is the single, injected owner of the live topology. Every exported
// method is transactional: it acquires the internal mutex for the duration
// of one call and never holds it across I/O other than its own persistence
// write.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]domain.Node
	links map[domain.LinkKey]domain.Link

	// initial is the immutable snapshot captured at construction time, kept
	// for diffing and for invariant-1 (capacity conservation) reporting.
	initial map[domain.LinkKey]int

	persist Persister
}

// Persister is the on-disk representation the Store writes through to after
// every successful mutation. CSVPersister is the only implementation the
// spec requires; it is an interface so tests can substitute a no-op.
type Persister interface {
	// WriteRunning rewrites the live residual-capacity file.
	WriteRunning(nodes map[string]domain.Node, links map[domain.LinkKey]domain.Link) error
}

// New builds a Store from an initial set of nodes and links, wiring the
// given Persister for running-state writes. The caller is expected to have
// already written initial_topology.csv (an immutable snapshot) before this
// call; New does not do it, to keep load-time and runtime I/O cleanly
// separated.
func New(nodes map[string]domain.Node, links map[domain.LinkKey]domain.Link, persist Persister) *Store {
	initial := make(map[domain.LinkKey]int, len(links))
	for k, l := range links {
		initial[k] = l.Residual
	}
	return &Store{
		nodes:   nodes,
		links:   links,
		initial: initial,
		persist: persist,
	}
}

// Snapshot returns an immutable, deep-copied view of the current topology.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make(map[string]domain.Node, len(s.nodes))
	for k, v := range s.nodes {
		nodes[k] = v
	}
	links := make(map[domain.LinkKey]domain.Link, len(s.links))
	for k, v := range s.links {
		links[k] = v
	}
	return &Snapshot{Nodes: nodes, Links: links}
}

// Node looks up a node by name.
func (s *Store) Node(name string) (domain.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[name]
	return n, ok
}

// ApplyDelta atomically subtracts delta Mbps from the residual capacity of
// every listed link (adds, if delta is negative). It applies to all listed
// links or none: on InsufficientCapacity or UnknownLink, no link is
// modified. On success, the running topology is persisted before the call
// returns.
func (s *Store) ApplyDelta(links []domain.LinkKey, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range links {
		link, ok := s.links[key]
		if !ok {
			return apperror.New(apperror.CodeUnknownLink, fmt.Sprintf("link %s not in topology", key)).
				WithField("link")
		}
		if link.Residual-delta < 0 {
			return apperror.New(apperror.CodeInsufficientCapacity,
				fmt.Sprintf("link %s residual %d cannot absorb delta %d", key, link.Residual, delta))
		}
	}

	for _, key := range links {
		link := s.links[key]
		link.Residual -= delta
		s.links[key] = link
	}

	if s.persist != nil {
		if err := s.persist.WriteRunning(s.nodes, s.links); err != nil {
			return apperror.Wrap(err, apperror.CodeInternal, "failed to persist running topology")
		}
	}

	return nil
}

// InitialResidual returns the residual capacity recorded at construction
// time for the given link, used by invariant-1 (capacity conservation)
// checks and tests.
func (s *Store) InitialResidual(key domain.LinkKey) (int, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.initial[key]
	return v, ok
}

// AggregateResidualRatio returns the ratio of total residual capacity to
// total initial capacity across every link, used by the readiness probe's
// degraded-capacity signal.
func (s *Store) AggregateResidualRatio() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var residual, total int
	for key, link := range s.links {
		residual += link.Residual
		total += s.initial[key]
	}
	if total == 0 {
		return 1.0
	}
	return float64(residual) / float64(total)
}
