// Package ledger implements the Tunnel Ledger: the authoritative,
// crash-tolerant record of active tunnels and the monotonic tunnel-ID
// allocator.
package ledger

import (
	"fmt"
	"sort"
	"sync"

	"slicectl/internal/domain"
	"slicectl/pkg/apperror"
)

// Store is the single, injected owner of the live ledger. Every exported
// method acquires the internal mutex for the duration of one call.
type Store struct {
	mu      sync.Mutex
	tunnels map[int64]*domain.Tunnel
	order   []int64 // insertion order, for List()
	nextID  int64
	persist Persister
	archive Archiver
}

// Persister is the on-disk representation the ledger writes through to
// after every append/remove.
type Persister interface {
	// WriteAll rewrites the ledger file from the given ordered tunnel list.
	WriteAll(tunnels []*domain.Tunnel) error
}

// Archiver mirrors ledger mutations into an optional secondary store (the
// Postgres archive) for historical querying. Archive failures are logged,
// never propagated: the line-oriented file remains sole authority.
type Archiver interface {
	RecordAppend(t *domain.Tunnel)
	RecordRemove(t *domain.Tunnel)
}

// noopArchiver is used when no archive backend is configured.
type noopArchiver struct{}

func (noopArchiver) RecordAppend(*domain.Tunnel) {}
func (noopArchiver) RecordRemove(*domain.Tunnel) {}

// New constructs a Store from tunnels already loaded from disk (see
// LoadFile), wiring persist for future writes. If archive is nil, mutations
// are not mirrored anywhere.
func New(tunnels []*domain.Tunnel, persist Persister, archive Archiver) *Store {
	if archive == nil {
		archive = noopArchiver{}
	}
	s := &Store{
		tunnels: make(map[int64]*domain.Tunnel, len(tunnels)),
		persist: persist,
		archive: archive,
	}
	var maxID int64
	for _, t := range tunnels {
		s.tunnels[t.TunnelID] = t
		s.order = append(s.order, t.TunnelID)
		if t.TunnelID > maxID {
			maxID = t.TunnelID
		}
	}
	s.nextID = maxID + 1
	return s
}

// List returns a snapshot of the ledger's tunnels in insertion order.
func (s *Store) List() []*domain.Tunnel {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Tunnel, 0, len(s.order))
	for _, id := range s.order {
		t := *s.tunnels[id]
		out = append(out, &t)
	}
	return out
}

// Get looks up a tunnel by ID.
func (s *Store) Get(tunnelID int64) (*domain.Tunnel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tunnels[tunnelID]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

// NextID reserves and returns the next monotonic tunnel ID. It does not
// itself mutate the ledger's tunnel set — the reservation only becomes
// durable once Append is called with it — but the counter it draws from is
// strictly increasing across calls, matching the "reserves and returns"
// contract: two callers never observe the same value.
func (s *Store) NextID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	return id
}

// Append persists a new tunnel. The ledger file is rewritten in full to
// preserve insertion order and integrity.
func (s *Store) Append(t *domain.Tunnel) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tunnels[t.TunnelID]; exists {
		return apperror.New(apperror.CodeInvariantViolation,
			fmt.Sprintf("tunnel id %d already present in ledger", t.TunnelID))
	}

	cp := *t
	s.tunnels[t.TunnelID] = &cp
	s.order = append(s.order, t.TunnelID)

	if t.TunnelID >= s.nextID {
		s.nextID = t.TunnelID + 1
	}

	if err := s.writeLocked(); err != nil {
		// roll back the in-memory append so List()/Get() never diverge from disk
		delete(s.tunnels, t.TunnelID)
		s.order = s.order[:len(s.order)-1]
		return apperror.Wrap(err, apperror.CodeInternal, "failed to persist ledger append")
	}

	s.archive.RecordAppend(&cp)
	return nil
}

// Remove persists the removal of a tunnel, returning the removed record or
// apperror.CodeNotFound.
func (s *Store) Remove(tunnelID int64) (*domain.Tunnel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tunnels[tunnelID]
	if !ok {
		return nil, apperror.New(apperror.CodeNotFound, fmt.Sprintf("tunnel %d not found", tunnelID))
	}

	removed := *t
	delete(s.tunnels, tunnelID)
	for i, id := range s.order {
		if id == tunnelID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	if err := s.writeLocked(); err != nil {
		// restore state: removal must be all-or-nothing from the caller's view
		s.tunnels[tunnelID] = &removed
		s.order = append(s.order, tunnelID)
		sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
		return nil, apperror.Wrap(err, apperror.CodeInternal, "failed to persist ledger removal")
	}

	s.archive.RecordRemove(&removed)
	return &removed, nil
}

// Sync reloads the ledger's backing file and merges any external edits into
// the live in-memory state: records present in the file but not yet in
// memory are added (Scenario S4 — an operator hand-edits the ledger while
// the control plane is running), and records that vanished from the file
// are removed. The file itself is never rewritten here, since the external
// edit is already durable; Sync only brings memory in line with it.
func (s *Store) Sync(path string) (added []int64, removed []int64, err error) {
	onDiskTunnels, err := LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	onDisk := make(map[int64]*domain.Tunnel, len(onDiskTunnels))
	for _, t := range onDiskTunnels {
		onDisk[t.TunnelID] = t
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var removedTunnels []*domain.Tunnel
	for id, t := range s.tunnels {
		if _, ok := onDisk[id]; !ok {
			removed = append(removed, id)
			removedTunnels = append(removedTunnels, t)
		}
	}
	for _, id := range removed {
		delete(s.tunnels, id)
		for i, oid := range s.order {
			if oid == id {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}

	for id, t := range onDisk {
		if _, exists := s.tunnels[id]; exists {
			continue
		}
		cp := *t
		s.tunnels[id] = &cp
		s.order = append(s.order, id)
		added = append(added, id)
		if id >= s.nextID {
			s.nextID = id + 1
		}
	}
	sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })

	for _, t := range removedTunnels {
		s.archive.RecordRemove(t)
	}
	for _, id := range added {
		s.archive.RecordAppend(s.tunnels[id])
	}

	return added, removed, nil
}

func (s *Store) writeLocked() error {
	if s.persist == nil {
		return nil
	}
	ordered := make([]*domain.Tunnel, 0, len(s.order))
	for _, id := range s.order {
		ordered = append(ordered, s.tunnels[id])
	}
	return s.persist.WriteAll(ordered)
}
