package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slicectl/internal/domain"
)

type memPersister struct {
	writes [][]*domain.Tunnel
}

func (p *memPersister) WriteAll(tunnels []*domain.Tunnel) error {
	cp := make([]*domain.Tunnel, len(tunnels))
	copy(cp, tunnels)
	p.writes = append(p.writes, cp)
	return nil
}

type recordingArchiver struct {
	appended []int64
	removed  []int64
}

func (a *recordingArchiver) RecordAppend(t *domain.Tunnel) { a.appended = append(a.appended, t.TunnelID) }
func (a *recordingArchiver) RecordRemove(t *domain.Tunnel) { a.removed = append(a.removed, t.TunnelID) }

func sampleTunnel(id int64) *domain.Tunnel {
	return &domain.Tunnel{TunnelID: id, Path: []string{"h1", "s1", "h2"}, Rate: 10, TCPPort: 5000 + int(id)}
}

func TestStore_AppendAndList(t *testing.T) {
	ar := &recordingArchiver{}
	s := New(nil, &memPersister{}, ar)

	require.NoError(t, s.Append(sampleTunnel(1)))
	require.NoError(t, s.Append(sampleTunnel(2)))

	listed := s.List()
	require.Len(t, listed, 2)
	assert.Equal(t, int64(1), listed[0].TunnelID)
	assert.Equal(t, int64(2), listed[1].TunnelID)
	assert.Equal(t, []int64{1, 2}, ar.appended)
}

func TestStore_AppendDuplicateIDFails(t *testing.T) {
	s := New(nil, &memPersister{}, nil)
	require.NoError(t, s.Append(sampleTunnel(1)))
	err := s.Append(sampleTunnel(1))
	assert.Error(t, err)
}

func TestStore_RemoveNotFound(t *testing.T) {
	s := New(nil, &memPersister{}, nil)
	_, err := s.Remove(99)
	assert.Error(t, err)
}

func TestStore_RemoveRecordsArchive(t *testing.T) {
	ar := &recordingArchiver{}
	s := New(nil, &memPersister{}, ar)
	require.NoError(t, s.Append(sampleTunnel(1)))

	_, err := s.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, ar.removed)
	assert.Empty(t, s.List())
}

func TestStore_NextIDMonotonic(t *testing.T) {
	s := New([]*domain.Tunnel{sampleTunnel(5)}, &memPersister{}, nil)
	assert.Equal(t, int64(6), s.NextID())
	assert.Equal(t, int64(7), s.NextID())
}

func TestStore_Sync_PicksUpExternalAppend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunnels.csv")

	require.NoError(t, os.WriteFile(path, []byte("h1,s1,h2,10,1,5001\n"), 0o644))

	ar := &recordingArchiver{}
	s := New(nil, &memPersister{}, ar)

	added, removed, err := s.Sync(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, added)
	assert.Empty(t, removed)
	assert.Equal(t, []int64{1}, ar.appended)

	_, ok := s.Get(1)
	assert.True(t, ok)
}

func TestStore_Sync_PicksUpExternalRemoval(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunnels.csv")
	require.NoError(t, os.WriteFile(path, []byte("h1,s1,h2,10,1,5001\n"), 0o644))

	ar := &recordingArchiver{}
	s := New(nil, &memPersister{}, ar)
	_, _, err := s.Sync(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	added, removed, err := s.Sync(path)
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Equal(t, []int64{1}, removed)
	assert.Equal(t, []int64{1}, ar.removed)

	_, ok := s.Get(1)
	assert.False(t, ok)
}

func TestStore_Sync_NoChangesIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tunnels.csv")
	require.NoError(t, os.WriteFile(path, []byte("h1,s1,h2,10,1,5001\n"), 0o644))

	s := New(nil, &memPersister{}, nil)
	_, _, err := s.Sync(path)
	require.NoError(t, err)

	added, removed, err := s.Sync(path)
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, removed)
}
