// Package archive mirrors every tunnel ledger mutation into an optional
// relational store, so historical allocations survive ledger file
// rewrites and can be queried/reported on independently of the live
// control-plane process.
package archive

import (
	"context"
	"errors"
	"time"
)

// ErrRecordNotFound is returned when a requested archive row doesn't exist.
var ErrRecordNotFound = errors.New("archive record not found")

// Record is one historical tunnel lifecycle event: an allocation or a
// deallocation, timestamped at the moment the ledger mutation committed.
type Record struct {
	ID            int64
	TunnelID      int64
	Path          []string
	Rate          int
	TCPPort       int
	Bidirectional bool
	SrcIP         string
	DstIP         string
	Event         Event
	RecordedAt    time.Time
}

// Event distinguishes an allocation from a deallocation entry.
type Event string

const (
	// EventAllocated marks a tunnel's creation.
	EventAllocated Event = "ALLOCATED"
	// EventDeallocated marks a tunnel's removal.
	EventDeallocated Event = "DEALLOCATED"
)

// ListFilter narrows a List query.
type ListFilter struct {
	TunnelID  *int64
	Event     Event
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
	Offset    int
}

// Repository persists and queries archive Records.
type Repository interface {
	// Insert appends one lifecycle Record.
	Insert(ctx context.Context, r *Record) error
	// InsertGuarded appends r unless the tunnel's most recently archived
	// event already matches r.Event, guarding against a concurrent second
	// write of the same lifecycle transition (e.g. two deallocation paths
	// racing on the same tunnel) producing a duplicate archive row.
	InsertGuarded(ctx context.Context, r *Record) error
	// List returns Records matching filter, newest first.
	List(ctx context.Context, filter *ListFilter) ([]*Record, error)
	// UtilizationSummary aggregates the archive's lifetime totals: allocation
	// and deallocation counts, the summed rate of every allocation, and their
	// difference as the active tunnel count.
	UtilizationSummary(ctx context.Context) (*UtilizationSummary, error)
	Close() error
}

// UtilizationSummary reports aggregate allocation activity across the
// archive's lifetime.
type UtilizationSummary struct {
	TotalAllocations   int64
	TotalDeallocations int64
	ActiveTunnels      int64
	TotalRateAllocated int64
}
