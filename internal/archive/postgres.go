package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"slicectl/internal/domain"
	"slicectl/pkg/database"
	"slicectl/pkg/telemetry"
)

// PostgresRepository is the pgx-backed Repository implementation.
type PostgresRepository struct {
	db database.DB
}

// NewPostgresRepository wraps an already-connected database.DB.
func NewPostgresRepository(db database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec *Record) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.Insert")
	defer span.End()

	query := `
		INSERT INTO tunnel_archive (
			tunnel_id, path, rate, tcp_port, bidirectional,
			src_ip, dst_ip, event, recorded_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	err := r.db.QueryRow(ctx, query,
		rec.TunnelID,
		pq.Array(rec.Path),
		rec.Rate,
		rec.TCPPort,
		rec.Bidirectional,
		rec.SrcIP,
		rec.DstIP,
		string(rec.Event),
		rec.RecordedAt,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("failed to insert archive record: %w", err)
	}

	return nil
}

// InsertGuarded inserts rec inside a transaction that first checks the
// tunnel's most recently archived event, skipping the insert (without
// error) if that event already matches rec.Event. The plain Insert can't do
// this: removals reach the archive from two ledger paths — Store.Remove (an
// explicit DELETE) and Store.Sync (a line removed from the ledger file by
// hand) — and a repeated RecordRemove for one tunnel would otherwise land
// two DEALLOCATED rows for one tunnel lifecycle.
func (r *PostgresRepository) InsertGuarded(ctx context.Context, rec *Record) error {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.InsertGuarded")
	defer span.End()

	return database.WithTransaction(ctx, r.db, func(tx pgx.Tx) error {
		var lastEvent string
		err := tx.QueryRow(ctx,
			`SELECT event FROM tunnel_archive WHERE tunnel_id = $1 ORDER BY recorded_at DESC, id DESC LIMIT 1`,
			rec.TunnelID,
		).Scan(&lastEvent)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("failed to check last archived event for tunnel %d: %w", rec.TunnelID, err)
		}
		if lastEvent == string(rec.Event) {
			return nil
		}

		return tx.QueryRow(ctx, `
			INSERT INTO tunnel_archive (
				tunnel_id, path, rate, tcp_port, bidirectional,
				src_ip, dst_ip, event, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`,
			rec.TunnelID,
			pq.Array(rec.Path),
			rec.Rate,
			rec.TCPPort,
			rec.Bidirectional,
			rec.SrcIP,
			rec.DstIP,
			string(rec.Event),
			rec.RecordedAt,
		).Scan(&rec.ID)
	})
}

func (r *PostgresRepository) List(ctx context.Context, filter *ListFilter) ([]*Record, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.List")
	defer span.End()

	var conditions []string
	var args []any
	argN := 1

	if filter != nil {
		if filter.TunnelID != nil {
			conditions = append(conditions, fmt.Sprintf("tunnel_id = $%d", argN))
			args = append(args, *filter.TunnelID)
			argN++
		}
		if filter.Event != "" {
			conditions = append(conditions, fmt.Sprintf("event = $%d", argN))
			args = append(args, string(filter.Event))
			argN++
		}
		if filter.StartTime != nil {
			conditions = append(conditions, fmt.Sprintf("recorded_at >= $%d", argN))
			args = append(args, *filter.StartTime)
			argN++
		}
		if filter.EndTime != nil {
			conditions = append(conditions, fmt.Sprintf("recorded_at < $%d", argN))
			args = append(args, *filter.EndTime)
			argN++
		}
	}

	query := `
		SELECT id, tunnel_id, path, rate, tcp_port, bidirectional,
		       src_ip, dst_ip, event, recorded_at
		FROM tunnel_archive
	`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY recorded_at DESC"

	limit, offset := 100, 0
	if filter != nil {
		if filter.Limit > 0 {
			limit = filter.Limit
		}
		offset = filter.Offset
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argN, argN+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list archive records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec := &Record{}
		var event string

		if err := rows.Scan(
			&rec.ID, &rec.TunnelID, pq.Array(&rec.Path), &rec.Rate, &rec.TCPPort, &rec.Bidirectional,
			&rec.SrcIP, &rec.DstIP, &event, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archive record: %w", err)
		}

		rec.Event = Event(event)
		out = append(out, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive row iteration error: %w", err)
	}

	return out, nil
}

func (r *PostgresRepository) UtilizationSummary(ctx context.Context) (*UtilizationSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "PostgresRepository.UtilizationSummary")
	defer span.End()

	query := `
		SELECT
			COUNT(*) FILTER (WHERE event = 'ALLOCATED') AS total_allocations,
			COUNT(*) FILTER (WHERE event = 'DEALLOCATED') AS total_deallocations,
			COALESCE(SUM(rate) FILTER (WHERE event = 'ALLOCATED'), 0) AS total_rate
		FROM tunnel_archive
	`

	summary := &UtilizationSummary{}
	err := r.db.QueryRow(ctx, query).Scan(
		&summary.TotalAllocations,
		&summary.TotalDeallocations,
		&summary.TotalRateAllocated,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return summary, nil
		}
		return nil, fmt.Errorf("failed to compute utilization summary: %w", err)
	}

	summary.ActiveTunnels = summary.TotalAllocations - summary.TotalDeallocations
	return summary, nil
}

func (r *PostgresRepository) Close() error {
	r.db.Close()
	return nil
}

// AsyncMirror wraps a Repository so ledger.Store can call it synchronously
// from Append/Remove without blocking on database latency; failures are
// logged by the caller, never propagated back to the ledger.
type AsyncMirror struct {
	repo      Repository
	onFailure func(err error)
}

// NewAsyncMirror builds an AsyncMirror. onFailure is called from a
// background goroutine whenever the underlying insert fails; pass nil to
// ignore failures silently.
func NewAsyncMirror(repo Repository, onFailure func(err error)) *AsyncMirror {
	return &AsyncMirror{repo: repo, onFailure: onFailure}
}

// RecordAppend satisfies ledger.Archiver.
func (m *AsyncMirror) RecordAppend(t *domain.Tunnel) {
	m.record(m.recordOf(t, EventAllocated), false)
}

// RecordRemove satisfies ledger.Archiver. Deallocation writes go through the
// guarded insert: the ledger's Remove (DELETE /v1/tunnels/{id}) and its
// Sync of a hand-edited ledger file both report removals here.
func (m *AsyncMirror) RecordRemove(t *domain.Tunnel) {
	m.record(m.recordOf(t, EventDeallocated), true)
}

func (m *AsyncMirror) recordOf(t *domain.Tunnel, event Event) *Record {
	return &Record{
		TunnelID:      t.TunnelID,
		Path:          t.Path,
		Rate:          t.Rate,
		TCPPort:       t.TCPPort,
		Bidirectional: t.Bidirectional,
		SrcIP:         t.SrcIP,
		DstIP:         t.DstIP,
		Event:         event,
		RecordedAt:    time.Now(),
	}
}

func (m *AsyncMirror) record(rec *Record, guarded bool) {
	go func() {
		var err error
		if guarded {
			err = m.repo.InsertGuarded(context.Background(), rec)
		} else {
			err = m.repo.Insert(context.Background(), rec)
		}
		if err != nil && m.onFailure != nil {
			m.onFailure(err)
		}
	}()
}
