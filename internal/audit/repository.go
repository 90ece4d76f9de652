package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one persisted audit trail entry.
type Record struct {
	ID         string
	Kind       string
	RoomID     string
	Actor      string
	Target     string
	OccurredAt time.Time
}

// Repository provides PostgreSQL backed persistence for the audit trail.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert appends one record to the trail.
func (r *Repository) Insert(ctx context.Context, rec Record) error {
	const query = `
		INSERT INTO audit_events (id, kind, room_id, actor, target, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, query, rec.ID, rec.Kind, rec.RoomID, rec.Actor, rec.Target, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("audit: insert record: %w", err)
	}
	return nil
}

// ListByRoom returns the trail for one room, oldest first.
func (r *Repository) ListByRoom(ctx context.Context, roomID string) ([]Record, error) {
	const query = `
		SELECT id, kind, room_id, actor, target, occurred_at
		FROM audit_events WHERE room_id = $1 ORDER BY occurred_at, id`
	rows, err := r.pool.Query(ctx, query, roomID)
	if err != nil {
		return nil, fmt.Errorf("audit: list records %s: %w", roomID, err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.RoomID, &rec.Actor, &rec.Target, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
