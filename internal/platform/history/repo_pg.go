package history

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
	"github.com/hms/hms/internal/platform/ist"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) Insert(ctx context.Context, rec *Record) error {
	changes, err := json.Marshal(rec.Changes)
	if err != nil {
		return fmt.Errorf("encode changes: %w", err)
	}
	_, err = db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO history_record (id, resource_type, resource_id, action, actor_id, recorded_at, changes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ResourceType, rec.ResourceID, rec.Action, rec.ActorID, rec.RecordedAt, changes)
	if mapped := db.ActorViolation(err); mapped != nil {
		return mapped
	}
	return err
}

func (r *repoPG) List(ctx context.Context, resourceType, resourceID string) ([]*Record, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT id, resource_type, resource_id, action, actor_id, recorded_at, changes
		FROM history_record
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY recorded_at DESC, id`, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var rec Record
		var raw []byte
		if err := rows.Scan(&rec.ID, &rec.ResourceType, &rec.ResourceID, &rec.Action, &rec.ActorID, &rec.RecordedAt, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &rec.Changes); err != nil {
			return nil, fmt.Errorf("decode changes of %s: %w", rec.ID, err)
		}
		rec.RecordedAt = ist.ToIST(rec.RecordedAt)
		out = append(out, &rec)
	}
	return out, rows.Err()
}
