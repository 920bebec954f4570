package search

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/domain/patient"
	"github.com/hms/hms/internal/domain/scheduling"
	"github.com/hms/hms/internal/platform/db"
)

type finderPG struct{ pool *pgxpool.Pool }

func NewFinderPG(pool *pgxpool.Pool) Finder { return &finderPG{pool: pool} }

func (f *finderPG) Patients(ctx context.Context, q *db.Query) ([]*patient.Patient, error) {
	return find(ctx, f.pool, q, patient.Scan)
}

func (f *finderPG) Appointments(ctx context.Context, q *db.Query) ([]*scheduling.Appointment, error) {
	return find(ctx, f.pool, q, scheduling.Scan)
}

func find[T any](ctx context.Context, pool *pgxpool.Pool, q *db.Query, scan func(pgx.Row) (T, error)) ([]T, error) {
	rows, err := db.Conn(ctx, pool).Query(ctx, q.SelectSQL(), q.Args()...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		return scan(row)
	})
}
