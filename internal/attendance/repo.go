package attendance

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"hostel/internal/allottee"
)

// PostgresRepository persists attendance records in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Upsert inserts the record or overwrites the existing one for the same
// (allottee, day). The unique index on (allottee_id, day) makes a
// duplicate impossible even under concurrent submissions.
func (r *PostgresRepository) Upsert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance (id, allottee_id, day, status, marked_by, remarks)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (allottee_id, day) DO UPDATE SET
			status = EXCLUDED.status,
			marked_by = EXCLUDED.marked_by,
			remarks = EXCLUDED.remarks
		RETURNING id
	`, rec.ID, rec.AllotteeID, rec.Day, rec.Status, rec.MarkedBy, rec.Remarks)
	if err := row.Scan(&rec.ID); err != nil {
		return Record{}, err
	}
	return rec, nil
}

// ListForDay returns every record whose day matches.
func (r *PostgresRepository) ListForDay(ctx context.Context, day time.Time) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, allottee_id, day, status, marked_by, remarks
		FROM attendance WHERE day = $1
	`, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.AllotteeID, &rec.Day, &rec.Status, &rec.MarkedBy, &rec.Remarks); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ListAllottees returns all allottees for the day view join.
func (r *PostgresRepository) ListAllottees(ctx context.Context) ([]allottee.Allottee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, email, roll, hostel, room, registered_by, registered_at
		FROM allottees ORDER BY registered_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []allottee.Allottee
	for rows.Next() {
		var a allottee.Allottee
		if err := rows.Scan(&a.ID, &a.Name, &a.Email, &a.Roll, &a.Hostel, &a.Room, &a.RegisteredBy, &a.RegisteredAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountAllottees returns the total allottee count.
func (r *PostgresRepository) CountAllottees(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM allottees`).Scan(&n)
	return n, err
}

// AllotteeExists reports whether an allottee id resolves.
func (r *PostgresRepository) AllotteeExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM allottees WHERE id = $1`, id).Scan(&n)
	return n > 0, err
}
