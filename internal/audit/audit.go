package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Entry is a persisted audit record.
type Entry struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists audit entries in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes an audit entry.
func (r *Repository) Insert(ctx context.Context, kind, detail string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, kind, detail) VALUES ($1, $2, $3)
	`, uuid.NewString(), kind, detail)
	return err
}

// Recent returns the newest entries up to limit.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, detail, created_at FROM audit_log
		ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Kind, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
