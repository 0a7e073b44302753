package allottee

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository persists allottees in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const allotteeColumns = `id, name, email, roll, hostel, room, registered_by, registered_at`

func scanAllottee(row interface{ Scan(...any) error }) (Allottee, error) {
	var a Allottee
	err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Roll, &a.Hostel, &a.Room, &a.RegisteredBy, &a.RegisteredAt)
	return a, err
}

// Insert writes a new allottee.
func (r *PostgresRepository) Insert(ctx context.Context, a Allottee) (Allottee, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.RegisteredAt.IsZero() {
		a.RegisteredAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO allottees (id, name, email, roll, registered_by, registered_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.Name, a.Email, a.Roll, a.RegisteredBy, a.RegisteredAt)
	if err != nil {
		return Allottee{}, err
	}
	return a, nil
}

// GetByID returns an allottee by id, nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Allottee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+allotteeColumns+` FROM allottees WHERE id = $1
	`, id)
	a, err := scanAllottee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetByEmail returns an allottee by email, nil when absent.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Allottee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+allotteeColumns+` FROM allottees WHERE email = $1
	`, email)
	a, err := scanAllottee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// List returns all allottees ordered by registration time.
func (r *PostgresRepository) List(ctx context.Context) ([]Allottee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+allotteeColumns+` FROM allottees ORDER BY registered_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Allottee
	for rows.Next() {
		a, err := scanAllottee(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// UpdateProfile edits name and roll, returning the updated record or nil when absent.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, roll string) (*Allottee, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE allottees SET name = $2, roll = $3
		WHERE id = $1
		RETURNING `+allotteeColumns+`
	`, id, name, roll)
	a, err := scanAllottee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// Delete removes an allottee.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM allottees WHERE id = $1`, id)
	return err
}

// IsAllocated reports whether the allottee appears in any room's occupant list.
func (r *PostgresRepository) IsAllocated(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM room_occupants WHERE allottee_id = $1
	`, id).Scan(&n)
	return n > 0, err
}
