package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Admin is a recognized actor allowed to mutate hostel state.
type Admin struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Repository persists admin records in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindAdmin returns the admin with the given email, or nil when absent.
func (r *Repository) FindAdmin(ctx context.Context, email string) (*Admin, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, COALESCE(name, ''), email, role FROM admins WHERE email = $1
	`, email)
	var a Admin
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Role); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// AdminExists reports whether an admin with the email is on record.
func (r *Repository) AdminExists(ctx context.Context, email string) (bool, error) {
	a, err := r.FindAdmin(ctx, email)
	return a != nil, err
}

// UpsertAdmin ensures an admin record exists. Used by seeding and ops tooling.
func (r *Repository) UpsertAdmin(ctx context.Context, name, email string) error {
	if email == "" {
		return errors.New("admin email required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO admins (id, name, email)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name
	`, uuid.NewString(), name, email)
	return err
}

// SaveRefreshToken stores a refresh token for rotation checks.
func (r *Repository) SaveRefreshToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO refresh_tokens (admin_email, token, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, email, token, expiresAt)
	return err
}

// RefreshTokenValid reports whether the token is on record for the
// admin, unrevoked and unexpired.
func (r *Repository) RefreshTokenValid(ctx context.Context, email, token string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM refresh_tokens
		WHERE admin_email = $1 AND token = $2 AND NOT revoked AND expires_at > NOW()
	`, email, token).Scan(&n)
	return n > 0, err
}

// RevokeRefreshToken marks a token unusable. Rotation revokes the old
// token as soon as its replacement is issued.
func (r *Repository) RevokeRefreshToken(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1
	`, token)
	return err
}
