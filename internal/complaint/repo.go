package complaint

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
)

// PostgresRepository persists complaints in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const complaintSelect = `
	SELECT c.id, c.title, c.description, c.category, c.status, c.priority,
	       c.room_number, c.hostel_block, c.student_id, c.resolution,
	       c.created_at, c.updated_at, a.name, a.email
	FROM complaints c
	LEFT JOIN allottees a ON a.id = c.student_id
`

func scanComplaint(row interface{ Scan(...any) error }) (Complaint, error) {
	var c Complaint
	var name, email sql.NullString
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.Category, &c.Status, &c.Priority,
		&c.RoomNumber, &c.HostelBlock, &c.StudentID, &c.Resolution,
		&c.CreatedAt, &c.UpdatedAt, &name, &email)
	if err != nil {
		return Complaint{}, err
	}
	if email.Valid {
		c.Student = &StudentRef{Name: name.String, Email: email.String}
	}
	return c, nil
}

// Insert writes a new complaint.
func (r *PostgresRepository) Insert(ctx context.Context, c Complaint) (Complaint, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO complaints (id, title, description, category, status, priority,
			room_number, hostel_block, student_id, resolution, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.Title, c.Description, c.Category, c.Status, c.Priority,
		c.RoomNumber, c.HostelBlock, c.StudentID, c.Resolution, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return Complaint{}, err
	}
	stored, err := r.GetByID(ctx, c.ID)
	if err != nil {
		return Complaint{}, err
	}
	return *stored, nil
}

// GetByID returns a complaint with its student resolved, nil when absent.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Complaint, error) {
	row := r.db.QueryRowContext(ctx, complaintSelect+` WHERE c.id = $1`, id)
	c, err := scanComplaint(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// List returns complaints newest first, optionally filtered.
func (r *PostgresRepository) List(ctx context.Context, studentID string, status Status) ([]Complaint, error) {
	query := complaintSelect
	args := []any{}
	switch {
	case studentID != "" && status != "":
		query += ` WHERE c.student_id = $1 AND c.status = $2`
		args = append(args, studentID, status)
	case studentID != "":
		query += ` WHERE c.student_id = $1`
		args = append(args, studentID)
	case status != "":
		query += ` WHERE c.status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY c.created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Complaint
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// Update rewrites status, resolution and the updated timestamp.
func (r *PostgresRepository) Update(ctx context.Context, c Complaint) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE complaints SET status = $2, resolution = $3, updated_at = $4 WHERE id = $1
	`, c.ID, c.Status, c.Resolution, c.UpdatedAt)
	return err
}

// Delete removes a complaint.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM complaints WHERE id = $1`, id)
	return err
}

// StudentExists reports whether an allottee id resolves.
func (r *PostgresRepository) StudentExists(ctx context.Context, id string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM allottees WHERE id = $1`, id).Scan(&n)
	return n > 0, err
}
