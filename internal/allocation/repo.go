package allocation

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"hostel/internal/allottee"
)

// PostgresRepository persists rooms and occupancy in Postgres.
type PostgresRepository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertRoom writes a new room.
func (r *PostgresRepository) InsertRoom(ctx context.Context, room Room) (Room, error) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO rooms (id, number, block, floor, capacity)
		VALUES ($1, $2, $3, $4, $5)
	`, room.ID, room.Number, room.Block, room.Floor, room.Capacity)
	if err != nil {
		return Room{}, err
	}
	return room, nil
}

// GetRoom returns a room with its occupants resolved, nil when absent.
func (r *PostgresRepository) GetRoom(ctx context.Context, id string) (*Room, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, number, block, floor, capacity FROM rooms WHERE id = $1
	`, id)
	var room Room
	if err := row.Scan(&room.ID, &room.Number, &room.Block, &room.Floor, &room.Capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	occupants, err := r.occupants(ctx, id)
	if err != nil {
		return nil, err
	}
	room.Occupants = occupants
	return &room, nil
}

// FindRoom looks a room up by its (block, number) key, nil when absent.
func (r *PostgresRepository) FindRoom(ctx context.Context, block, number string) (*Room, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, number, block, floor, capacity FROM rooms WHERE block = $1 AND number = $2
	`, block, number)
	var room Room
	if err := row.Scan(&room.ID, &room.Number, &room.Block, &room.Floor, &room.Capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// ListRooms returns rooms with occupants, optionally filtered by block and floor.
func (r *PostgresRepository) ListRooms(ctx context.Context, block, floor string) ([]Room, error) {
	query := `SELECT id, number, block, floor, capacity FROM rooms`
	args := []any{}
	clauses := []string{}
	if block != "" {
		args = append(args, block)
		clauses = append(clauses, "block = $1")
	}
	if floor != "" {
		args = append(args, floor)
		if len(args) == 1 {
			clauses = append(clauses, "floor = $1")
		} else {
			clauses = append(clauses, "floor = $2")
		}
	}
	if len(clauses) == 1 {
		query += " WHERE " + clauses[0]
	} else if len(clauses) == 2 {
		query += " WHERE " + clauses[0] + " AND " + clauses[1]
	}
	query += " ORDER BY block, number"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Room
	for rows.Next() {
		var room Room
		if err := rows.Scan(&room.ID, &room.Number, &room.Block, &room.Floor, &room.Capacity); err != nil {
			return nil, err
		}
		res = append(res, room)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		occupants, err := r.occupants(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Occupants = occupants
	}
	return res, nil
}

// UpdateRoom rewrites a room's attributes.
func (r *PostgresRepository) UpdateRoom(ctx context.Context, room Room) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE rooms SET number = $2, block = $3, floor = $4, capacity = $5 WHERE id = $1
	`, room.ID, room.Number, room.Block, room.Floor, room.Capacity)
	return err
}

// DeleteRoom removes a room.
func (r *PostgresRepository) DeleteRoom(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	return err
}

// RoomOf returns the room whose occupant list references the allottee,
// nil when the allottee is unallocated.
func (r *PostgresRepository) RoomOf(ctx context.Context, allotteeID string) (*Room, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT rm.id, rm.number, rm.block, rm.floor, rm.capacity
		FROM rooms rm
		JOIN room_occupants ro ON ro.room_id = rm.id
		WHERE ro.allottee_id = $1
	`, allotteeID)
	var room Room
	if err := row.Scan(&room.ID, &room.Number, &room.Block, &room.Floor, &room.Capacity); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// GetAllottee returns an allottee by id, nil when absent.
func (r *PostgresRepository) GetAllottee(ctx context.Context, id string) (*allottee.Allottee, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, email, roll, hostel, room, registered_by, registered_at
		FROM allottees WHERE id = $1
	`, id)
	var a allottee.Allottee
	if err := row.Scan(&a.ID, &a.Name, &a.Email, &a.Roll, &a.Hostel, &a.Room, &a.RegisteredBy, &a.RegisteredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// Assign adds the allottee to the room's occupant list and sets the
// back-pointer in one transaction, so a crash cannot leave the link
// half-written.
func (r *PostgresRepository) Assign(ctx context.Context, roomID, allotteeID, hostelLabel, roomNumber string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO room_occupants (room_id, allottee_id) VALUES ($1, $2)
	`, roomID, allotteeID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE allottees SET hostel = $2, room = $3 WHERE id = $1
	`, allotteeID, hostelLabel, roomNumber); err != nil {
		return err
	}
	return tx.Commit()
}

// Unassign removes the allottee from the room's occupant list and
// clears the back-pointer in one transaction.
func (r *PostgresRepository) Unassign(ctx context.Context, roomID, allotteeID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM room_occupants WHERE room_id = $1 AND allottee_id = $2
	`, roomID, allotteeID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE allottees SET hostel = NULL, room = NULL WHERE id = $1
	`, allotteeID); err != nil {
		return err
	}
	return tx.Commit()
}

// Unallocated returns allottees absent from every occupant list.
func (r *PostgresRepository) Unallocated(ctx context.Context) ([]allottee.Allottee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.email, a.roll, a.hostel, a.room, a.registered_by, a.registered_at
		FROM allottees a
		WHERE NOT EXISTS (SELECT 1 FROM room_occupants ro WHERE ro.allottee_id = a.id)
		ORDER BY a.registered_at
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

func (r *PostgresRepository) occupants(ctx context.Context, roomID string) ([]allottee.Allottee, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.name, a.email, a.roll, a.hostel, a.room, a.registered_by, a.registered_at
		FROM allottees a
		JOIN room_occupants ro ON ro.allottee_id = a.id
		WHERE ro.room_id = $1
		ORDER BY ro.assigned_at
	`, roomID)
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
