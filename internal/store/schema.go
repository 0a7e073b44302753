package store

import "context"

// Every entity schema lives here so the table definitions cannot drift
// between packages. Repositories import the tables, never redefine them.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS admins (
		id    TEXT PRIMARY KEY,
		name  TEXT,
		email TEXT NOT NULL UNIQUE,
		role  TEXT NOT NULL DEFAULT 'admin'
	)`,
	`CREATE TABLE IF NOT EXISTS allottees (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL UNIQUE,
		roll          TEXT NOT NULL DEFAULT '',
		hostel        TEXT,
		room          TEXT,
		registered_by TEXT NOT NULL,
		registered_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CHECK ((hostel IS NULL) = (room IS NULL))
	)`,
	`CREATE TABLE IF NOT EXISTS rooms (
		id       TEXT PRIMARY KEY,
		number   TEXT NOT NULL,
		block    TEXT NOT NULL,
		floor    TEXT NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity > 0),
		UNIQUE (block, number)
	)`,
	`CREATE TABLE IF NOT EXISTS room_occupants (
		room_id     TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		allottee_id TEXT NOT NULL UNIQUE REFERENCES allottees(id),
		assigned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (room_id, allottee_id)
	)`,
	`CREATE TABLE IF NOT EXISTS attendance (
		id          TEXT PRIMARY KEY,
		allottee_id TEXT NOT NULL REFERENCES allottees(id),
		day         DATE NOT NULL,
		status      TEXT NOT NULL CHECK (status IN ('present', 'absent')),
		marked_by   TEXT NOT NULL,
		remarks     TEXT NOT NULL DEFAULT '',
		UNIQUE (allottee_id, day)
	)`,
	`CREATE TABLE IF NOT EXISTS complaints (
		id           TEXT PRIMARY KEY,
		title        TEXT NOT NULL,
		description  TEXT NOT NULL,
		category     TEXT NOT NULL,
		status       TEXT NOT NULL DEFAULT 'Open' CHECK (status IN ('Open', 'In Progress', 'Resolved')),
		priority     TEXT NOT NULL DEFAULT 'Medium' CHECK (priority IN ('Low', 'Medium', 'High')),
		room_number  TEXT NOT NULL,
		hostel_block TEXT NOT NULL,
		student_id   TEXT NOT NULL,
		resolution   TEXT NOT NULL DEFAULT '',
		created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		admin_email TEXT NOT NULL,
		token       TEXT NOT NULL,
		expires_at  TIMESTAMPTZ NOT NULL,
		revoked     BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id         TEXT PRIMARY KEY,
		kind       TEXT NOT NULL,
		detail     TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}

// EnsureSchema creates all tables when missing. Safe to call on every boot.
func (d *DB) EnsureSchema(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := d.Client.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
