package store

import (
	"context"
	"database/sql"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		email              TEXT UNIQUE NOT NULL,
		password_hash      TEXT NOT NULL,
		section            TEXT NOT NULL,
		role               TEXT NOT NULL DEFAULT 'student',
		roll_no            TEXT NOT NULL,
		total_attended     INTEGER NOT NULL DEFAULT 0,
		total_classes      INTEGER NOT NULL DEFAULT 0,
		absent_classes     INTEGER NOT NULL DEFAULT 0,
		overall_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_users_section ON users(section)`,
	`CREATE TABLE IF NOT EXISTS subjects (
		code       TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		sections   JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS attendance_records (
		id                    TEXT PRIMARY KEY,
		student_id            TEXT NOT NULL REFERENCES users(id),
		subject_code          TEXT NOT NULL,
		subject_name          TEXT NOT NULL,
		date                  DATE NOT NULL,
		attended_classes      INTEGER NOT NULL DEFAULT 0,
		total_classes         INTEGER NOT NULL DEFAULT 0,
		individual_percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
		status                TEXT NOT NULL,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (student_id, subject_code, date),
		CHECK (attended_classes <= total_classes)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_attendance_student ON attendance_records(student_id, subject_code)`,
	`CREATE TABLE IF NOT EXISTS tickets (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL REFERENCES users(id),
		roll_no    TEXT NOT NULL,
		section    TEXT NOT NULL,
		document   TEXT NOT NULL,
		file_name  TEXT NOT NULL DEFAULT '',
		file_url   TEXT NOT NULL DEFAULT '',
		status     TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tickets_user ON tickets(user_id)`,
	`CREATE TABLE IF NOT EXISTS calendar_events (
		id          TEXT PRIMARY KEY,
		title       TEXT NOT NULL,
		date        DATE NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
}

// Migrate applies the schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}
