package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/lib/pq"
)

// Constraint names referenced when mapping unique violations.
const (
	usersEmailConstraint     = "users_email_key"
	oneCurrentRideConstraint = "rides_one_current_per_rider"
	oneDriverRideConstraint  = "rides_one_current_per_driver"
	pgUniqueViolation        = "23505"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		phone         TEXT NOT NULL DEFAULT '',
		avatar        TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL,
		rating        DOUBLE PRECISION NOT NULL DEFAULT 5,
		total_rides   INTEGER NOT NULL DEFAULT 0,
		online        BOOLEAN NOT NULL DEFAULT FALSE,
		lat           DOUBLE PRECISION NOT NULL DEFAULT 0,
		lng           DOUBLE PRECISION NOT NULL DEFAULT 0,
		vehicle       JSONB NOT NULL DEFAULT '{}',
		documents     JSONB NOT NULL DEFAULT '{}',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT users_email_key UNIQUE (email)
	)`,
	`CREATE TABLE IF NOT EXISTS rides (
		id              TEXT PRIMARY KEY,
		rider_id        TEXT NOT NULL REFERENCES users(id),
		driver_id       TEXT REFERENCES users(id),
		pickup_address  TEXT NOT NULL,
		pickup_lat      DOUBLE PRECISION,
		pickup_lng      DOUBLE PRECISION,
		dropoff_address TEXT NOT NULL,
		dropoff_lat     DOUBLE PRECISION,
		dropoff_lng     DOUBLE PRECISION,
		ride_type       TEXT NOT NULL DEFAULT 'economy',
		estimated_fare  DOUBLE PRECISION NOT NULL DEFAULT 0,
		fare            DOUBLE PRECISION NOT NULL DEFAULT 0,
		distance_km     DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_min    DOUBLE PRECISION NOT NULL DEFAULT 0,
		status          TEXT NOT NULL,
		scheduled_at    TIMESTAMPTZ,
		assigned_at     TIMESTAMPTZ,
		started_at      TIMESTAMPTZ,
		completed_at    TIMESTAMPTZ,
		cancelled_by    TEXT,
		cancel_reason   TEXT,
		cancelled_at    TIMESTAMPTZ,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rides_one_current_per_rider
		ON rides (rider_id) WHERE status IN ('searching', 'assigned', 'arriving', 'on_trip')`,
	`CREATE UNIQUE INDEX IF NOT EXISTS rides_one_current_per_driver
		ON rides (driver_id) WHERE status IN ('assigned', 'arriving', 'on_trip')`,
	`CREATE INDEX IF NOT EXISTS rides_driver_idx ON rides (driver_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS rides_status_idx ON rides (status, created_at)`,
	`CREATE INDEX IF NOT EXISTS rides_scheduled_idx ON rides (scheduled_at) WHERE status = 'scheduled'`,
}

// Migrate creates the tables and indexes if they do not exist.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// uniqueViolation reports whether err is a unique violation on constraint.
func uniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return string(pqErr.Code) == pgUniqueViolation && pqErr.Constraint == constraint
}
