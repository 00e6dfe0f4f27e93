package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	db *sql.DB
	q  queryer
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{db: db, q: db}
}

const rideColumns = `id, rider_id, driver_id, pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng, ride_type, estimated_fare, fare,
	distance_km, duration_min, status, scheduled_at, assigned_at, started_at,
	completed_at, cancelled_by, cancel_reason, cancelled_at, created_at, updated_at`

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, $24)
	`
	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.RiderID,
		nullString(ride.DriverID),
		ride.Pickup.Address,
		ride.Pickup.Lat,
		ride.Pickup.Lng,
		ride.Dropoff.Address,
		ride.Dropoff.Lat,
		ride.Dropoff.Lng,
		ride.Type,
		ride.EstimatedFare,
		ride.Fare,
		ride.DistanceKm,
		ride.DurationMin,
		ride.Status,
		ride.ScheduledAt,
		ride.AssignedAt,
		ride.StartedAt,
		ride.CompletedAt,
		nullString(string(ride.CancelledBy)),
		nullString(ride.CancelReason),
		ride.CancelledAt,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	if uniqueViolation(err, oneCurrentRideConstraint) {
		return repository.ErrActiveRideExists
	}
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`
	return scanRide(r.q.QueryRowContext(ctx, query, id))
}

// GetCurrentByRider returns the rider's current ride.
func (r *RideRepository) GetCurrentByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE rider_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1
	`
	return scanRide(r.q.QueryRowContext(ctx, query, riderID, statusArray(domain.ActiveRideStatuses)))
}

// GetCurrentByDriver returns the driver's current ride.
func (r *RideRepository) GetCurrentByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE driver_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1
	`
	return scanRide(r.q.QueryRowContext(ctx, query, driverID, statusArray(domain.ActiveRideStatuses)))
}

// ListByRider lists a rider's rides.
func (r *RideRepository) ListByRider(ctx context.Context, riderID string, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	return r.listBy(ctx, "rider_id", riderID, filter)
}

// ListByDriver lists a driver's rides.
func (r *RideRepository) ListByDriver(ctx context.Context, driverID string, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	return r.listBy(ctx, "driver_id", driverID, filter)
}

func (r *RideRepository) listBy(ctx context.Context, column, id string, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	where := []string{column + " = $1"}
	args := []any{id}
	if len(filter.Statuses) > 0 {
		args = append(args, statusArray(filter.Statuses))
		where = append(where, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if filter.CompletedSince != nil {
		args = append(args, *filter.CompletedSince)
		where = append(where, fmt.Sprintf("completed_at >= $%d", len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rides WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + rideColumns + ` FROM rides WHERE ` + clause + ` ORDER BY created_at DESC`
	if filter.Page.Limit > 0 {
		args = append(args, filter.Page.Limit, filter.Page.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rides, err := r.queryRides(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return rides, total, nil
}

// ListSearching lists rides waiting for a driver.
func (r *RideRepository) ListSearching(ctx context.Context, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`
	return r.queryRides(ctx, query, domain.RideStatusSearching, limit)
}

// ListDueScheduled lists scheduled rides due at or before the given instant.
func (r *RideRepository) ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error) {
	query := `
		SELECT ` + rideColumns + ` FROM rides
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY scheduled_at ASC LIMIT $3
	`
	return r.queryRides(ctx, query, domain.RideStatusScheduled, before, limit)
}

// Transition applies change as a single conditional UPDATE. Completion also
// bumps the driver's total_rides in the same transaction.
func (r *RideRepository) Transition(ctx context.Context, change domain.StatusChange) (*domain.Ride, error) {
	if change.Transition != domain.TransitionComplete || r.db == nil {
		return r.transition(ctx, change)
	}

	var ride *domain.Ride
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var err error
		if ride, err = (&RideRepository{q: tx}).transition(ctx, change); err != nil {
			return err
		}
		return (&UserRepository{q: tx}).incrementTotalRides(ctx, ride.DriverID)
	})
	if err != nil {
		return nil, err
	}
	return ride, nil
}

func (r *RideRepository) transition(ctx context.Context, change domain.StatusChange) (*domain.Ride, error) {
	args := []any{change.To, change.At}
	set := []string{"status = $1", "updated_at = $2"}
	addSet := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	switch change.Transition {
	case domain.TransitionAccept:
		addSet("driver_id", change.DriverID)
		addSet("assigned_at", change.At)
	case domain.TransitionStart:
		addSet("started_at", change.At)
	case domain.TransitionComplete:
		addSet("completed_at", change.At)
		addSet("fare", change.Fare)
		addSet("distance_km", change.DistanceKm)
		addSet("duration_min", change.DurationMin)
	case domain.TransitionCancel:
		addSet("cancelled_at", change.At)
		addSet("cancelled_by", string(change.CancelledBy))
		addSet("cancel_reason", nullString(change.CancelReason))
	}

	args = append(args, change.RideID, statusArray(change.From))
	where := []string{fmt.Sprintf("id = $%d", len(args)-1), fmt.Sprintf("status = ANY($%d)", len(args))}
	if change.RiderID != "" {
		args = append(args, change.RiderID)
		where = append(where, fmt.Sprintf("rider_id = $%d", len(args)))
	}
	if change.DriverID != "" && !change.Assign {
		args = append(args, change.DriverID)
		where = append(where, fmt.Sprintf("driver_id = $%d", len(args)))
	}

	query := `UPDATE rides SET ` + strings.Join(set, ", ") +
		` WHERE ` + strings.Join(where, " AND ") +
		` RETURNING ` + rideColumns

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, args...))
	if err == nil {
		return ride, nil
	}
	if uniqueViolation(err, oneCurrentRideConstraint) {
		return nil, repository.ErrActiveRideExists
	}
	if uniqueViolation(err, oneDriverRideConstraint) {
		return nil, repository.ErrDriverBusy
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	current, err := r.GetByID(ctx, change.RideID)
	if err != nil {
		return nil, err
	}
	return nil, repository.ClassifyRejected(current, change)
}

func (r *RideRepository) queryRides(ctx context.Context, query string, args ...any) ([]*domain.Ride, error) {
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID, cancelledBy, cancelReason sql.NullString
	var pickupLat, pickupLng, dropoffLat, dropoffLng sql.NullFloat64
	var scheduledAt, assignedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&ride.ID,
		&ride.RiderID,
		&driverID,
		&ride.Pickup.Address,
		&pickupLat,
		&pickupLng,
		&ride.Dropoff.Address,
		&dropoffLat,
		&dropoffLng,
		&ride.Type,
		&ride.EstimatedFare,
		&ride.Fare,
		&ride.DistanceKm,
		&ride.DurationMin,
		&ride.Status,
		&scheduledAt,
		&assignedAt,
		&startedAt,
		&completedAt,
		&cancelledBy,
		&cancelReason,
		&cancelledAt,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.CancelledBy = domain.CancelledBy(cancelledBy.String)
	ride.CancelReason = cancelReason.String
	ride.Pickup.Lat = floatPtr(pickupLat)
	ride.Pickup.Lng = floatPtr(pickupLng)
	ride.Dropoff.Lat = floatPtr(dropoffLat)
	ride.Dropoff.Lng = floatPtr(dropoffLng)
	ride.ScheduledAt = timePtr(scheduledAt)
	ride.AssignedAt = timePtr(assignedAt)
	ride.StartedAt = timePtr(startedAt)
	ride.CompletedAt = timePtr(completedAt)
	ride.CancelledAt = timePtr(cancelledAt)

	return &ride, nil
}

func statusArray(statuses []domain.RideStatus) any {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return pq.Array(out)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
