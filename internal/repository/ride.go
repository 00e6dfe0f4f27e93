package repository

import (
	"context"
	"time"

	"rapidride/internal/domain"
)

// Page selects a window of a listing. Limit <= 0 means no limit.
type Page struct {
	Limit  int
	Offset int
}

// RideFilter narrows a ride listing. An empty Statuses slice matches all.
type RideFilter struct {
	Statuses []domain.RideStatus

	// CompletedSince, when set, keeps only rides completed at or after it.
	CompletedSince *time.Time

	Page Page
}

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride. It returns ErrActiveRideExists when the
	// ride is active and the rider already has a current ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// GetCurrentByRider returns the rider's current ride or ErrNotFound.
	GetCurrentByRider(ctx context.Context, riderID string) (*domain.Ride, error)

	// GetCurrentByDriver returns the driver's current ride or ErrNotFound.
	GetCurrentByDriver(ctx context.Context, driverID string) (*domain.Ride, error)

	// ListByRider lists a rider's rides, newest first, with the total count.
	ListByRider(ctx context.Context, riderID string, filter RideFilter) ([]*domain.Ride, int, error)

	// ListByDriver lists a driver's rides, newest first, with the total count.
	ListByDriver(ctx context.Context, driverID string, filter RideFilter) ([]*domain.Ride, int, error)

	// ListSearching lists rides waiting for a driver, oldest first.
	ListSearching(ctx context.Context, limit int) ([]*domain.Ride, error)

	// ListDueScheduled lists scheduled rides whose pickup time is at or
	// before the given instant.
	ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error)

	// Transition applies change as one conditional update and returns the
	// updated ride. When no row matches it returns ErrNotFound,
	// ErrWrongParty or ErrStatusMismatch. Assigning a driver who already has
	// a current ride returns ErrDriverBusy. Completing a ride also increments
	// the driver's total_rides in the same transaction.
	Transition(ctx context.Context, change domain.StatusChange) (*domain.Ride, error)
}
