package service

import (
	"context"
	"log/slog"
	"time"

	"rapidride/internal/repository"
)

// PositionRecorder stores a driver's reported position in the account
// record and, when configured, in the real-time location store.
type PositionRecorder struct {
	users     repository.UserRepository
	locations LocationStore
	logger    *slog.Logger
	timeout   time.Duration
}

// NewPositionRecorder creates a PositionRecorder. locations may be nil.
func NewPositionRecorder(users repository.UserRepository, locations LocationStore, logger *slog.Logger, storeTimeout time.Duration) *PositionRecorder {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PositionRecorder{users: users, locations: locations, logger: logger, timeout: storeTimeout}
}

// Record validates and stores a position.
func (r *PositionRecorder) Record(ctx context.Context, driverID string, lat, lng float64) error {
	if !validCoordinates(lat, lng) {
		return ErrInvalidLocation
	}

	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if r.locations != nil {
		if err := r.locations.UpdateLocation(storeCtx, driverID, lat, lng); err != nil {
			return err
		}
	}
	return r.users.UpdateLocation(storeCtx, driverID, lat, lng)
}

// Forget drops the driver from the real-time location store.
func (r *PositionRecorder) Forget(ctx context.Context, driverID string) {
	if r.locations == nil {
		return
	}
	storeCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.locations.RemoveLocation(storeCtx, driverID); err != nil {
		r.logger.Warn("location removal failed", "driver_id", driverID, "error", err)
	}
}
