package repository

import (
	"errors"

	"rapidride/internal/domain"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicateEmail is returned when a user with the same email exists.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrActiveRideExists is returned when a rider already has a current ride.
	ErrActiveRideExists = errors.New("rider already has an active ride")

	// ErrDriverBusy is returned when a driver accepting a ride already has
	// a current ride.
	ErrDriverBusy = errors.New("driver already has an active ride")

	// ErrWrongParty is returned when a conditional update was rejected because
	// the caller is not the ride's rider or assigned driver.
	ErrWrongParty = errors.New("caller is not a party to this ride")

	// ErrStatusMismatch is returned when a conditional update was rejected
	// because the ride is not in an allowed status.
	ErrStatusMismatch = errors.New("ride status does not allow this transition")
)

// ClassifyRejected explains why change matched no row, given the ride as it
// exists now. Party checks win over status checks.
func ClassifyRejected(current *domain.Ride, change domain.StatusChange) error {
	if change.RiderID != "" && current.RiderID != change.RiderID {
		return ErrWrongParty
	}
	if change.DriverID != "" && !change.Assign && current.DriverID != change.DriverID {
		return ErrWrongParty
	}
	return ErrStatusMismatch
}

// Matches reports whether change would apply to current.
func Matches(current *domain.Ride, change domain.StatusChange) bool {
	if change.RiderID != "" && current.RiderID != change.RiderID {
		return false
	}
	if change.DriverID != "" && !change.Assign && current.DriverID != change.DriverID {
		return false
	}
	for _, s := range change.From {
		if current.Status == s {
			return true
		}
	}
	return false
}
