package service

import (
	"errors"
	"fmt"
)

// Error classes. Handlers map these to status codes with errors.Is.
var (
	// ErrValidation is returned for malformed or incomplete input.
	ErrValidation = errors.New("validation failed")

	// ErrAuthentication is returned for bad credentials or sessions.
	ErrAuthentication = errors.New("authentication failed")

	// ErrForbidden is returned when the caller may not act on a resource.
	ErrForbidden = errors.New("forbidden")

	// ErrConflict is returned when the resource state rejects the operation.
	ErrConflict = errors.New("conflict")
)

var (
	// ErrMissingAddress is returned when pickup or dropoff is empty.
	ErrMissingAddress = fmt.Errorf("%w: pickup and drop locations are required", ErrValidation)

	// ErrInvalidRideType is returned for a ride type outside the closed set.
	ErrInvalidRideType = fmt.Errorf("%w: invalid ride type", ErrValidation)

	// ErrScheduleInPast is returned when a scheduled pickup is not in the future.
	ErrScheduleInPast = fmt.Errorf("%w: scheduled time must be in the future", ErrValidation)

	// ErrInvalidRole is returned for an unknown role.
	ErrInvalidRole = fmt.Errorf("%w: invalid role", ErrValidation)

	// ErrInvalidCredentialsInput is returned when signup or login fields are missing.
	ErrInvalidCredentialsInput = fmt.Errorf("%w: name, email and password are required", ErrValidation)

	// ErrPasswordTooShort is returned when a signup password is too short.
	ErrPasswordTooShort = fmt.Errorf("%w: password must be at least 6 characters", ErrValidation)

	// ErrEmptyName is returned when a profile update clears the name.
	ErrEmptyName = fmt.Errorf("%w: name must not be empty", ErrValidation)

	// ErrInvalidPeriod is returned for an unknown reporting period.
	ErrInvalidPeriod = fmt.Errorf("%w: invalid period", ErrValidation)

	// ErrInvalidStatusFilter is returned for an unknown ride status filter.
	ErrInvalidStatusFilter = fmt.Errorf("%w: invalid status filter", ErrValidation)

	// ErrInvalidLocation is returned when coordinates are out of range.
	ErrInvalidLocation = fmt.Errorf("%w: invalid location", ErrValidation)

	// ErrInvalidTripMeasurements is returned for a negative fare, distance or duration.
	ErrInvalidTripMeasurements = fmt.Errorf("%w: fare, distance and duration must not be negative", ErrValidation)

	// ErrMissingSupportFields is returned when a support request lacks subject or message.
	ErrMissingSupportFields = fmt.Errorf("%w: subject and message are required", ErrValidation)

	// ErrInvalidCredentials is returned when email or password do not match.
	ErrInvalidCredentials = fmt.Errorf("%w: invalid email or password", ErrAuthentication)

	// ErrRoleMismatch is returned when login selects a role the account does not have.
	ErrRoleMismatch = fmt.Errorf("%w: Incorrect role selected", ErrAuthentication)

	// ErrAdminSignup is returned when signup requests the admin role.
	ErrAdminSignup = fmt.Errorf("%w: admin accounts cannot be self-registered", ErrForbidden)

	// ErrRoleNotAllowed is returned when the caller's role cannot perform the operation.
	ErrRoleNotAllowed = fmt.Errorf("%w: role not allowed", ErrForbidden)

	// ErrNotRideParticipant is returned when the caller is not the ride's rider or driver.
	ErrNotRideParticipant = fmt.Errorf("%w: not a participant of this ride", ErrForbidden)

	// ErrNotAssignedDriver is returned when a driver acts on a ride assigned to someone else.
	ErrNotAssignedDriver = fmt.Errorf("%w: driver not assigned to this ride", ErrForbidden)

	// ErrNotRideOwner is returned when a rider acts on another rider's ride.
	ErrNotRideOwner = fmt.Errorf("%w: ride belongs to another rider", ErrForbidden)

	// ErrRideNotAvailable is returned when accepting a ride that is no longer searching.
	ErrRideNotAvailable = fmt.Errorf("%w: ride is not available", ErrConflict)

	// ErrInvalidTransition is returned when the ride status does not allow the operation.
	ErrInvalidTransition = fmt.Errorf("%w: ride status does not allow this action", ErrConflict)

	// ErrActiveRideExists is returned when a rider already has a current ride.
	ErrActiveRideExists = fmt.Errorf("%w: rider already has an active ride", ErrConflict)

	// ErrDriverBusy is returned when a driver accepts a ride while another
	// of theirs is still active.
	ErrDriverBusy = fmt.Errorf("%w: driver already has an active ride", ErrConflict)

	// ErrRideNotCompleted is returned when an invoice is requested for an unfinished ride.
	ErrRideNotCompleted = fmt.Errorf("%w: ride is not completed", ErrConflict)

	// ErrEmailTaken is returned when signup uses a registered email.
	ErrEmailTaken = fmt.Errorf("%w: email already registered", ErrConflict)

	// ErrNoCurrentRide is returned when an operation needs a current ride and there is none.
	ErrNoCurrentRide = fmt.Errorf("%w: no active ride", ErrConflict)
)

// PublicMessage returns the client-facing part of err: the text after the
// class prefix for wrapped class errors, err.Error() otherwise.
func PublicMessage(err error) string {
	msg := err.Error()
	for _, class := range []error{ErrValidation, ErrAuthentication, ErrForbidden, ErrConflict} {
		prefix := class.Error() + ": "
		if errors.Is(err, class) && len(msg) > len(prefix) && msg[:len(prefix)] == prefix {
			return msg[len(prefix):]
		}
	}
	return msg
}
