package domain

import "time"

// Transition names a guarded ride status change.
type Transition string

const (
	TransitionRelease  Transition = "release"
	TransitionAccept   Transition = "accept"
	TransitionArrive   Transition = "arrive"
	TransitionStart    Transition = "start"
	TransitionComplete Transition = "complete"
	TransitionCancel   Transition = "cancel"
)

type transitionRule struct {
	from          []RideStatus
	to            RideStatus
	requireDriver bool
}

// Only these moves are legal; everything else is a conflict.
var transitionRules = map[Transition]transitionRule{
	TransitionRelease:  {from: []RideStatus{RideStatusScheduled}, to: RideStatusSearching},
	TransitionAccept:   {from: []RideStatus{RideStatusSearching}, to: RideStatusAssigned},
	TransitionArrive:   {from: []RideStatus{RideStatusAssigned}, to: RideStatusArriving, requireDriver: true},
	TransitionStart:    {from: []RideStatus{RideStatusAssigned, RideStatusArriving}, to: RideStatusOnTrip, requireDriver: true},
	TransitionComplete: {from: []RideStatus{RideStatusOnTrip}, to: RideStatusCompleted, requireDriver: true},
	TransitionCancel: {from: []RideStatus{
		RideStatusScheduled, RideStatusSearching, RideStatusAssigned, RideStatusArriving, RideStatusOnTrip,
	}, to: RideStatusCancelled},
}

// From returns the statuses the transition may start from.
func (t Transition) From() []RideStatus {
	return transitionRules[t].from
}

// To returns the status the transition ends in.
func (t Transition) To() RideStatus {
	return transitionRules[t].to
}

// RequiresAssignedDriver reports whether the caller must be the ride's driver.
func (t Transition) RequiresAssignedDriver() bool {
	return transitionRules[t].requireDriver
}

// Allows reports whether the transition may start from status.
func (t Transition) Allows(status RideStatus) bool {
	for _, s := range transitionRules[t].from {
		if s == status {
			return true
		}
	}
	return false
}

// StatusChange is the conditional update applied to a ride in one atomic
// store operation. The store matches on ride id, one of From, and (when
// DriverID is set and Assign is false) the assigned driver.
type StatusChange struct {
	RideID     string
	Transition Transition
	From       []RideStatus
	To         RideStatus
	At         time.Time

	// DriverID is written when Assign is true and matched otherwise.
	DriverID string
	Assign   bool

	// RiderID, when set, must match the ride's rider.
	RiderID string

	// Completion fields.
	Fare        float64
	DistanceKm  float64
	DurationMin float64

	// Cancellation fields.
	CancelledBy  CancelledBy
	CancelReason string
}

// NewStatusChange builds the change for t with its rule's from/to statuses.
func NewStatusChange(t Transition, rideID string, at time.Time) StatusChange {
	return StatusChange{
		RideID:     rideID,
		Transition: t,
		From:       t.From(),
		To:         t.To(),
		At:         at,
	}
}

// Apply mutates ride the way the store applies c. Callers must have checked
// the guards already.
func (c StatusChange) Apply(ride *Ride) {
	at := c.At
	ride.Status = c.To
	ride.UpdatedAt = at
	switch c.Transition {
	case TransitionAccept:
		ride.DriverID = c.DriverID
		ride.AssignedAt = &at
	case TransitionStart:
		ride.StartedAt = &at
	case TransitionComplete:
		ride.CompletedAt = &at
		ride.Fare = c.Fare
		ride.DistanceKm = c.DistanceKm
		ride.DurationMin = c.DurationMin
	case TransitionCancel:
		ride.CancelledAt = &at
		ride.CancelledBy = c.CancelledBy
		ride.CancelReason = c.CancelReason
	}
}
