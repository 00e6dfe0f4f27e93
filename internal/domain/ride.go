package domain

import "time"

// RideStatus represents the current status of a ride.
type RideStatus string

const (
	RideStatusScheduled RideStatus = "scheduled"
	RideStatusSearching RideStatus = "searching"
	RideStatusAssigned  RideStatus = "assigned"
	RideStatusArriving  RideStatus = "arriving"
	RideStatusOnTrip    RideStatus = "on_trip"
	RideStatusCompleted RideStatus = "completed"
	RideStatusCancelled RideStatus = "cancelled"
)

// ActiveRideStatuses are the statuses that make a ride the rider's current ride.
var ActiveRideStatuses = []RideStatus{
	RideStatusSearching,
	RideStatusAssigned,
	RideStatusArriving,
	RideStatusOnTrip,
}

// ParseRideStatus normalizes a raw status. The legacy "in_progress" value
// maps to on_trip.
func ParseRideStatus(s string) (RideStatus, bool) {
	if s == "in_progress" {
		return RideStatusOnTrip, true
	}
	switch RideStatus(s) {
	case RideStatusScheduled, RideStatusSearching, RideStatusAssigned, RideStatusArriving,
		RideStatusOnTrip, RideStatusCompleted, RideStatusCancelled:
		return RideStatus(s), true
	default:
		return "", false
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s RideStatus) IsTerminal() bool {
	return s == RideStatusCompleted || s == RideStatusCancelled
}

// IsActive reports whether the status counts toward the one-current-ride rule.
func (s RideStatus) IsActive() bool {
	for _, a := range ActiveRideStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// RideType is the service class requested by the rider.
type RideType string

const (
	RideTypeEconomy RideType = "economy"
	RideTypeComfort RideType = "comfort"
	RideTypePremium RideType = "premium"
	RideTypeShared  RideType = "shared"
)

// ParseRideType validates a ride type. Empty input defaults to economy.
func ParseRideType(s string) (RideType, bool) {
	switch RideType(s) {
	case "":
		return RideTypeEconomy, true
	case RideTypeEconomy, RideTypeComfort, RideTypePremium, RideTypeShared:
		return RideType(s), true
	default:
		return "", false
	}
}

// CancelledBy records which party cancelled a ride.
type CancelledBy string

const (
	CancelledByRider  CancelledBy = "rider"
	CancelledByDriver CancelledBy = "driver"
)

// Location is an address with optional coordinates.
type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// Ride represents a ride request and its lifecycle.
type Ride struct {
	ID            string
	RiderID       string
	DriverID      string
	Pickup        Location
	Dropoff       Location
	Type          RideType
	EstimatedFare float64
	Fare          float64
	DistanceKm    float64
	DurationMin   float64
	Status        RideStatus

	ScheduledAt *time.Time
	AssignedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	CancelledBy  CancelledBy
	CancelReason string
	CancelledAt  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsParticipant reports whether userID is the ride's rider or assigned driver.
func (r *Ride) IsParticipant(userID string) bool {
	return userID != "" && (r.RiderID == userID || r.DriverID == userID)
}

// Counterpart returns the id of the other party on the ride, which may be
// empty while no driver is assigned.
func (r *Ride) Counterpart(userID string) string {
	if userID == r.RiderID {
		return r.DriverID
	}
	return r.RiderID
}
