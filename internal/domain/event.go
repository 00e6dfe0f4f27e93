package domain

// EventName identifies a real-time event.
type EventName string

const (
	EventRideRequested        EventName = "ride_requested"
	EventRideAssigned         EventName = "ride_assigned"
	EventDriverArriving       EventName = "driver_arriving"
	EventRideStarted          EventName = "ride_started"
	EventRideCompleted        EventName = "ride_completed"
	EventRideCancelled        EventName = "ride_cancelled"
	EventDriverLocationUpdate EventName = "driver_location_update"
	EventSOSAlert             EventName = "sos_alert"
)

// TransitionEvent maps a lifecycle transition to the event it publishes.
var TransitionEvent = map[Transition]EventName{
	TransitionRelease:  EventRideRequested,
	TransitionAccept:   EventRideAssigned,
	TransitionArrive:   EventDriverArriving,
	TransitionStart:    EventRideStarted,
	TransitionComplete: EventRideCompleted,
	TransitionCancel:   EventRideCancelled,
}

// Event is one message published to a ride's room.
type Event struct {
	Name   EventName
	RideID string
	Data   map[string]any
}

// NewRideEvent builds an event carrying the ride's identity and status.
func NewRideEvent(name EventName, ride *Ride) Event {
	return Event{
		Name:   name,
		RideID: ride.ID,
		Data: map[string]any{
			"rideId":   ride.ID,
			"status":   ride.Status,
			"riderId":  ride.RiderID,
			"driverId": ride.DriverID,
		},
	}
}

// With returns a copy of e with an extra data field.
func (e Event) With(key string, value any) Event {
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data[key] = value
	e.Data = data
	return e
}
