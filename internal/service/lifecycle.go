package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/domain"
	"rapidride/internal/metrics"
	"rapidride/internal/repository"
)

// DefaultStoreTimeout bounds a single store round trip.
const DefaultStoreTimeout = 5 * time.Second

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string
	Role domain.Role
}

// LifecycleDeps holds the collaborators of a Lifecycle. Only Rides is required.
type LifecycleDeps struct {
	Rides        repository.RideRepository
	Publisher    EventPublisher
	Cache        RideCache
	Notifier     Notifier
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	StoreTimeout time.Duration
	Now          func() time.Time
}

// Lifecycle owns every ride status change. Each transition is one
// conditional store update followed by event publication.
type Lifecycle struct {
	rides     repository.RideRepository
	publisher EventPublisher
	cache     RideCache
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	timeout   time.Duration
	now       func() time.Time
}

// NewLifecycle creates a Lifecycle.
func NewLifecycle(deps LifecycleDeps) *Lifecycle {
	l := &Lifecycle{
		rides:     deps.Rides,
		publisher: deps.Publisher,
		cache:     deps.Cache,
		notifier:  deps.Notifier,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		timeout:   deps.StoreTimeout,
		now:       deps.Now,
	}
	if l.publisher == nil {
		l.publisher = nopPublisher{}
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.timeout <= 0 {
		l.timeout = DefaultStoreTimeout
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// RequestRideInput contains the parameters for requesting a ride.
type RequestRideInput struct {
	Rider    Actor
	Pickup   domain.Location
	Dropoff  domain.Location
	RideType string
}

// ScheduleRideInput contains the parameters for scheduling a ride.
type ScheduleRideInput struct {
	RequestRideInput
	ScheduledAt time.Time
}

// CompleteRideInput contains the parameters for completing a ride.
type CompleteRideInput struct {
	RideID      string
	Driver      Actor
	FinalFare   float64
	DistanceKm  float64
	DurationMin float64
}

// CancelRideInput contains the parameters for cancelling a ride.
type CancelRideInput struct {
	RideID string
	Actor  Actor
	Reason string
}

// Request creates a ride in searching and offers it to connected drivers.
func (l *Lifecycle) Request(ctx context.Context, in RequestRideInput) (*domain.Ride, error) {
	ride, err := l.newRide(in)
	if err != nil {
		return nil, err
	}
	ride.Status = domain.RideStatusSearching

	if err := l.create(ctx, ride); err != nil {
		return nil, err
	}

	l.logger.Info("ride requested",
		"ride_id", ride.ID,
		"rider_id", ride.RiderID,
		"ride_type", ride.Type,
	)
	l.offerToDrivers(ctx, ride)
	return ride, nil
}

// Schedule creates a ride in scheduled. The release job moves it to
// searching shortly before ScheduledAt.
func (l *Lifecycle) Schedule(ctx context.Context, in ScheduleRideInput) (*domain.Ride, error) {
	ride, err := l.newRide(in.RequestRideInput)
	if err != nil {
		return nil, err
	}
	if in.ScheduledAt.IsZero() || !in.ScheduledAt.After(l.now()) {
		return nil, ErrScheduleInPast
	}
	at := in.ScheduledAt.UTC()
	ride.ScheduledAt = &at
	ride.Status = domain.RideStatusScheduled

	if err := l.create(ctx, ride); err != nil {
		return nil, err
	}

	l.logger.Info("ride scheduled",
		"ride_id", ride.ID,
		"rider_id", ride.RiderID,
		"scheduled_at", at,
	)
	return ride, nil
}

// Release moves a due scheduled ride to searching.
func (l *Lifecycle) Release(ctx context.Context, rideID string) (*domain.Ride, error) {
	change := domain.NewStatusChange(domain.TransitionRelease, rideID, l.now())
	ride, err := l.transition(ctx, change)
	if err != nil {
		return nil, err
	}
	l.offerToDrivers(ctx, ride)
	return ride, nil
}

// Accept assigns the ride to the driver if it is still searching and the
// driver has no other current ride.
func (l *Lifecycle) Accept(ctx context.Context, rideID string, driver Actor) (*domain.Ride, error) {
	if !driver.Role.CanActAsDriver() {
		return nil, ErrRoleNotAllowed
	}
	change := domain.NewStatusChange(domain.TransitionAccept, rideID, l.now())
	change.DriverID = driver.ID
	change.Assign = true
	return l.transition(ctx, change)
}

// Arrive marks the assigned driver as arriving at the pickup.
func (l *Lifecycle) Arrive(ctx context.Context, rideID string, driver Actor) (*domain.Ride, error) {
	return l.driverTransition(ctx, domain.TransitionArrive, rideID, driver)
}

// Start begins the trip.
func (l *Lifecycle) Start(ctx context.Context, rideID string, driver Actor) (*domain.Ride, error) {
	return l.driverTransition(ctx, domain.TransitionStart, rideID, driver)
}

// Complete ends the trip and records the final fare.
func (l *Lifecycle) Complete(ctx context.Context, in CompleteRideInput) (*domain.Ride, error) {
	if !in.Driver.Role.CanActAsDriver() {
		return nil, ErrRoleNotAllowed
	}
	if in.FinalFare < 0 || in.DistanceKm < 0 || in.DurationMin < 0 {
		return nil, ErrInvalidTripMeasurements
	}

	current, err := l.get(ctx, in.RideID)
	if err != nil {
		return nil, err
	}

	change := domain.NewStatusChange(domain.TransitionComplete, in.RideID, l.now())
	change.DriverID = in.Driver.ID
	change.Fare = finalFare(current, in.FinalFare, in.DistanceKm, in.DurationMin)
	change.DistanceKm = in.DistanceKm
	change.DurationMin = in.DurationMin
	return l.transition(ctx, change)
}

// Cancel cancels a non-terminal ride. Riders may cancel their own rides and
// drivers the rides assigned to them.
func (l *Lifecycle) Cancel(ctx context.Context, in CancelRideInput) (*domain.Ride, error) {
	change := domain.NewStatusChange(domain.TransitionCancel, in.RideID, l.now())
	change.CancelReason = strings.TrimSpace(in.Reason)
	switch {
	case in.Actor.Role.CanActAsRider():
		change.RiderID = in.Actor.ID
		change.CancelledBy = domain.CancelledByRider
	case in.Actor.Role.CanActAsDriver():
		change.DriverID = in.Actor.ID
		change.CancelledBy = domain.CancelledByDriver
	default:
		return nil, ErrRoleNotAllowed
	}
	return l.transition(ctx, change)
}

func (l *Lifecycle) driverTransition(ctx context.Context, t domain.Transition, rideID string, driver Actor) (*domain.Ride, error) {
	if !driver.Role.CanActAsDriver() {
		return nil, ErrRoleNotAllowed
	}
	change := domain.NewStatusChange(t, rideID, l.now())
	change.DriverID = driver.ID
	return l.transition(ctx, change)
}

// transition applies change in the store and, on success, publishes the
// resulting event. Failures publish nothing.
func (l *Lifecycle) transition(ctx context.Context, change domain.StatusChange) (*domain.Ride, error) {
	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	ride, err := l.rides.Transition(storeCtx, change)
	if err != nil {
		err = transitionError(change, err)
		l.metrics.Transition(string(change.Transition), resultLabel(err))
		l.logger.Debug("ride transition rejected",
			"ride_id", change.RideID,
			"transition", change.Transition,
			"error", err,
		)
		return nil, err
	}
	l.metrics.Transition(string(change.Transition), "ok")

	l.logger.Info("ride transitioned",
		"ride_id", ride.ID,
		"transition", change.Transition,
		"status", ride.Status,
		"driver_id", ride.DriverID,
	)

	if l.cache != nil {
		if err := l.cache.InvalidateRide(ctx, ride.ID); err != nil {
			l.logger.Warn("ride cache invalidation failed", "ride_id", ride.ID, "error", err)
		}
	}

	l.publisher.Publish(ctx, transitionEvent(change, ride))

	if l.notifier != nil {
		if n, ok := transitionNotification(change.Transition, ride); ok {
			if err := l.notifier.Notify(ctx, n); err != nil {
				l.logger.Warn("notification failed", "ride_id", ride.ID, "error", err)
			}
		}
	}
	return ride, nil
}

func transitionEvent(change domain.StatusChange, ride *domain.Ride) domain.Event {
	e := domain.NewRideEvent(domain.TransitionEvent[change.Transition], ride)
	switch change.Transition {
	case domain.TransitionComplete:
		e = e.With("fare", ride.Fare)
	case domain.TransitionCancel:
		e = e.With("cancelledBy", ride.CancelledBy).With("reason", ride.CancelReason)
	}
	return e
}

// transitionError converts a store rejection into the service error class.
func transitionError(change domain.StatusChange, err error) error {
	switch {
	case errors.Is(err, repository.ErrWrongParty):
		if change.RiderID != "" {
			return ErrNotRideOwner
		}
		return ErrNotAssignedDriver
	case errors.Is(err, repository.ErrStatusMismatch):
		if change.Transition == domain.TransitionAccept {
			return ErrRideNotAvailable
		}
		return ErrInvalidTransition
	case errors.Is(err, repository.ErrActiveRideExists):
		return ErrActiveRideExists
	case errors.Is(err, repository.ErrDriverBusy):
		return ErrDriverBusy
	default:
		return err
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

func (l *Lifecycle) newRide(in RequestRideInput) (*domain.Ride, error) {
	if !in.Rider.Role.CanActAsRider() {
		return nil, ErrRoleNotAllowed
	}
	pickup, err := normalizeLocation(in.Pickup)
	if err != nil {
		return nil, err
	}
	dropoff, err := normalizeLocation(in.Dropoff)
	if err != nil {
		return nil, err
	}
	rideType, ok := domain.ParseRideType(strings.ToLower(strings.TrimSpace(in.RideType)))
	if !ok {
		return nil, ErrInvalidRideType
	}

	now := l.now().UTC()
	return &domain.Ride{
		ID:            uuid.New().String(),
		RiderID:       in.Rider.ID,
		Pickup:        pickup,
		Dropoff:       dropoff,
		Type:          rideType,
		EstimatedFare: EstimateFare(rideType).Max,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (l *Lifecycle) create(ctx context.Context, ride *domain.Ride) error {
	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if ride.Status.IsActive() {
		_, err := l.rides.GetCurrentByRider(storeCtx, ride.RiderID)
		if err == nil {
			return ErrActiveRideExists
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return err
		}
	}

	err := l.rides.Create(storeCtx, ride)
	if errors.Is(err, repository.ErrActiveRideExists) {
		return ErrActiveRideExists
	}
	return err
}

func (l *Lifecycle) get(ctx context.Context, rideID string) (*domain.Ride, error) {
	storeCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	return l.rides.GetByID(storeCtx, rideID)
}

// offerToDrivers broadcasts a searching ride to connected drivers with only
// the fields needed to decide whether to accept.
func (l *Lifecycle) offerToDrivers(ctx context.Context, ride *domain.Ride) {
	l.publisher.BroadcastToRole(ctx, domain.RoleDriver, domain.Event{
		Name:   domain.EventRideRequested,
		RideID: ride.ID,
		Data: map[string]any{
			"rideId":   ride.ID,
			"pickup":   ride.Pickup.Address,
			"drop":     ride.Dropoff.Address,
			"rideType": ride.Type,
		},
	})
}

func normalizeLocation(loc domain.Location) (domain.Location, error) {
	loc.Address = strings.TrimSpace(loc.Address)
	if loc.Address == "" {
		return loc, ErrMissingAddress
	}
	if (loc.Lat == nil) != (loc.Lng == nil) {
		return loc, ErrInvalidLocation
	}
	if loc.Lat != nil && !validCoordinates(*loc.Lat, *loc.Lng) {
		return loc, ErrInvalidLocation
	}
	return loc, nil
}

func validCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
