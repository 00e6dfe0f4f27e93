package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
	"rapidride/internal/repository/memory"
)

var testNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	role  domain.Role
	event domain.Event
}

// recordingPublisher captures every event handed to the relay.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{event: e})
}

func (p *recordingPublisher) BroadcastToRole(_ context.Context, role domain.Role, e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{role: role, event: e})
}

func (p *recordingPublisher) count(name domain.EventName) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.event.Name == name {
			n++
		}
	}
	return n
}

func (p *recordingPublisher) last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}

type lifecycleFixture struct {
	users     *memory.UserRepository
	rides     *memory.RideRepository
	publisher *recordingPublisher
	notifier  *NotificationService
	lifecycle *Lifecycle
}

func newLifecycleFixture() *lifecycleFixture {
	users := memory.NewUserRepository()
	rides := memory.NewRideRepository(users)
	publisher := &recordingPublisher{}
	notifier := NewNotificationService(discardLogger())
	return &lifecycleFixture{
		users:     users,
		rides:     rides,
		publisher: publisher,
		notifier:  notifier,
		lifecycle: NewLifecycle(LifecycleDeps{
			Rides:     rides,
			Publisher: publisher,
			Notifier:  notifier,
			Logger:    discardLogger(),
			Now:       func() time.Time { return testNow },
		}),
	}
}

func rider(id string) Actor  { return Actor{ID: id, Role: domain.RoleRider} }
func driver(id string) Actor { return Actor{ID: id, Role: domain.RoleDriver} }

func (f *lifecycleFixture) request(t *testing.T, riderID string) *domain.Ride {
	t.Helper()
	ride, err := f.lifecycle.Request(context.Background(), RequestRideInput{
		Rider:    rider(riderID),
		Pickup:   domain.Location{Address: "MG Road"},
		Dropoff:  domain.Location{Address: "Airport"},
		RideType: "economy",
	})
	if err != nil {
		t.Fatalf("request ride: %v", err)
	}
	return ride
}

func (f *lifecycleFixture) accept(t *testing.T, rideID, driverID string) *domain.Ride {
	t.Helper()
	ride, err := f.lifecycle.Accept(context.Background(), rideID, driver(driverID))
	if err != nil {
		t.Fatalf("accept ride: %v", err)
	}
	return ride
}

func TestLifecycle_RequestOffersRideToDrivers(t *testing.T) {
	f := newLifecycleFixture()

	ride := f.request(t, "rider-1")

	if ride.Status != domain.RideStatusSearching {
		t.Errorf("expected searching, got %s", ride.Status)
	}
	if ride.EstimatedFare != 150 {
		t.Errorf("expected estimated fare 150, got %v", ride.EstimatedFare)
	}
	last := f.publisher.last()
	if last.role != domain.RoleDriver || last.event.Name != domain.EventRideRequested {
		t.Errorf("expected ride_requested broadcast to drivers, got %+v", last)
	}
}

func TestLifecycle_RequestValidation(t *testing.T) {
	f := newLifecycleFixture()

	testCases := []struct {
		name    string
		in      RequestRideInput
		wantErr error
	}{
		{
			name:    "driver cannot request",
			in:      RequestRideInput{Rider: driver("d-1"), Pickup: domain.Location{Address: "A"}, Dropoff: domain.Location{Address: "B"}},
			wantErr: ErrRoleNotAllowed,
		},
		{
			name:    "missing pickup",
			in:      RequestRideInput{Rider: rider("r-1"), Pickup: domain.Location{Address: "  "}, Dropoff: domain.Location{Address: "B"}},
			wantErr: ErrMissingAddress,
		},
		{
			name:    "unknown ride type",
			in:      RequestRideInput{Rider: rider("r-1"), Pickup: domain.Location{Address: "A"}, Dropoff: domain.Location{Address: "B"}, RideType: "helicopter"},
			wantErr: ErrInvalidRideType,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.lifecycle.Request(context.Background(), tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestLifecycle_RequestRejectsSecondActiveRide(t *testing.T) {
	f := newLifecycleFixture()
	f.request(t, "rider-1")

	_, err := f.lifecycle.Request(context.Background(), RequestRideInput{
		Rider:   rider("rider-1"),
		Pickup:  domain.Location{Address: "Home"},
		Dropoff: domain.Location{Address: "Office"},
	})
	if !errors.Is(err, ErrActiveRideExists) {
		t.Errorf("expected ErrActiveRideExists, got %v", err)
	}
	if !errors.Is(err, ErrConflict) {
		t.Errorf("expected conflict class, got %v", err)
	}
}

func TestLifecycle_ConcurrentAcceptHasOneWinner(t *testing.T) {
	f := newLifecycleFixture()
	ride := f.request(t, "rider-1")

	const drivers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners []string
		losers  int
	)
	for i := 0; i < drivers; i++ {
		wg.Add(1)
		go func(driverID string) {
			defer wg.Done()
			_, err := f.lifecycle.Accept(context.Background(), ride.ID, driver(driverID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, driverID)
			case errors.Is(err, ErrRideNotAvailable):
				losers++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(fmt.Sprintf("driver-%d", i))
	}
	wg.Wait()

	if len(winners) != 1 {
		t.Fatalf("expected exactly one winner, got %v", winners)
	}
	if losers != drivers-1 {
		t.Errorf("expected %d losers, got %d", drivers-1, losers)
	}

	stored, err := f.rides.GetByID(context.Background(), ride.ID)
	if err != nil {
		t.Fatalf("get ride: %v", err)
	}
	if stored.DriverID != winners[0] || stored.Status != domain.RideStatusAssigned {
		t.Errorf("expected ride assigned to %s, got %s/%s", winners[0], stored.DriverID, stored.Status)
	}
	if n := f.publisher.count(domain.EventRideAssigned); n != 1 {
		t.Errorf("expected one ride_assigned event, got %d", n)
	}
}

func TestLifecycle_AcceptRequiresDriverRole(t *testing.T) {
	f := newLifecycleFixture()
	ride := f.request(t, "rider-1")

	_, err := f.lifecycle.Accept(context.Background(), ride.ID, rider("rider-2"))
	if !errors.Is(err, ErrRoleNotAllowed) {
		t.Errorf("expected ErrRoleNotAllowed, got %v", err)
	}
}

func TestLifecycle_AcceptUnknownRide(t *testing.T) {
	f := newLifecycleFixture()

	_, err := f.lifecycle.Accept(context.Background(), "missing", driver("driver-1"))
	if !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLifecycle_TripRequiresAssignedDriver(t *testing.T) {
	f := newLifecycleFixture()
	ride := f.request(t, "rider-1")
	f.accept(t, ride.ID, "driver-1")
	before := f.publisher.count(domain.EventDriverArriving)

	if _, err := f.lifecycle.Arrive(context.Background(), ride.ID, driver("driver-2")); !errors.Is(err, ErrNotAssignedDriver) {
		t.Errorf("arrive: expected ErrNotAssignedDriver, got %v", err)
	}
	if _, err := f.lifecycle.Start(context.Background(), ride.ID, driver("driver-2")); !errors.Is(err, ErrForbidden) {
		t.Errorf("start: expected forbidden, got %v", err)
	}
	_, err := f.lifecycle.Complete(context.Background(), CompleteRideInput{RideID: ride.ID, Driver: driver("driver-2")})
	if !errors.Is(err, ErrForbidden) {
		t.Errorf("complete: expected forbidden, got %v", err)
	}
	if f.publisher.count(domain.EventDriverArriving) != before {
		t.Error("rejected transition must not publish")
	}
}

func TestLifecycle_FullTrip(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	if err := f.users.Create(ctx, &domain.User{ID: "driver-1", Email: "driver@example.com", Role: domain.RoleDriver}); err != nil {
		t.Fatalf("create driver: %v", err)
	}
	ride := f.request(t, "rider-1")
	f.accept(t, ride.ID, "driver-1")

	arrived, err := f.lifecycle.Arrive(ctx, ride.ID, driver("driver-1"))
	if err != nil {
		t.Fatalf("arrive: %v", err)
	}
	if arrived.Status != domain.RideStatusArriving {
		t.Errorf("expected arriving, got %s", arrived.Status)
	}

	started, err := f.lifecycle.Start(ctx, ride.ID, driver("driver-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.RideStatusOnTrip || started.StartedAt == nil {
		t.Errorf("expected on_trip with start time, got %s", started.Status)
	}

	done, err := f.lifecycle.Complete(ctx, CompleteRideInput{
		RideID:      ride.ID,
		Driver:      driver("driver-1"),
		DistanceKm:  10,
		DurationMin: 20,
	})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != domain.RideStatusCompleted || done.CompletedAt == nil {
		t.Errorf("expected completed with completion time, got %s", done.Status)
	}
	if done.Fare != 170 {
		t.Errorf("expected fare 170 for 10km/20min economy, got %v", done.Fare)
	}
	// Completing twice is a conflict.
	if _, err := f.lifecycle.Complete(ctx, CompleteRideInput{RideID: ride.ID, Driver: driver("driver-1")}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}

	last := f.publisher.last()
	if last.event.Name != domain.EventRideCompleted || last.event.Data["fare"] != 170.0 {
		t.Errorf("expected ride_completed with fare, got %+v", last.event)
	}

	driverUser, err := f.users.GetByID(ctx, "driver-1")
	if err != nil {
		t.Fatalf("get driver: %v", err)
	}
	if driverUser.TotalRides != 1 {
		t.Errorf("expected driver total rides 1, got %d", driverUser.TotalRides)
	}
}

func TestLifecycle_StartAllowedFromAssigned(t *testing.T) {
	f := newLifecycleFixture()
	ride := f.request(t, "rider-1")
	f.accept(t, ride.ID, "driver-1")

	started, err := f.lifecycle.Start(context.Background(), ride.ID, driver("driver-1"))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.RideStatusOnTrip {
		t.Errorf("expected on_trip, got %s", started.Status)
	}
}

func TestLifecycle_CompleteUsesExplicitFare(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()
	ride := f.request(t, "rider-1")
	f.accept(t, ride.ID, "driver-1")
	if _, err := f.lifecycle.Start(ctx, ride.ID, driver("driver-1")); err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := f.lifecycle.Complete(ctx, CompleteRideInput{RideID: ride.ID, Driver: driver("driver-1"), FinalFare: -1}); !errors.Is(err, ErrInvalidTripMeasurements) {
		t.Errorf("expected ErrInvalidTripMeasurements, got %v", err)
	}

	done, err := f.lifecycle.Complete(ctx, CompleteRideInput{RideID: ride.ID, Driver: driver("driver-1"), FinalFare: 412})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Fare != 412 {
		t.Errorf("expected fare 412, got %v", done.Fare)
	}
}

func TestLifecycle_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("rider cancels own ride", func(t *testing.T) {
		f := newLifecycleFixture()
		ride := f.request(t, "rider-1")
		f.accept(t, ride.ID, "driver-1")

		cancelled, err := f.lifecycle.Cancel(ctx, CancelRideInput{RideID: ride.ID, Actor: rider("rider-1"), Reason: " changed plans "})
		if err != nil {
			t.Fatalf("cancel: %v", err)
		}
		if cancelled.Status != domain.RideStatusCancelled || cancelled.CancelledBy != domain.CancelledByRider {
			t.Errorf("expected cancelled by rider, got %s/%s", cancelled.Status, cancelled.CancelledBy)
		}
		if cancelled.CancelReason != "changed plans" {
			t.Errorf("expected trimmed reason, got %q", cancelled.CancelReason)
		}

		// The driver hears about it.
		inbox, _ := f.notifier.List(ctx, "driver-1")
		if len(inbox) == 0 || inbox[0].Type != NotificationRideCancelled {
			t.Errorf("expected ride_cancelled notification for driver, got %+v", inbox)
		}
	})

	t.Run("other rider is forbidden", func(t *testing.T) {
		f := newLifecycleFixture()
		ride := f.request(t, "rider-1")

		_, err := f.lifecycle.Cancel(ctx, CancelRideInput{RideID: ride.ID, Actor: rider("rider-2")})
		if !errors.Is(err, ErrNotRideOwner) {
			t.Errorf("expected ErrNotRideOwner, got %v", err)
		}
	})

	t.Run("unassigned driver is forbidden", func(t *testing.T) {
		f := newLifecycleFixture()
		ride := f.request(t, "rider-1")

		_, err := f.lifecycle.Cancel(ctx, CancelRideInput{RideID: ride.ID, Actor: driver("driver-9")})
		if !errors.Is(err, ErrNotAssignedDriver) {
			t.Errorf("expected ErrNotAssignedDriver, got %v", err)
		}
	})

	t.Run("terminal ride is a conflict", func(t *testing.T) {
		f := newLifecycleFixture()
		ride := f.request(t, "rider-1")
		if _, err := f.lifecycle.Cancel(ctx, CancelRideInput{RideID: ride.ID, Actor: rider("rider-1")}); err != nil {
			t.Fatalf("first cancel: %v", err)
		}
		before := f.publisher.count(domain.EventRideCancelled)

		_, err := f.lifecycle.Cancel(ctx, CancelRideInput{RideID: ride.ID, Actor: rider("rider-1")})
		if !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("expected ErrInvalidTransition, got %v", err)
		}
		if f.publisher.count(domain.EventRideCancelled) != before {
			t.Error("rejected cancel must not publish")
		}
	})

	t.Run("cancelled ride frees the rider", func(t *testing.T) {
		f := newLifecycleFixture()
		ride := f.request(t, "rider-1")
		if _, err := f.lifecycle.Cancel(ctx, CancelRideInput{RideID: ride.ID, Actor: rider("rider-1")}); err != nil {
			t.Fatalf("cancel: %v", err)
		}
		f.request(t, "rider-1")
	})
}

func TestLifecycle_Schedule(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	in := RequestRideInput{
		Rider:   rider("rider-1"),
		Pickup:  domain.Location{Address: "MG Road"},
		Dropoff: domain.Location{Address: "Airport"},
	}

	if _, err := f.lifecycle.Schedule(ctx, ScheduleRideInput{RequestRideInput: in, ScheduledAt: testNow.Add(-time.Minute)}); !errors.Is(err, ErrScheduleInPast) {
		t.Errorf("expected ErrScheduleInPast, got %v", err)
	}

	ride, err := f.lifecycle.Schedule(ctx, ScheduleRideInput{RequestRideInput: in, ScheduledAt: testNow.Add(2 * time.Hour)})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if ride.Status != domain.RideStatusScheduled {
		t.Errorf("expected scheduled, got %s", ride.Status)
	}

	// A scheduled ride is not the rider's current ride.
	f.request(t, "rider-1")

	// Releasing it now would give the rider two active rides.
	if _, err := f.lifecycle.Release(ctx, ride.ID); !errors.Is(err, ErrActiveRideExists) {
		t.Errorf("expected ErrActiveRideExists, got %v", err)
	}
}

func TestLifecycle_ReleaseOffersRide(t *testing.T) {
	ctx := context.Background()
	f := newLifecycleFixture()
	ride, err := f.lifecycle.Schedule(ctx, ScheduleRideInput{
		RequestRideInput: RequestRideInput{
			Rider:   rider("rider-1"),
			Pickup:  domain.Location{Address: "MG Road"},
			Dropoff: domain.Location{Address: "Airport"},
		},
		ScheduledAt: testNow.Add(5 * time.Minute),
	})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	released, err := f.lifecycle.Release(ctx, ride.ID)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != domain.RideStatusSearching {
		t.Errorf("expected searching, got %s", released.Status)
	}
	last := f.publisher.last()
	if last.role != domain.RoleDriver || last.event.Name != domain.EventRideRequested {
		t.Errorf("expected ride_requested broadcast, got %+v", last)
	}
	inbox, _ := f.notifier.List(ctx, "rider-1")
	if len(inbox) == 0 || inbox[0].Type != NotificationRideReleased {
		t.Errorf("expected ride_released notification, got %+v", inbox)
	}
}

func TestLifecycle_AcceptRejectsBusyDriver(t *testing.T) {
	f := newLifecycleFixture()
	ctx := context.Background()

	first := f.request(t, "rider-1")
	second := f.request(t, "rider-2")
	f.accept(t, first.ID, "driver-1")

	_, err := f.lifecycle.Accept(ctx, second.ID, driver("driver-1"))
	if !errors.Is(err, ErrDriverBusy) || !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrDriverBusy, got %v", err)
	}
	stored, _ := f.rides.GetByID(ctx, second.ID)
	if stored.Status != domain.RideStatusSearching || stored.DriverID != "" {
		t.Errorf("rejected accept must leave the ride searching, got %s/%q", stored.Status, stored.DriverID)
	}

	// Once the first trip is over the driver may take the next one.
	if _, err := f.lifecycle.Start(ctx, first.ID, driver("driver-1")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.lifecycle.Complete(ctx, CompleteRideInput{RideID: first.ID, Driver: driver("driver-1"), FinalFare: 100}); err != nil {
		t.Fatalf("complete: %v", err)
	}
	f.accept(t, second.ID, "driver-1")
}
