package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// RideRepository is an in-memory repository.RideRepository. Transitions run
// the same compare-and-swap as the SQL store, under a single mutex.
type RideRepository struct {
	mu    sync.RWMutex
	rides map[string]*domain.Ride
	users *UserRepository
}

// NewRideRepository creates an empty in-memory ride repository. users may be
// nil; when set, completed rides increment the driver's total_rides.
func NewRideRepository(users *UserRepository) *RideRepository {
	return &RideRepository{
		rides: make(map[string]*domain.Ride),
		users: users,
	}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ride.Status.IsActive() && r.currentLocked(func(x *domain.Ride) bool { return x.RiderID == ride.RiderID }) != nil {
		return repository.ErrActiveRideExists
	}
	stored := *ride
	r.rides[ride.ID] = &stored
	return nil
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ride, ok := r.rides[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

// GetCurrentByRider returns the rider's current ride.
func (r *RideRepository) GetCurrentByRider(ctx context.Context, riderID string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ride := r.currentLocked(func(x *domain.Ride) bool { return x.RiderID == riderID })
	if ride == nil {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

// GetCurrentByDriver returns the driver's current ride.
func (r *RideRepository) GetCurrentByDriver(ctx context.Context, driverID string) (*domain.Ride, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ride := r.currentLocked(func(x *domain.Ride) bool { return driverID != "" && x.DriverID == driverID })
	if ride == nil {
		return nil, repository.ErrNotFound
	}
	copy := *ride
	return &copy, nil
}

// ListByRider lists a rider's rides.
func (r *RideRepository) ListByRider(ctx context.Context, riderID string, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	return r.listBy(func(x *domain.Ride) bool { return x.RiderID == riderID }, filter)
}

// ListByDriver lists a driver's rides.
func (r *RideRepository) ListByDriver(ctx context.Context, driverID string, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	return r.listBy(func(x *domain.Ride) bool { return driverID != "" && x.DriverID == driverID }, filter)
}

// ListSearching lists rides waiting for a driver, oldest first.
func (r *RideRepository) ListSearching(ctx context.Context, limit int) ([]*domain.Ride, error) {
	rides := r.collect(func(x *domain.Ride) bool { return x.Status == domain.RideStatusSearching })
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.Before(rides[j].CreatedAt) })
	return truncate(rides, limit), nil
}

// ListDueScheduled lists scheduled rides due at or before the given instant.
func (r *RideRepository) ListDueScheduled(ctx context.Context, before time.Time, limit int) ([]*domain.Ride, error) {
	rides := r.collect(func(x *domain.Ride) bool {
		return x.Status == domain.RideStatusScheduled && x.ScheduledAt != nil && !x.ScheduledAt.After(before)
	})
	sort.Slice(rides, func(i, j int) bool { return rides[i].ScheduledAt.Before(*rides[j].ScheduledAt) })
	return truncate(rides, limit), nil
}

// Transition applies change if the ride still matches its guards.
func (r *RideRepository) Transition(ctx context.Context, change domain.StatusChange) (*domain.Ride, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ride, ok := r.rides[change.RideID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if !repository.Matches(ride, change) {
		return nil, repository.ClassifyRejected(ride, change)
	}
	if change.To.IsActive() && !ride.Status.IsActive() {
		other := r.currentLocked(func(x *domain.Ride) bool { return x.RiderID == ride.RiderID && x.ID != ride.ID })
		if other != nil {
			return nil, repository.ErrActiveRideExists
		}
	}

	if change.Assign {
		busy := r.currentLocked(func(x *domain.Ride) bool { return x.DriverID == change.DriverID && x.ID != ride.ID })
		if busy != nil {
			return nil, repository.ErrDriverBusy
		}
	}

	change.Apply(ride)
	if change.Transition == domain.TransitionComplete && r.users != nil {
		r.users.incrementTotalRides(ride.DriverID)
	}

	copy := *ride
	return &copy, nil
}

func (r *RideRepository) currentLocked(match func(*domain.Ride) bool) *domain.Ride {
	var current *domain.Ride
	for _, ride := range r.rides {
		if ride.Status.IsActive() && match(ride) {
			if current == nil || ride.CreatedAt.After(current.CreatedAt) {
				current = ride
			}
		}
	}
	return current
}

func (r *RideRepository) collect(match func(*domain.Ride) bool) []*domain.Ride {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Ride
	for _, ride := range r.rides {
		if match(ride) {
			copy := *ride
			out = append(out, &copy)
		}
	}
	return out
}

func (r *RideRepository) listBy(match func(*domain.Ride) bool, filter repository.RideFilter) ([]*domain.Ride, int, error) {
	rides := r.collect(func(x *domain.Ride) bool {
		if !match(x) {
			return false
		}
		if filter.CompletedSince != nil && (x.CompletedAt == nil || x.CompletedAt.Before(*filter.CompletedSince)) {
			return false
		}
		if len(filter.Statuses) == 0 {
			return true
		}
		for _, s := range filter.Statuses {
			if x.Status == s {
				return true
			}
		}
		return false
	})
	sort.Slice(rides, func(i, j int) bool { return rides[i].CreatedAt.After(rides[j].CreatedAt) })

	total := len(rides)
	if filter.Page.Offset >= total {
		return nil, total, nil
	}
	rides = rides[filter.Page.Offset:]
	return truncate(rides, filter.Page.Limit), total, nil
}

func truncate(rides []*domain.Ride, limit int) []*domain.Ride {
	if limit > 0 && len(rides) > limit {
		return rides[:limit]
	}
	return rides
}
