// Package memory provides in-process implementations of the repository
// interfaces, used for local runs without PostgreSQL and in tests.
package memory

import (
	"context"
	"sync"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// UserRepository is an in-memory repository.UserRepository.
type UserRepository struct {
	mu      sync.RWMutex
	users   map[string]*domain.User
	byEmail map[string]string
}

// NewUserRepository creates an empty in-memory user repository.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Create adds a new user.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[user.Email]; ok {
		return repository.ErrDuplicateEmail
	}
	stored := *user
	r.users[user.ID] = &stored
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *user
	return &copy, nil
}

// GetByEmail retrieves a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[email]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copy := *r.users[id]
	return &copy, nil
}

// UpdateProfile writes the editable profile fields.
func (r *UserRepository) UpdateProfile(ctx context.Context, user *domain.User) error {
	return r.update(user.ID, func(u *domain.User) {
		u.Name = user.Name
		u.Phone = user.Phone
		u.Avatar = user.Avatar
		u.Vehicle = user.Vehicle
		u.UpdatedAt = user.UpdatedAt
	})
}

// SetOnline updates a driver's availability flag.
func (r *UserRepository) SetOnline(ctx context.Context, id string, online bool) error {
	return r.update(id, func(u *domain.User) { u.Online = online })
}

// UpdateLocation records a driver's last reported coordinates.
func (r *UserRepository) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	return r.update(id, func(u *domain.User) {
		u.Lat = lat
		u.Lng = lng
	})
}

func (r *UserRepository) incrementTotalRides(id string) {
	_ = r.update(id, func(u *domain.User) { u.TotalRides++ })
}

func (r *UserRepository) update(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	fn(user)
	return nil
}
