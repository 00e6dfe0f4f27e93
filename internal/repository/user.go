package repository

import (
	"context"

	"rapidride/internal/domain"
)

// UserRepository defines the persistence operations for accounts.
type UserRepository interface {
	// Create adds a new user. Returns ErrDuplicateEmail if the email is taken.
	Create(ctx context.Context, user *domain.User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail retrieves a user by lower-cased email.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateProfile writes name, phone, avatar and vehicle.
	UpdateProfile(ctx context.Context, user *domain.User) error

	// SetOnline updates a driver's availability flag.
	SetOnline(ctx context.Context, id string, online bool) error

	// UpdateLocation records a driver's last reported coordinates.
	UpdateLocation(ctx context.Context, id string, lat, lng float64) error
}
