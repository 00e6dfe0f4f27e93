package service

import (
	"context"
	"strings"
	"time"

	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// ProfileService reads and edits account profiles.
type ProfileService struct {
	users   repository.UserRepository
	timeout time.Duration
	now     func() time.Time
}

// NewProfileService creates a new ProfileService.
func NewProfileService(users repository.UserRepository, storeTimeout time.Duration) *ProfileService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &ProfileService{users: users, timeout: storeTimeout, now: time.Now}
}

// ProfileUpdate lists the editable fields. Nil fields are left unchanged.
// Vehicle is only accepted from drivers.
type ProfileUpdate struct {
	Name    *string
	Phone   *string
	Avatar  *string
	Vehicle *domain.Vehicle
}

// Get returns the caller's profile.
func (s *ProfileService) Get(ctx context.Context, actor Actor) (*domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.GetByID(storeCtx, actor.ID)
}

// Update applies the non-nil fields of upd to the caller's profile.
func (s *ProfileService) Update(ctx context.Context, actor Actor, upd ProfileUpdate) (*domain.User, error) {
	if upd.Vehicle != nil && !actor.Role.CanActAsDriver() {
		return nil, ErrRoleNotAllowed
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	user, err := s.users.GetByID(storeCtx, actor.ID)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrEmptyName
		}
		user.Name = name
	}
	if upd.Phone != nil {
		user.Phone = strings.TrimSpace(*upd.Phone)
	}
	if upd.Avatar != nil {
		user.Avatar = strings.TrimSpace(*upd.Avatar)
	}
	if upd.Vehicle != nil {
		user.Vehicle = mergeVehicle(user.Vehicle, *upd.Vehicle)
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.UpdateProfile(storeCtx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// mergeVehicle overlays the non-empty fields of upd on cur.
func mergeVehicle(cur, upd domain.Vehicle) domain.Vehicle {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cur.Type, upd.Type)
	set(&cur.Model, upd.Model)
	set(&cur.PlateNumber, upd.PlateNumber)
	set(&cur.Color, upd.Color)
	if cur.Type == "" {
		cur.Type = domain.DefaultVehicleType
	}
	return cur
}
