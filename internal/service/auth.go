package service

import (
	"context"
	"errors"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"rapidride/internal/auth"
	"rapidride/internal/domain"
	"rapidride/internal/repository"
)

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(userID string, role domain.Role) (string, time.Time, error)
}

// minPasswordLength is the shortest accepted password.
const minPasswordLength = 6

// AuthService handles signup and login.
type AuthService struct {
	users   repository.UserRepository
	tokens  TokenIssuer
	logger  *slog.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(users repository.UserRepository, tokens TokenIssuer, logger *slog.Logger, storeTimeout time.Duration) *AuthService {
	if storeTimeout <= 0 {
		storeTimeout = DefaultStoreTimeout
	}
	return &AuthService{
		users:   users,
		tokens:  tokens,
		logger:  logger,
		timeout: storeTimeout,
		now:     time.Now,
	}
}

// SignupInput contains the parameters for creating an account.
type SignupInput struct {
	Name     string
	Email    string
	Password string
	Phone    string
	Role     string
}

// LoginInput contains the parameters for logging in.
type LoginInput struct {
	Email    string
	Password string
	Role     string
}

// Session is the result of a successful login.
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      *domain.User
}

// Signup creates a rider or driver account. Admin accounts are refused
// before anything is written.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	roleName := strings.ToLower(strings.TrimSpace(in.Role))
	if roleName == "" {
		roleName = string(domain.RoleRider)
	}
	role, ok := domain.ParseRole(roleName)
	if !ok {
		return nil, ErrInvalidRole
	}
	if !role.SelfRegisterable() {
		return nil, ErrAdminSignup
	}

	name := strings.TrimSpace(in.Name)
	email, err := normalizeEmail(in.Email)
	if err != nil || name == "" || in.Password == "" {
		return nil, ErrInvalidCredentialsInput
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrPasswordTooShort
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Phone:        strings.TrimSpace(in.Phone),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if role == domain.RoleDriver {
		user.Vehicle.Type = domain.DefaultVehicleType
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.users.Create(storeCtx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	s.logger.Info("user signed up", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Login verifies credentials and the selected role and issues a token.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil || in.Password == "" {
		return nil, ErrInvalidCredentials
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, err := s.users.GetByEmail(storeCtx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := auth.CheckPassword(user.PasswordHash, in.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if domain.Role(strings.ToLower(strings.TrimSpace(in.Role))) != user.Role {
		return nil, ErrRoleMismatch
	}

	token, expiresAt, err := s.tokens.Issue(user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", "user_id", user.ID, "role", user.Role)
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// Me returns the account behind a verified session.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	storeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.users.GetByID(storeCtx, userID)
}

func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidCredentialsInput
	}
	return email, nil
}
