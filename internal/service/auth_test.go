package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"rapidride/internal/auth"
	"rapidride/internal/domain"
	"rapidride/internal/repository"
	"rapidride/internal/repository/memory"
)

func newAuthService() (*AuthService, *memory.UserRepository, *auth.TokenManager) {
	users := memory.NewUserRepository()
	tokens := auth.NewTokenManager("test-secret", "rapidride", time.Hour)
	return NewAuthService(users, tokens, discardLogger(), 0), users, tokens
}

func signup(t *testing.T, s *AuthService, email, role string) *domain.User {
	t.Helper()
	user, err := s.Signup(context.Background(), SignupInput{
		Name:     "Asha",
		Email:    email,
		Password: "secret123",
		Role:     role,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	return user
}

func TestAuthService_Signup(t *testing.T) {
	s, _, _ := newAuthService()

	user := signup(t, s, "  Asha@Example.com ", "driver")

	if user.Email != "asha@example.com" {
		t.Errorf("expected normalized email, got %q", user.Email)
	}
	if user.Role != domain.RoleDriver {
		t.Errorf("expected driver, got %s", user.Role)
	}
	if user.PasswordHash == "" || user.PasswordHash == "secret123" {
		t.Error("expected a password hash")
	}
	if user.Vehicle.Type != domain.DefaultVehicleType {
		t.Errorf("expected default vehicle type, got %q", user.Vehicle.Type)
	}
}

func TestAuthService_SignupDefaultsToRider(t *testing.T) {
	s, _, _ := newAuthService()

	user := signup(t, s, "rider@example.com", "")
	if user.Role != domain.RoleRider {
		t.Errorf("expected rider, got %s", user.Role)
	}
}

func TestAuthService_SignupRejectsAdmin(t *testing.T) {
	s, users, _ := newAuthService()

	_, err := s.Signup(context.Background(), SignupInput{
		Name:     "Root",
		Email:    "root@example.com",
		Password: "secret123",
		Role:     "admin",
	})
	if !errors.Is(err, ErrAdminSignup) || !errors.Is(err, ErrForbidden) {
		t.Errorf("expected forbidden admin signup, got %v", err)
	}
	if _, err := users.GetByEmail(context.Background(), "root@example.com"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected no account to be created, got %v", err)
	}
}

func TestAuthService_SignupValidation(t *testing.T) {
	s, _, _ := newAuthService()

	testCases := []struct {
		name    string
		in      SignupInput
		wantErr error
	}{
		{"missing name", SignupInput{Email: "a@example.com", Password: "secret123"}, ErrInvalidCredentialsInput},
		{"bad email", SignupInput{Name: "A", Email: "not-an-email", Password: "secret123"}, ErrInvalidCredentialsInput},
		{"short password", SignupInput{Name: "A", Email: "a@example.com", Password: "123"}, ErrPasswordTooShort},
		{"unknown role", SignupInput{Name: "A", Email: "a@example.com", Password: "secret123", Role: "pilot"}, ErrInvalidRole},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Signup(context.Background(), tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestAuthService_SignupDuplicateEmail(t *testing.T) {
	s, _, _ := newAuthService()
	signup(t, s, "dup@example.com", "rider")

	_, err := s.Signup(context.Background(), SignupInput{
		Name:     "Other",
		Email:    "DUP@example.com",
		Password: "secret123",
	})
	if !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestAuthService_Login(t *testing.T) {
	s, _, tokens := newAuthService()
	user := signup(t, s, "login@example.com", "rider")

	session, err := s.Login(context.Background(), LoginInput{
		Email:    "login@example.com",
		Password: "secret123",
		Role:     "rider",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.User.ID != user.ID {
		t.Errorf("expected user %s, got %s", user.ID, session.User.ID)
	}

	claims, err := tokens.Parse(session.Token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != user.ID || claims.Role != domain.RoleRider {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestAuthService_LoginFailures(t *testing.T) {
	s, _, _ := newAuthService()
	signup(t, s, "driver@example.com", "driver")

	testCases := []struct {
		name    string
		in      LoginInput
		wantErr error
	}{
		{"unknown email", LoginInput{Email: "nobody@example.com", Password: "secret123", Role: "driver"}, ErrInvalidCredentials},
		{"wrong password", LoginInput{Email: "driver@example.com", Password: "wrong-pass", Role: "driver"}, ErrInvalidCredentials},
		{"wrong role", LoginInput{Email: "driver@example.com", Password: "secret123", Role: "rider"}, ErrRoleMismatch},
		{"missing role", LoginInput{Email: "driver@example.com", Password: "secret123"}, ErrRoleMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Login(context.Background(), tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
			if !errors.Is(err, ErrAuthentication) {
				t.Errorf("expected authentication class, got %v", err)
			}
		})
	}

	_, err := s.Login(context.Background(), LoginInput{Email: "driver@example.com", Password: "secret123", Role: "rider"})
	if PublicMessage(err) != "Incorrect role selected" {
		t.Errorf("unexpected public message %q", PublicMessage(err))
	}
}

func TestAuthService_Me(t *testing.T) {
	s, _, _ := newAuthService()
	user := signup(t, s, "me@example.com", "rider")

	got, err := s.Me(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if got.Email != "me@example.com" {
		t.Errorf("unexpected user %+v", got)
	}

	if _, err := s.Me(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
