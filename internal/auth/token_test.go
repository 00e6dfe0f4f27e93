package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rapidride/internal/domain"
)

func TestTokenManager_IssueAndParse(t *testing.T) {
	t.Parallel()

	m := NewTokenManager("secret", "rapidride", time.Hour)
	token, expiresAt, err := m.Issue("user-1", domain.RoleDriver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expiresAt.After(time.Now()) {
		t.Errorf("expected expiry in the future, got %v", expiresAt)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("expected user-1, got %s", claims.UserID)
	}
	if claims.Role != domain.RoleDriver {
		t.Errorf("expected driver role, got %s", claims.Role)
	}
	if claims.Subject != "user-1" {
		t.Errorf("expected subject user-1, got %s", claims.Subject)
	}
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	t.Parallel()

	m := NewTokenManager("secret", "rapidride", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, err := m.Issue("user-1", domain.RoleRider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	m.now = time.Now
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenManager_RejectsBadSignature(t *testing.T) {
	t.Parallel()

	issuer := NewTokenManager("secret-a", "rapidride", time.Hour)
	verifier := NewTokenManager("secret-b", "rapidride", time.Hour)

	token, _, err := issuer.Issue("user-1", domain.RoleRider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := verifier.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenManager_RejectsOtherIssuer(t *testing.T) {
	t.Parallel()

	issuer := NewTokenManager("secret", "someone-else", time.Hour)
	verifier := NewTokenManager("secret", "rapidride", time.Hour)

	token, _, _ := issuer.Issue("user-1", domain.RoleRider)
	if _, err := verifier.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	t.Parallel()

	m := NewTokenManager("secret", "rapidride", time.Hour)
	claims := Claims{
		UserID: "user-1",
		Role:   domain.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "rapidride",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestTokenManager_RejectsMalformed(t *testing.T) {
	t.Parallel()

	m := NewTokenManager("secret", "rapidride", time.Hour)
	for _, token := range []string{"", "abc", strings.Repeat("x.", 3)} {
		if _, err := m.Parse(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("token %q: expected ErrInvalidToken, got %v", token, err)
		}
	}
}

func TestPassword_HashAndCheck(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hash == "s3cret" {
		t.Fatal("hash must not equal the plain password")
	}

	ok, err := CheckPassword(hash, "s3cret")
	if err != nil || !ok {
		t.Errorf("expected match, got ok=%v err=%v", ok, err)
	}

	ok, err = CheckPassword(hash, "wrong")
	if err != nil || ok {
		t.Errorf("expected mismatch, got ok=%v err=%v", ok, err)
	}
}
