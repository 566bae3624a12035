package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Bota93/spendesk/internal/core"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(testSecret, func() time.Time { return now })
	user := core.User{ID: "user-1", Email: "ana@example.com", IsDemo: true}

	token, err := issuer.Issue(user, "sess-1", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.User() != user || claims.ID != "sess-1" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestParseRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(testSecret, func() time.Time { return now })
	user := core.User{ID: "user-1", Email: "ana@example.com"}

	expired, _ := issuer.Issue(user, "s", now.Add(-2*time.Hour), now.Add(-time.Hour))
	foreign, _ := NewIssuer("another-secret-another-secret-00", nil).Issue(user, "s", now, now.Add(time.Hour))
	noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", ID: "s", Issuer: "spendesk", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noSession, _ := issuer.Issue(user, "", now, now.Add(time.Hour))

	tests := map[string]string{
		"expired":        expired,
		"wrong secret":   foreign,
		"none algorithm": noneAlg,
		"missing jti":    noSession,
		"garbage":        "not-a-token",
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := issuer.Parse(token); !errors.Is(err, core.ErrUnauthenticated) {
				t.Fatalf("expected ErrUnauthenticated, got %v", err)
			}
		})
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "password123" {
		t.Fatal("password stored in clear")
	}
	if err := CheckPassword(hash, "password123"); err != nil {
		t.Fatalf("CheckPassword: %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, core.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestNormalizeEmail(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"  Ana@Example.com ", "ana@example.com", false},
		{"ana@example.com", "ana@example.com", false},
		{"not-an-email", "", true},
		{"Ana <ana@example.com>", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeEmail(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("NormalizeEmail(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("NormalizeEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestValidatePassword(t *testing.T) {
	if err := ValidatePassword("12345"); !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
	if err := ValidatePassword("123456"); err != nil {
		t.Fatalf("six characters should be accepted: %v", err)
	}
}

func TestNewDemoCredentials(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		email, password, err := NewDemoCredentials()
		if err != nil {
			t.Fatalf("NewDemoCredentials: %v", err)
		}
		if !strings.HasPrefix(email, "demo-") || !strings.HasSuffix(email, "@example.com") {
			t.Fatalf("unexpected demo email %q", email)
		}
		if _, err := NormalizeEmail(email); err != nil {
			t.Fatalf("demo email %q is not valid: %v", email, err)
		}
		if len(password) < MinPasswordLength {
			t.Fatalf("demo password too short: %q", password)
		}
		if seen[email] {
			t.Fatalf("duplicate demo email %q", email)
		}
		seen[email] = true
	}
}
