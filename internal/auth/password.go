package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Bota93/spendesk/internal/core"
)

// MinPasswordLength is the shortest password accepted at sign-up.
const MinPasswordLength = 6

// DemoEmailDomain is the domain of generated demo accounts.
const DemoEmailDomain = "example.com"

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword compares password with hash. A mismatch is reported as
// core.ErrInvalidCredentials.
func CheckPassword(hash, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return core.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}

// NormalizeEmail lowercases and trims email after checking its syntax.
func NormalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", core.ErrInvalidEmail
	}
	return email, nil
}

// ValidatePassword enforces the minimum password length.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return core.ErrWeakPassword
	}
	return nil
}

// NewDemoCredentials returns a unique throwaway email and a random password.
func NewDemoCredentials() (email, password string, err error) {
	buf := make([]byte, 18)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate demo password: %w", err)
	}
	email = fmt.Sprintf("demo-%s@%s", uuid.NewString(), DemoEmailDomain)
	return email, base64.RawURLEncoding.EncodeToString(buf), nil
}
