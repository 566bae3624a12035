// Package storage defines the persistence boundary of the self-hosted
// backend. Implementations live in the memory, sqlite and postgres
// subpackages; every one of them passes the storagetest contract suite.
package storage

import (
	"context"
	"time"

	"github.com/Bota93/spendesk/internal/core"
)

// SessionRecord is the server-side half of an access token.
type SessionRecord struct {
	ID        string
	UserID    string
	CreatedAt time.Time
	ExpiresAt time.Time
	Revoked   bool
}

// Active reports whether the session may still authenticate requests at now.
func (s SessionRecord) Active(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// UserStore persists accounts. Emails are unique (core.ErrEmailTaken).
type UserStore interface {
	CreateUser(ctx context.Context, u core.User, passwordHash string) error
	// GetUserByEmail returns the user and its password hash.
	GetUserByEmail(ctx context.Context, email string) (core.User, string, error)
	GetUserByID(ctx context.Context, id string) (core.User, error)
	// TouchUser records activity of the user at at.
	TouchUser(ctx context.Context, id string, at time.Time) error
	// ListIdleDemoUsers returns demo users with no activity since cutoff.
	ListIdleDemoUsers(ctx context.Context, cutoff time.Time) ([]core.User, error)
	// DeleteUser removes the user together with its sessions and transactions.
	DeleteUser(ctx context.Context, id string) error
}

// SessionStore persists issued sessions.
type SessionStore interface {
	CreateSession(ctx context.Context, s SessionRecord) error
	GetSession(ctx context.Context, id string) (SessionRecord, error)
	RevokeUserSessions(ctx context.Context, userID string) error
}

// TransactionStore persists transactions. Every call is scoped to userID:
// rows of other users behave as if they did not exist.
type TransactionStore interface {
	// ListTransactions returns the user's rows by date descending, newest id first.
	ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error)
	CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, userID string, id int64, in core.TransactionInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, userID string, id int64) error
}

// Repository is the complete persistence layer.
type Repository interface {
	UserStore
	SessionStore
	TransactionStore
	Ping(ctx context.Context) error
	Close() error
}
