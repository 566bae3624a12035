// Package remote defines the boundary to the auth and table-storage backend
// and the per-browser client handle built on top of it.
package remote

import (
	"context"

	"github.com/Bota93/spendesk/internal/core"
)

// TransactionsTable is the name of the relation holding transactions.
const TransactionsTable = "transactions"

// Query selects rows of the transactions relation.
type Query struct {
	OwnerID   string
	OrderBy   string
	Ascending bool
}

// OwnedNewestFirst selects every transaction of owner ordered by date descending.
func OwnedNewestFirst(owner string) Query {
	return Query{OwnerID: owner, OrderBy: "date"}
}

// Authenticator issues and revokes sessions.
type Authenticator interface {
	SignUp(ctx context.Context, email, password string, meta core.UserMetadata) (*core.Session, error)
	SignIn(ctx context.Context, email, password string) (*core.Session, error)
	// SignOut revokes every session of the token's user.
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*core.User, error)
}

// TransactionTable exposes row operations on the transactions relation.
// Every call is authorised by accessToken; rows of other users are neither
// visible nor mutable.
type TransactionTable interface {
	Select(ctx context.Context, accessToken string, q Query) ([]core.Transaction, error)
	Insert(ctx context.Context, accessToken string, in core.TransactionInput) (core.Transaction, error)
	Update(ctx context.Context, accessToken string, id int64, in core.TransactionInput) (core.Transaction, error)
	Delete(ctx context.Context, accessToken string, id int64) error
}

// Backend is everything the application needs from the remote side.
type Backend interface {
	Authenticator
	TransactionTable
}

// Pinger is implemented by backends that can report their health.
type Pinger interface {
	Ping(ctx context.Context) error
}
