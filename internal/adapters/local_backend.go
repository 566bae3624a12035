package adapters

import (
	"context"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/remote"
	"github.com/Bota93/spendesk/internal/services"
	"github.com/Bota93/spendesk/internal/storage"
)

// LocalBackend adapts the self-hosted services to remote.Backend so the
// browser clients work the same against local storage and the hosted one.
type LocalBackend struct {
	auth    *services.AuthService
	service *services.TransactionService
	storage storage.Repository
}

var (
	_ remote.Backend = (*LocalBackend)(nil)
	_ remote.Pinger  = (*LocalBackend)(nil)
)

func NewLocalBackend(auth *services.AuthService, service *services.TransactionService, storage storage.Repository) *LocalBackend {
	return &LocalBackend{
		auth:    auth,
		service: service,
		storage: storage,
	}
}

// SignUp implements remote.Authenticator
func (b *LocalBackend) SignUp(ctx context.Context, email, password string, meta core.UserMetadata) (*core.Session, error) {
	return b.auth.SignUp(ctx, email, password, meta)
}

// SignIn implements remote.Authenticator
func (b *LocalBackend) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	return b.auth.SignIn(ctx, email, password)
}

// SignOut implements remote.Authenticator
func (b *LocalBackend) SignOut(ctx context.Context, accessToken string) error {
	return b.auth.SignOut(ctx, accessToken)
}

// GetUser implements remote.Authenticator
func (b *LocalBackend) GetUser(ctx context.Context, accessToken string) (*core.User, error) {
	return b.auth.GetUser(ctx, accessToken)
}

// Select implements remote.TransactionTable
func (b *LocalBackend) Select(ctx context.Context, accessToken string, q remote.Query) ([]core.Transaction, error) {
	return b.service.Select(ctx, accessToken, q)
}

// Insert implements remote.TransactionTable
func (b *LocalBackend) Insert(ctx context.Context, accessToken string, in core.TransactionInput) (core.Transaction, error) {
	return b.service.Insert(ctx, accessToken, in)
}

// Update implements remote.TransactionTable
func (b *LocalBackend) Update(ctx context.Context, accessToken string, id int64, in core.TransactionInput) (core.Transaction, error) {
	return b.service.Update(ctx, accessToken, id, in)
}

// Delete implements remote.TransactionTable
func (b *LocalBackend) Delete(ctx context.Context, accessToken string, id int64) error {
	return b.service.Delete(ctx, accessToken, id)
}

// Ping implements remote.Pinger
func (b *LocalBackend) Ping(ctx context.Context) error {
	return b.storage.Ping(ctx)
}
