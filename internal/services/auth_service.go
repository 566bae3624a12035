package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Bota93/spendesk/internal/auth"
	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/storage"
)

// AccountStore is the persistence AuthService needs.
type AccountStore interface {
	storage.UserStore
	storage.SessionStore
}

// AuthService is the self-hosted authentication backend: accounts with
// bcrypt passwords, JWT access tokens and revocable server-side sessions.
type AuthService struct {
	store     AccountStore
	issuer    *auth.Issuer
	publisher events.Publisher
	ttl       time.Duration
	now       func() time.Time
	logger    *log.Logger
	audit     *log.StructuredLogger
}

func NewAuthService(store AccountStore, issuer *auth.Issuer, publisher events.Publisher, ttl time.Duration, logger *log.Logger) *AuthService {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AuthService{
		store:     store,
		issuer:    issuer,
		publisher: publisher,
		ttl:       ttl,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentAuth),
		audit:     log.NewStructuredLogger(logger),
	}
}

// SignUp creates an account and signs it in.
func (s *AuthService) SignUp(ctx context.Context, email, password string, meta core.UserMetadata) (*core.Session, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := core.User{
		ID:        uuid.NewString(),
		Email:     email,
		IsDemo:    meta.IsDemo,
		CreatedAt: s.now(),
	}
	if err := s.store.CreateUser(ctx, user, hash); err != nil {
		if errors.Is(err, core.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	session, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit.LogAuth(ctx, log.OpSignUp, user.ID, user.IsDemo)
	return session, nil
}

// SignIn checks the credentials and opens a new session.
func (s *AuthService) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	email, err := auth.NormalizeEmail(email)
	if err != nil {
		return nil, core.ErrInvalidCredentials
	}
	user, hash, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, core.ErrNotFound) {
		return nil, core.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := auth.CheckPassword(hash, password); err != nil {
		return nil, err
	}

	session, err := s.issue(ctx, user)
	if err != nil {
		return nil, err
	}
	s.audit.LogAuth(ctx, log.OpSignIn, user.ID, user.IsDemo)
	return session, nil
}

// SignOut revokes every session of the token's user and announces it.
func (s *AuthService) SignOut(ctx context.Context, accessToken string) error {
	claims, err := s.issuer.Parse(accessToken)
	if err != nil {
		return err
	}
	userID := claims.Subject
	if err := s.store.RevokeUserSessions(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	s.publish(ctx, events.AuthEvent{Type: events.SignedOut, UserID: userID, OccurredAt: s.now()})
	s.audit.LogAuth(ctx, log.OpSignOut, userID, claims.IsDemo)
	return nil
}

// GetUser returns the user of a live session.
func (s *AuthService) GetUser(ctx context.Context, accessToken string) (*core.User, error) {
	user, err := s.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate verifies the token and its server-side session and records
// the activity of the user.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (core.User, error) {
	claims, err := s.issuer.Parse(accessToken)
	if err != nil {
		return core.User{}, err
	}

	rec, err := s.store.GetSession(ctx, claims.ID)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrUnauthenticated
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load session: %w", err)
	}
	now := s.now()
	if rec.UserID != claims.Subject || !rec.Active(now) {
		return core.User{}, core.ErrUnauthenticated
	}

	user, err := s.store.GetUserByID(ctx, claims.Subject)
	if errors.Is(err, core.ErrNotFound) {
		return core.User{}, core.ErrUnauthenticated
	}
	if err != nil {
		return core.User{}, fmt.Errorf("load user: %w", err)
	}

	if err := s.store.TouchUser(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "Failed to record user activity",
			log.FieldUserID, user.ID,
			log.FieldError, err.Error())
	}
	return user, nil
}

func (s *AuthService) issue(ctx context.Context, user core.User) (*core.Session, error) {
	now := s.now()
	rec := storage.SessionRecord{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.store.CreateSession(ctx, rec); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	token, err := s.issuer.Issue(user, rec.ID, rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return nil, err
	}
	if err := s.store.TouchUser(ctx, user.ID, now); err != nil {
		s.logger.WarnContext(ctx, "Failed to record user activity",
			log.FieldUserID, user.ID,
			log.FieldError, err.Error())
	}

	s.publish(ctx, events.AuthEvent{Type: events.SignedIn, UserID: user.ID, OccurredAt: now})
	return &core.Session{
		AccessToken: token,
		IssuedAt:    now,
		ExpiresAt:   rec.ExpiresAt,
		User:        user,
	}, nil
}

// publish is best effort: a lost notification must not fail the auth call.
func (s *AuthService) publish(ctx context.Context, e events.AuthEvent) {
	if err := s.publisher.PublishAuthEvent(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish auth event",
			log.FieldEvent, string(e.Type),
			log.FieldUserID, e.UserID,
			log.FieldError, err.Error())
	}
}
