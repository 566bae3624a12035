package remote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
)

// AuthChange names the reason a listener is notified.
type AuthChange string

const (
	ChangeSignedIn    AuthChange = "SIGNED_IN"
	ChangeSignedOut   AuthChange = "SIGNED_OUT"
	ChangeUserDeleted AuthChange = "USER_DELETED"
)

// AuthListener receives the new session (nil when signed out).
type AuthListener func(change AuthChange, session *core.Session)

// Client is the handle one browser uses to reach the backend. It keeps that
// browser's session and notifies listeners whenever it changes.
type Client struct {
	backend Backend
	source  events.Source
	logger  *log.Logger
	now     func() time.Time

	mu        sync.Mutex
	session   *core.Session
	listeners map[int]AuthListener
	nextID    int

	unsubscribe func()
	closeOnce   sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for background notifications.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithEventSource makes the client sign itself out when the server reports
// that its user was signed out elsewhere or deleted.
func WithEventSource(src events.Source) Option {
	return func(c *Client) { c.source = src }
}

func NewClient(backend Backend, opts ...Option) *Client {
	c := &Client{
		backend:   backend,
		logger:    log.Discard(),
		now:       time.Now,
		listeners: make(map[int]AuthListener),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.source != nil {
		c.unsubscribe = c.source.Subscribe(c.handleEvent)
	}
	return c
}

// Restore seeds the client with a token persisted by the browser. The user
// is resolved lazily by GetSession.
func (c *Client) Restore(accessToken string) {
	if accessToken == "" {
		return
	}
	c.mu.Lock()
	c.session = &core.Session{AccessToken: accessToken}
	c.mu.Unlock()
}

// AccessToken returns the current token or "".
func (c *Client) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.AccessToken
}

// GetSession returns the current session, resolving a restored token against
// the backend. Expired or rejected tokens yield a nil session.
func (c *Client) GetSession(ctx context.Context) (*core.Session, error) {
	c.mu.Lock()
	current := c.session
	c.mu.Unlock()

	if current == nil {
		return nil, nil
	}
	if !current.Valid(c.now()) {
		c.clear(current.AccessToken, ChangeSignedOut)
		return nil, nil
	}
	if current.User.ID != "" {
		s := *current
		return &s, nil
	}

	user, err := c.backend.GetUser(ctx, current.AccessToken)
	if err != nil {
		if errors.Is(err, core.ErrUnauthenticated) {
			c.clear(current.AccessToken, ChangeSignedOut)
			return nil, nil
		}
		return nil, fmt.Errorf("resolve session user: %w", err)
	}

	c.mu.Lock()
	if c.session != nil && c.session.AccessToken == current.AccessToken {
		c.session.User = *user
		if c.session.IssuedAt.IsZero() {
			c.session.IssuedAt = c.now()
		}
	}
	resolved := c.copySessionLocked()
	c.mu.Unlock()
	return resolved, nil
}

func (c *Client) SignUp(ctx context.Context, email, password string, meta core.UserMetadata) (*core.Session, error) {
	s, err := c.backend.SignUp(ctx, email, password, meta)
	if err != nil {
		return nil, err
	}
	c.set(s)
	return c.copySession(), nil
}

func (c *Client) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	s, err := c.backend.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	c.set(s)
	return c.copySession(), nil
}

// SignOut revokes the session server side and clears it locally. A token the
// backend no longer accepts is cleared as well.
func (c *Client) SignOut(ctx context.Context) error {
	token := c.AccessToken()
	if token == "" {
		return nil
	}
	if err := c.backend.SignOut(ctx, token); err != nil && !errors.Is(err, core.ErrUnauthenticated) {
		return fmt.Errorf("sign out: %w", err)
	}
	c.clear(token, ChangeSignedOut)
	return nil
}

// OnAuthStateChange registers fn and returns a function that removes it.
func (c *Client) OnAuthStateChange(fn AuthListener) func() {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Select runs q with the current session.
func (c *Client) Select(ctx context.Context, q Query) ([]core.Transaction, error) {
	token, err := c.requireToken()
	if err != nil {
		return nil, err
	}
	rows, err := c.backend.Select(ctx, token, q)
	return rows, c.checkAuth(token, err)
}

func (c *Client) Insert(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	token, err := c.requireToken()
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := c.backend.Insert(ctx, token, in)
	return tx, c.checkAuth(token, err)
}

func (c *Client) Update(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	token, err := c.requireToken()
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := c.backend.Update(ctx, token, id, in)
	return tx, c.checkAuth(token, err)
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	token, err := c.requireToken()
	if err != nil {
		return err
	}
	return c.checkAuth(token, c.backend.Delete(ctx, token, id))
}

// Close detaches the client from the event source. Listeners are dropped.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.unsubscribe != nil {
			c.unsubscribe()
		}
		c.mu.Lock()
		c.listeners = make(map[int]AuthListener)
		c.mu.Unlock()
	})
}

func (c *Client) requireToken() (string, error) {
	token := c.AccessToken()
	if token == "" {
		return "", core.ErrUnauthenticated
	}
	return token, nil
}

// checkAuth drops the session when the backend rejects its token.
func (c *Client) checkAuth(token string, err error) error {
	if errors.Is(err, core.ErrUnauthenticated) {
		c.clear(token, ChangeSignedOut)
	}
	return err
}

func (c *Client) handleEvent(e events.AuthEvent) {
	var change AuthChange
	switch e.Type {
	case events.SignedOut:
		change = ChangeSignedOut
	case events.UserDeleted:
		change = ChangeUserDeleted
	default:
		return
	}

	c.mu.Lock()
	s := c.session
	matches := s != nil && s.User.ID == e.UserID && !e.OccurredAt.Before(s.IssuedAt)
	c.mu.Unlock()
	if !matches {
		return
	}

	c.logger.Info("Session ended by server event",
		log.FieldEvent, string(e.Type),
		log.FieldUserID, e.UserID)
	c.clear(s.AccessToken, change)
}

func (c *Client) set(s *core.Session) {
	stored := *s
	if stored.IssuedAt.IsZero() {
		stored.IssuedAt = c.now()
	}
	c.mu.Lock()
	c.session = &stored
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		copied := stored
		fn(ChangeSignedIn, &copied)
	}
}

// clear removes the session if it still carries token and notifies listeners.
func (c *Client) clear(token string, change AuthChange) {
	c.mu.Lock()
	if c.session == nil || c.session.AccessToken != token {
		c.mu.Unlock()
		return
	}
	c.session = nil
	listeners := c.listenersLocked()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(change, nil)
	}
}

func (c *Client) listenersLocked() []AuthListener {
	out := make([]AuthListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		out = append(out, fn)
	}
	return out
}

func (c *Client) copySession() *core.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copySessionLocked()
}

func (c *Client) copySessionLocked() *core.Session {
	if c.session == nil {
		return nil
	}
	s := *c.session
	return &s
}
