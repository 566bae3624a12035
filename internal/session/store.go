// Package session holds the current authenticated session of one browser
// workspace and the guard deciding whether protected views may be shown.
package session

import (
	"context"
	"sync"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote"
)

// Provider is the part of the remote client the store depends on.
type Provider interface {
	GetSession(ctx context.Context) (*core.Session, error)
	OnAuthStateChange(fn remote.AuthListener) func()
}

// ChangeFunc observes session replacements. session is nil when signed out.
type ChangeFunc func(change remote.AuthChange, session *core.Session)

// Store keeps the session of a workspace current. The first lookup runs
// asynchronously; Ready is closed once it has resolved.
type Store struct {
	provider Provider
	logger   *log.Logger

	mu        sync.RWMutex
	session   *core.Session
	observers map[int]ChangeFunc
	nextID    int

	ready       chan struct{}
	startOnce   sync.Once
	readyOnce   sync.Once
	closeOnce   sync.Once
	unsubscribe func()
}

func NewStore(provider Provider, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.Discard()
	}
	return &Store{
		provider:  provider,
		logger:    logger.WithComponent(log.ComponentSession),
		observers: make(map[int]ChangeFunc),
		ready:     make(chan struct{}),
	}
}

// Start subscribes to auth changes and launches the initial lookup. Calling
// it again has no effect.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.mu.Lock()
		s.unsubscribe = s.provider.OnAuthStateChange(s.replace)
		s.mu.Unlock()

		go s.lookup(ctx)
	})
}

func (s *Store) lookup(ctx context.Context) {
	defer s.markReady()

	current, err := s.provider.GetSession(ctx)
	if err != nil {
		s.logger.Warn("Initial session lookup failed, continuing signed out",
			log.FieldOperation, log.OpLookup,
			log.FieldError, err.Error())
		current = nil
	}

	s.mu.Lock()
	s.session = copySession(current)
	s.mu.Unlock()
}

func (s *Store) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// replace installs the session carried by a change notification in full.
func (s *Store) replace(change remote.AuthChange, next *core.Session) {
	s.mu.Lock()
	s.session = copySession(next)
	observers := make([]ChangeFunc, 0, len(s.observers))
	for _, fn := range s.observers {
		observers = append(observers, fn)
	}
	s.mu.Unlock()

	s.logger.Debug("Session replaced", log.FieldEvent, string(change))
	for _, fn := range observers {
		fn(change, copySession(next))
	}
}

// Ready is closed once the initial lookup has completed.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Wait blocks until the store is ready or ctx is done.
func (s *Store) Wait(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Session returns a copy of the current session or nil.
func (s *Store) Session() *core.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySession(s.session)
}

// User returns the user of the current session or nil.
func (s *Store) User() *core.User {
	current := s.Session()
	if current == nil {
		return nil
	}
	return &current.User
}

// OnChange registers fn for every subsequent session replacement.
func (s *Store) OnChange(fn ChangeFunc) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Close cancels the auth-change subscription. Waiters are released.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		unsubscribe := s.unsubscribe
		s.observers = make(map[int]ChangeFunc)
		s.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		s.markReady()
	})
}

func copySession(in *core.Session) *core.Session {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}
