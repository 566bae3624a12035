// Package events carries auth-state notifications between the parts of the
// process that issue them (sign-out, demo cleanup) and the browser workspaces
// that must react to them.
package events

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Type names an auth-state change.
type Type string

const (
	SignedIn    Type = "SIGNED_IN"
	SignedOut   Type = "SIGNED_OUT"
	UserDeleted Type = "USER_DELETED"
)

// AuthEvent is emitted when the sessions of a user change server side.
type AuthEvent struct {
	Type       Type
	UserID     string
	OccurredAt time.Time
}

// Publisher accepts auth events for delivery.
type Publisher interface {
	PublishAuthEvent(ctx context.Context, e AuthEvent) error
}

// Source lets a subscriber receive every published auth event.
type Source interface {
	Subscribe(fn func(AuthEvent)) (unsubscribe func())
}

// Bus is an in-process fan-out of auth events. Handlers run synchronously on
// the publishing goroutine and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(AuthEvent)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(AuthEvent))}
}

// PublishAuthEvent delivers e to every current subscriber.
func (b *Bus) PublishAuthEvent(ctx context.Context, e AuthEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := make([]func(AuthEvent), 0, len(b.subs))
	for _, fn := range b.subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
	return nil
}

// Subscribe registers fn. The returned function removes it and is safe to
// call more than once.
func (b *Bus) Subscribe(fn func(AuthEvent)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Subscribers returns the number of registered handlers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) PublishAuthEvent(ctx context.Context, e AuthEvent) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.PublishAuthEvent(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every event.
type Discard struct{}

func (Discard) PublishAuthEvent(context.Context, AuthEvent) error { return nil }
