package events

import (
	"context"
	"errors"
	"testing"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	var a, b []AuthEvent
	unsubA := bus.Subscribe(func(e AuthEvent) { a = append(a, e) })
	bus.Subscribe(func(e AuthEvent) { b = append(b, e) })

	if err := bus.PublishAuthEvent(context.Background(), AuthEvent{Type: SignedOut, UserID: "u1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	unsubA()
	unsubA()
	_ = bus.PublishAuthEvent(context.Background(), AuthEvent{Type: UserDeleted, UserID: "u2"})

	if len(a) != 1 || len(b) != 2 {
		t.Fatalf("deliveries a=%d b=%d, want 1 and 2", len(a), len(b))
	}
	if a[0].OccurredAt.IsZero() {
		t.Fatal("OccurredAt should be stamped")
	}
	if bus.Subscribers() != 1 {
		t.Fatalf("Subscribers = %d, want 1", bus.Subscribers())
	}
}

func TestBusCancelledContext(t *testing.T) {
	bus := NewBus()
	called := false
	bus.Subscribe(func(AuthEvent) { called = true })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := bus.PublishAuthEvent(ctx, AuthEvent{Type: SignedOut}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if called {
		t.Fatal("handler must not run for a cancelled publish")
	}
}

type failingPublisher struct{ err error }

func (f failingPublisher) PublishAuthEvent(context.Context, AuthEvent) error { return f.err }

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := NewBus()
	delivered := 0
	bus.Subscribe(func(AuthEvent) { delivered++ })

	err := Multi{failingPublisher{boom}, nil, bus, Discard{}}.PublishAuthEvent(context.Background(), AuthEvent{Type: SignedOut})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if delivered != 1 {
		t.Fatalf("bus should still receive the event, delivered=%d", delivered)
	}
}
