// Package worker holds the background jobs of the self-hosted backend.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
)

// DemoStore is the slice of storage the reaper needs.
type DemoStore interface {
	ListIdleDemoUsers(ctx context.Context, cutoff time.Time) ([]core.User, error)
	DeleteUser(ctx context.Context, id string) error
}

// DemoReaper deletes demo accounts, and everything they own, once they have
// been idle for maxIdle. Each deletion is announced as USER_DELETED so open
// workspaces of the account sign out.
type DemoReaper struct {
	store     DemoStore
	publisher events.Publisher
	maxIdle   time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *log.Logger
}

func NewDemoReaper(store DemoStore, publisher events.Publisher, maxIdle, interval time.Duration, logger *log.Logger) *DemoReaper {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &DemoReaper{
		store:     store,
		publisher: publisher,
		maxIdle:   maxIdle,
		interval:  interval,
		now:       time.Now,
		logger:    logger.WithComponent(log.ComponentWorker),
	}
}

// Run reaps once immediately and then on every tick until ctx ends.
func (r *DemoReaper) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "Demo reaper started",
		"interval", r.interval.String(),
		"max_idle", r.maxIdle.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.ReapOnce(ctx); err != nil && ctx.Err() == nil {
			r.logger.ErrorContext(ctx, "Demo reap failed",
				log.FieldOperation, log.OpReap,
				log.FieldError, err.Error())
		}

		select {
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Demo reaper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// ReapOnce deletes the currently idle demo users and returns how many were
// removed. A failure on one user does not stop the others.
func (r *DemoReaper) ReapOnce(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.maxIdle)
	users, err := r.store.ListIdleDemoUsers(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("list idle demo users: %w", err)
	}

	var errs []error
	deleted := 0
	for _, u := range users {
		if err := r.store.DeleteUser(ctx, u.ID); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				continue
			}
			errs = append(errs, fmt.Errorf("delete demo user %s: %w", u.ID, err))
			continue
		}
		deleted++

		e := events.AuthEvent{Type: events.UserDeleted, UserID: u.ID, OccurredAt: r.now()}
		if err := r.publisher.PublishAuthEvent(ctx, e); err != nil {
			r.logger.WarnContext(ctx, "Failed to announce demo user deletion",
				log.FieldUserID, u.ID,
				log.FieldError, err.Error())
		}
	}

	if deleted > 0 {
		r.logger.InfoContext(ctx, "Reaped idle demo users",
			log.FieldOperation, log.OpReap,
			log.FieldCount, deleted)
	}
	return deleted, errors.Join(errs...)
}
