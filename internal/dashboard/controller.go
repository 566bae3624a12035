// Package dashboard holds the transaction list of a signed-in user together
// with the form used to create and edit its entries.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote"
)

// DeletePrompt is the question a Confirmer answers before a delete.
const DeletePrompt = "¿Seguro que quieres eliminar este movimiento?"

var (
	ErrNoSession        = errors.New("no active session")
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// Remote is the part of the remote client the controller talks to.
type Remote interface {
	Select(ctx context.Context, q remote.Query) ([]core.Transaction, error)
	Insert(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	Update(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error)
	Delete(ctx context.Context, id int64) error
	SignOut(ctx context.Context) error
}

// SessionSource exposes the current session of the workspace.
type SessionSource interface {
	Session() *core.Session
	User() *core.User
}

// Confirmer answers a blocking yes/no prompt.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// Controller owns the in-memory transaction set of the current user.
type Controller struct {
	remote   Remote
	sessions SessionSource
	logger   *log.Logger
	now      func() time.Time
	form     *Form

	mu           sync.Mutex
	transactions []core.Transaction
	loading      bool
	open         bool
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *log.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock sets the clock used for the form's default date.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func NewController(r Remote, sessions SessionSource, opts ...Option) *Controller {
	c := &Controller{
		remote:   r,
		sessions: sessions,
		logger:   log.Discard(),
		now:      time.Now,
		loading:  true,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent(log.ComponentDashboard)
	c.form = newForm(r, sessions, c.now)
	c.form.onSaved = c.refresh
	c.form.onClose = c.CloseForm
	return c
}

// Fetch replaces the transaction set with the user's rows, newest first.
// On failure the previous set is kept.
func (c *Controller) Fetch(ctx context.Context) error {
	user := c.sessions.User()
	if user == nil {
		return ErrNoSession
	}

	c.setLoading(true)
	defer c.setLoading(false)

	rows, err := c.remote.Select(ctx, remote.OwnedNewestFirst(user.ID))
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch transactions",
			log.FieldOperation, log.OpList,
			log.FieldUserID, user.ID,
			log.FieldError, err.Error())
		return fmt.Errorf("fetch transactions: %w", err)
	}

	c.mu.Lock()
	c.transactions = append([]core.Transaction(nil), rows...)
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "Transactions fetched",
		log.FieldUserID, user.ID,
		log.FieldCount, len(rows))
	return nil
}

func (c *Controller) refresh(ctx context.Context) {
	_ = c.Fetch(ctx)
}

func (c *Controller) setLoading(v bool) {
	c.mu.Lock()
	c.loading = v
	c.mu.Unlock()
}

// OpenCreate opens the form with no bound record.
func (c *Controller) OpenCreate() {
	c.form.Bind(nil)
	c.setOpen(true)
}

// OpenEdit opens the form bound to tx.
func (c *Controller) OpenEdit(tx core.Transaction) {
	c.form.Bind(&tx)
	c.setOpen(true)
}

// OpenEditByID opens the form bound to the in-memory record with id.
func (c *Controller) OpenEditByID(id int64) (core.Transaction, error) {
	tx, ok := c.find(id)
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	c.OpenEdit(tx)
	return tx, nil
}

// FormFor returns the form bound to the record a submission was opened for,
// id 0 meaning create mode. Every tab of a browser shares one form, so the
// submitted id decides the mode rather than whichever tab opened last.
func (c *Controller) FormFor(id int64) (*Form, error) {
	if c.form.BoundID() == id {
		return c.form, nil
	}
	if id == 0 {
		c.OpenCreate()
		return c.form, nil
	}
	if _, err := c.OpenEditByID(id); err != nil {
		return nil, err
	}
	return c.form, nil
}

// CloseForm closes the form and drops its bound record so the next open
// starts in create mode.
func (c *Controller) CloseForm() {
	c.setOpen(false)
	c.form.Bind(nil)
}

func (c *Controller) setOpen(v bool) {
	c.mu.Lock()
	c.open = v
	c.mu.Unlock()
}

// Delete removes the record with id once confirm agrees. The record leaves
// the in-memory set only after the backend confirmed the delete. It reports
// whether a delete took place.
func (c *Controller) Delete(ctx context.Context, id int64, confirm Confirmer) (bool, error) {
	if confirm == nil || !confirm.Confirm(DeletePrompt) {
		return false, nil
	}

	if err := c.remote.Delete(ctx, id); err != nil {
		c.logger.ErrorContext(ctx, "Failed to delete transaction",
			log.FieldOperation, log.OpDelete,
			log.FieldTxID, id,
			log.FieldError, err.Error())
		return false, fmt.Errorf("delete transaction %d: %w", id, err)
	}

	c.mu.Lock()
	kept := c.transactions[:0:0]
	for _, tx := range c.transactions {
		if tx.ID != id {
			kept = append(kept, tx)
		}
	}
	c.transactions = kept
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "Transaction deleted",
		log.FieldOperation, log.OpDelete,
		log.FieldTxID, id)
	return true, nil
}

// Logout signs the workspace out. The transaction set is left as is.
func (c *Controller) Logout(ctx context.Context) error {
	if err := c.remote.SignOut(ctx); err != nil {
		c.logger.ErrorContext(ctx, "Sign out failed",
			log.FieldOperation, log.OpSignOut,
			log.FieldError, err.Error())
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Balance is the signed sum of the current set.
func (c *Controller) Balance() decimal.Decimal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.Balance(c.transactions)
}

// Snapshot is the set, its balance and the loading flag read under one lock.
type Snapshot struct {
	Transactions []core.Transaction
	Balance      decimal.Decimal
	Loading      bool
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	txs := append([]core.Transaction(nil), c.transactions...)
	return Snapshot{Transactions: txs, Balance: core.Balance(txs), Loading: c.loading}
}

// Transactions returns a copy of the current set.
func (c *Controller) Transactions() []core.Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Transaction(nil), c.transactions...)
}

func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *Controller) Form() *Form {
	return c.form
}

func (c *Controller) find(id int64) (core.Transaction, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tx := range c.transactions {
		if tx.ID == id {
			return tx, true
		}
	}
	return core.Transaction{}, false
}
