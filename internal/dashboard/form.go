package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Bota93/spendesk/internal/core"
)

// Mode is the state of the edit form.
type Mode int

const (
	ModeCreate Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}
	return "create"
}

// Values are the raw field values as entered in the form.
type Values struct {
	Description string
	Amount      string
	Date        string
	Kind        string
	Category    string
}

// DefaultValues are the create-mode fields for the given day.
func DefaultValues(today core.Date) Values {
	return Values{
		Date:     today.String(),
		Kind:     string(core.Expense),
		Category: string(core.Categories[0]),
	}
}

// ValuesFrom copies the editable fields of tx.
func ValuesFrom(tx core.Transaction) Values {
	return Values{
		Description: tx.Description,
		Amount:      core.AmountInput(tx.Amount),
		Date:        tx.Date.String(),
		Kind:        string(tx.Kind),
		Category:    string(tx.Category),
	}
}

// Input builds the payload owned by owner from the entered values.
func (v Values) Input(owner string) (core.TransactionInput, error) {
	amount, err := core.ParseAmount(v.Amount)
	if err != nil {
		return core.TransactionInput{}, err
	}
	date, err := core.ParseDate(v.Date)
	if err != nil {
		return core.TransactionInput{}, err
	}
	in := core.TransactionInput{
		UserID:      owner,
		Description: strings.TrimSpace(v.Description),
		Amount:      amount,
		Kind:        core.Kind(strings.TrimSpace(v.Kind)),
		Date:        date,
		Category:    core.Category(strings.TrimSpace(v.Category)),
	}
	if err := in.Validate(); err != nil {
		return core.TransactionInput{}, err
	}
	return in, nil
}

// writer is the subset of the remote client the form submits through.
type writer interface {
	Insert(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
	Update(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error)
}

// Form is the transaction edit form. Its mode follows the bound record:
// none means create, a record means edit.
type Form struct {
	writer   writer
	sessions SessionSource
	now      func() time.Time
	onSaved  func(ctx context.Context)
	onClose  func()

	mu         sync.Mutex
	bound      *core.Transaction
	values     Values
	submitting bool
}

func newForm(w writer, sessions SessionSource, now func() time.Time) *Form {
	f := &Form{
		writer:   w,
		sessions: sessions,
		now:      now,
		onSaved:  func(context.Context) {},
		onClose:  func() {},
	}
	f.Bind(nil)
	return f
}

// Bind re-derives mode and fields from tx. A nil tx resets the form to
// create-mode defaults.
func (f *Form) Bind(tx *core.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx == nil {
		f.bound = nil
		f.values = DefaultValues(core.Today(f.now()))
		return
	}
	bound := *tx
	f.bound = &bound
	f.values = ValuesFrom(bound)
}

func (f *Form) Mode() Mode {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound != nil {
		return ModeEdit
	}
	return ModeCreate
}

// BoundID returns the id of the record being edited, or 0 in create mode.
func (f *Form) BoundID() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bound == nil {
		return 0
	}
	return f.bound.ID
}

func (f *Form) Values() Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values
}

// Submitting reports whether a submission is in flight.
func (f *Form) Submitting() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submitting
}

// Submit saves v: an update of the bound record in edit mode, an insert
// otherwise. On success the controller refreshes and the form closes. On
// failure the entered values stay in the form.
func (f *Form) Submit(ctx context.Context, v Values) (core.Transaction, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return core.Transaction{}, ErrSubmitInProgress
	}
	f.submitting = true
	f.values = v
	var bound *core.Transaction
	if f.bound != nil {
		b := *f.bound
		bound = &b
	}
	f.mu.Unlock()

	saved, err := f.save(ctx, bound, v)

	f.mu.Lock()
	f.submitting = false
	f.mu.Unlock()

	if err != nil {
		return core.Transaction{}, err
	}
	f.onSaved(ctx)
	f.onClose()
	return saved, nil
}

func (f *Form) save(ctx context.Context, bound *core.Transaction, v Values) (core.Transaction, error) {
	user := f.sessions.User()
	if user == nil {
		return core.Transaction{}, ErrNoSession
	}
	in, err := v.Input(user.ID)
	if err != nil {
		return core.Transaction{}, err
	}

	if bound != nil {
		saved, err := f.writer.Update(ctx, bound.ID, in)
		if err != nil {
			return core.Transaction{}, fmt.Errorf("update transaction %d: %w", bound.ID, err)
		}
		return saved, nil
	}

	saved, err := f.writer.Insert(ctx, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return saved, nil
}
