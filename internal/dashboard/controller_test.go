package dashboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/remote"
)

var fixedNow = time.Date(2024, 9, 7, 15, 4, 5, 0, time.UTC)

// fakeRemote stores rows in memory and scopes every call to the signed-in user.
type fakeRemote struct {
	mu        sync.Mutex
	rows      map[int64]core.Transaction
	nextID    int64
	selectErr error
	deleteErr error
	insertErr error
	selects   int
	deletes   int
	signOuts  int
}

func newFakeRemote(rows ...core.Transaction) *fakeRemote {
	f := &fakeRemote{rows: map[int64]core.Transaction{}, nextID: 1}
	for _, r := range rows {
		if r.ID >= f.nextID {
			f.nextID = r.ID + 1
		}
		f.rows[r.ID] = r
	}
	return f
}

func (f *fakeRemote) Select(_ context.Context, q remote.Query) ([]core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selects++
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	var out []core.Transaction
	for _, r := range f.rows {
		if r.UserID == q.OwnerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[i].Date.After(out[j].Date.Time)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (f *fakeRemote) Insert(_ context.Context, in core.TransactionInput) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return core.Transaction{}, f.insertErr
	}
	tx := core.Transaction{ID: f.nextID, UserID: in.UserID, Description: in.Description,
		Amount: in.Amount, Kind: in.Kind, Date: in.Date, Category: in.Category}
	f.nextID++
	f.rows[tx.ID] = tx
	return tx, nil
}

func (f *fakeRemote) Update(_ context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	existing, ok := f.rows[id]
	if !ok {
		return core.Transaction{}, core.ErrNotFound
	}
	tx := core.Transaction{ID: id, UserID: in.UserID, Description: in.Description,
		Amount: in.Amount, Kind: in.Kind, Date: in.Date, Category: in.Category, CreatedAt: existing.CreatedAt}
	f.rows[id] = tx
	return tx, nil
}

func (f *fakeRemote) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if _, ok := f.rows[id]; !ok {
		return core.ErrNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeRemote) SignOut(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return nil
}

func (f *fakeRemote) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeSessions struct{ session *core.Session }

func (f *fakeSessions) Session() *core.Session { return f.session }

func (f *fakeSessions) User() *core.User {
	if f.session == nil {
		return nil
	}
	u := f.session.User
	return &u
}

func signedIn(id string) *fakeSessions {
	return &fakeSessions{session: &core.Session{AccessToken: "token", User: core.User{ID: id, Email: id + "@example.com"}}}
}

func tx(id int64, owner string, kind core.Kind, amount, date string) core.Transaction {
	d, _ := core.ParseDate(date)
	return core.Transaction{
		ID:          id,
		UserID:      owner,
		Description: "row",
		Amount:      decimal.RequireFromString(amount),
		Kind:        kind,
		Date:        d,
		Category:    core.Other,
	}
}

func newTestController(r Remote, s SessionSource) *Controller {
	return NewController(r, s, WithClock(func() time.Time { return fixedNow }))
}

func yes() Confirmer { return ConfirmFunc(func(string) bool { return true }) }
func no() Confirmer  { return ConfirmFunc(func(string) bool { return false }) }

func TestFetchRequiresSession(t *testing.T) {
	r := newFakeRemote()
	c := newTestController(r, &fakeSessions{})
	if err := c.Fetch(context.Background()); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
	if r.selects != 0 {
		t.Fatal("no query should run without a session")
	}
}

func TestFetchOrdersNewestFirstAndScopesToOwner(t *testing.T) {
	r := newFakeRemote(
		tx(1, "u1", core.Expense, "10.00", "2024-01-01"),
		tx(2, "u1", core.Income, "20.00", "2024-03-01"),
		tx(3, "u2", core.Income, "99.00", "2024-02-01"),
	)
	c := newTestController(r, signedIn("u1"))

	if !c.Loading() {
		t.Fatal("controller should start in the loading state")
	}
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if c.Loading() {
		t.Fatal("loading flag should be cleared after fetch")
	}

	got := c.Transactions()
	if len(got) != 2 || got[0].ID != 2 || got[1].ID != 1 {
		t.Fatalf("unexpected rows %+v", got)
	}
	if want := decimal.RequireFromString("10.00"); !c.Balance().Equal(want) {
		t.Fatalf("Balance = %s, want %s", c.Balance(), want)
	}
}

func TestFailedFetchKeepsPreviousList(t *testing.T) {
	r := newFakeRemote(tx(1, "u1", core.Income, "5.00", "2024-01-01"))
	c := newTestController(r, signedIn("u1"))
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}

	r.selectErr = errors.New("connection reset")
	if err := c.Fetch(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if got := c.Transactions(); len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("previous list must be preserved, got %+v", got)
	}
	if c.Loading() {
		t.Fatal("loading flag should be cleared after a failed fetch")
	}
}

func TestFormDefaultsAndEditBinding(t *testing.T) {
	existing := tx(7, "u1", core.Income, "1850.00", "2024-08-31")
	existing.Description = "Nómina"
	existing.Category = core.Salary
	c := newTestController(newFakeRemote(existing), signedIn("u1"))

	c.OpenCreate()
	want := Values{Date: "2024-09-07", Kind: "expense", Category: "Food"}
	if got := c.Form().Values(); got != want {
		t.Fatalf("create defaults = %+v, want %+v", got, want)
	}
	if c.Form().Mode() != ModeCreate || !c.IsOpen() {
		t.Fatal("OpenCreate should open the form in create mode")
	}

	c.OpenEdit(existing)
	wantEdit := Values{Description: "Nómina", Amount: "1850.00", Date: "2024-08-31", Kind: "income", Category: "Salary"}
	if got := c.Form().Values(); got != wantEdit {
		t.Fatalf("edit values = %+v, want %+v", got, wantEdit)
	}
	if c.Form().Mode() != ModeEdit || c.Form().BoundID() != 7 {
		t.Fatal("OpenEdit should bind the record")
	}

	// Closing and reopening in create mode must not leak the edited record.
	c.CloseForm()
	if c.IsOpen() {
		t.Fatal("CloseForm should close the form")
	}
	c.OpenCreate()
	if got := c.Form().Values(); got != want || c.Form().Mode() != ModeCreate || c.Form().BoundID() != 0 {
		t.Fatalf("stale edit state after reopen: %+v mode=%v", got, c.Form().Mode())
	}
}

func TestOpenEditByID(t *testing.T) {
	r := newFakeRemote(tx(3, "u1", core.Expense, "1.00", "2024-01-01"))
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(context.Background())

	if _, err := c.OpenEditByID(3); err != nil {
		t.Fatalf("OpenEditByID: %v", err)
	}
	if _, err := c.OpenEditByID(42); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFormForFollowsSubmittedID(t *testing.T) {
	r := newFakeRemote(
		tx(3, "u1", core.Expense, "1.00", "2024-01-01"),
		tx(4, "u1", core.Income, "2.00", "2024-01-02"),
	)
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(context.Background())

	c.OpenEdit(c.Transactions()[1])
	tests := []struct {
		name    string
		id      int64
		mode    Mode
		bound   int64
		wantErr error
	}{
		{"same record keeps the form", 3, ModeEdit, 3, nil},
		{"no id switches to create", 0, ModeCreate, 0, nil},
		{"other record rebinds", 4, ModeEdit, 4, nil},
		{"unknown record", 42, ModeEdit, 4, core.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := c.FormFor(tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				f = c.Form()
			} else if err != nil {
				t.Fatalf("FormFor(%d): %v", tt.id, err)
			}
			if f.Mode() != tt.mode || f.BoundID() != tt.bound {
				t.Fatalf("mode=%v bound=%d, want mode=%v bound=%d", f.Mode(), f.BoundID(), tt.mode, tt.bound)
			}
		})
	}
}

func TestSnapshotIsConsistent(t *testing.T) {
	r := newFakeRemote(
		tx(1, "u1", core.Income, "40.00", "2024-01-01"),
		tx(2, "u1", core.Expense, "15.50", "2024-01-02"),
	)
	c := newTestController(r, signedIn("u1"))

	if snap := c.Snapshot(); !snap.Loading || len(snap.Transactions) != 0 || !snap.Balance.IsZero() {
		t.Fatalf("snapshot before fetch = %+v", snap)
	}
	if err := c.Fetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	snap := c.Snapshot()
	if snap.Loading {
		t.Fatal("snapshot should not be loading after fetch")
	}
	if len(snap.Transactions) != 2 || !snap.Balance.Equal(core.Balance(snap.Transactions)) {
		t.Fatalf("snapshot balance %s does not match its rows %+v", snap.Balance, snap.Transactions)
	}
	if want := decimal.RequireFromString("24.50"); !snap.Balance.Equal(want) {
		t.Fatalf("Balance = %s, want %s", snap.Balance, want)
	}
}

func TestCreateScenario(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote(tx(1, "u1", core.Income, "100.00", "2024-09-01"))
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)
	before := c.Balance()

	c.OpenCreate()
	saved, err := c.Form().Submit(ctx, Values{
		Description: "Groceries",
		Amount:      "45.50",
		Date:        "2024-09-07",
		Kind:        "expense",
		Category:    "Food",
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	got := c.Transactions()
	if len(got) != 2 {
		t.Fatalf("expected 2 rows after insert, got %d", len(got))
	}
	var found *core.Transaction
	for i := range got {
		if got[i].ID == saved.ID {
			found = &got[i]
		}
	}
	if found == nil {
		t.Fatal("inserted row missing from refreshed list")
	}
	if found.Description != "Groceries" || !found.Amount.Equal(decimal.RequireFromString("45.50")) ||
		found.Date.String() != "2024-09-07" || found.Kind != core.Expense || found.Category != core.Food || found.UserID != "u1" {
		t.Fatalf("unexpected inserted row %+v", found)
	}
	if diff := before.Sub(c.Balance()); !diff.Equal(decimal.RequireFromString("45.50")) {
		t.Fatalf("balance should drop by 45.50, dropped by %s", diff)
	}
	if c.IsOpen() || c.Form().Mode() != ModeCreate {
		t.Fatal("form should close after a successful submit")
	}
}

func TestEditScenario(t *testing.T) {
	ctx := context.Background()
	salary := tx(5, "u1", core.Income, "1850.00", "2024-08-31")
	r := newFakeRemote(salary, tx(6, "u1", core.Expense, "20.00", "2024-09-01"))
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)
	before := c.Balance()

	if _, err := c.OpenEditByID(5); err != nil {
		t.Fatal(err)
	}
	v := c.Form().Values()
	v.Amount = "2000.00"
	if _, err := c.Form().Submit(ctx, v); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if diff := c.Balance().Sub(before); !diff.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("balance should rise by 150.00, rose by %s", diff)
	}
	if len(c.Transactions()) != 2 {
		t.Fatal("edit must not change the record count")
	}
}

func TestSubmitFailureKeepsValues(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote()
	r.insertErr = errors.New("insert rejected")
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)
	c.OpenCreate()

	entered := Values{Description: "Cine", Amount: "12,5", Date: "2024-09-07", Kind: "expense", Category: "Leisure"}
	if _, err := c.Form().Submit(ctx, entered); err == nil {
		t.Fatal("expected submit error")
	}
	if !c.IsOpen() || c.Form().Values() != entered || c.Form().Submitting() {
		t.Fatal("form should stay open with the entered values")
	}
}

func TestSubmitRejectsMalformedAmount(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote()
	c := newTestController(r, signedIn("u1"))
	c.OpenCreate()

	for _, amount := range []string{"", "abc", "-3", "1.005", "1e3"} {
		v := Values{Description: "x", Amount: amount, Date: "2024-09-07", Kind: "expense", Category: "Food"}
		if _, err := c.Form().Submit(ctx, v); !errors.Is(err, core.ErrInvalidAmount) {
			t.Errorf("amount %q: expected ErrInvalidAmount, got %v", amount, err)
		}
	}
	if r.count() != 0 {
		t.Fatal("invalid submissions must not reach storage")
	}
}

type blockingWriter struct {
	*fakeRemote
	entered chan struct{}
	release chan struct{}
}

func (b *blockingWriter) Insert(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	close(b.entered)
	<-b.release
	return b.fakeRemote.Insert(ctx, in)
}

func TestSubmitGatesDuplicates(t *testing.T) {
	ctx := context.Background()
	r := &blockingWriter{fakeRemote: newFakeRemote(), entered: make(chan struct{}), release: make(chan struct{})}
	c := newTestController(r, signedIn("u1"))
	c.OpenCreate()
	v := Values{Description: "Café", Amount: "2", Date: "2024-09-07", Kind: "expense", Category: "Food"}

	done := make(chan error, 1)
	go func() {
		_, err := c.Form().Submit(ctx, v)
		done <- err
	}()
	<-r.entered

	if !c.Form().Submitting() {
		t.Fatal("Submitting should be true while the insert is in flight")
	}
	if _, err := c.Form().Submit(ctx, v); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("expected ErrSubmitInProgress, got %v", err)
	}

	close(r.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if r.count() != 1 {
		t.Fatalf("expected exactly one insert, got %d", r.count())
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote(tx(1, "u1", core.Expense, "3.00", "2024-01-01"))
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)

	deleted, err := c.Delete(ctx, 1, no())
	if err != nil || deleted {
		t.Fatalf("unconfirmed delete = %v, %v", deleted, err)
	}
	if r.deletes != 0 || r.count() != 1 || len(c.Transactions()) != 1 {
		t.Fatal("unconfirmed delete must not touch memory or storage")
	}
	if deleted, _ := c.Delete(ctx, 1, nil); deleted {
		t.Fatal("a nil confirmer must not delete")
	}
}

func TestDeleteRemovesLocallyWithoutRefetch(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote(
		tx(1, "u1", core.Expense, "3.00", "2024-01-01"),
		tx(2, "u1", core.Income, "10.00", "2024-01-02"),
	)
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)
	selects := r.selects

	deleted, err := c.Delete(ctx, 1, yes())
	if err != nil || !deleted {
		t.Fatalf("Delete = %v, %v", deleted, err)
	}
	if r.selects != selects {
		t.Fatal("delete should not refetch")
	}
	if got := c.Transactions(); len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("unexpected rows after delete %+v", got)
	}
	if !c.Balance().Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("Balance = %s", c.Balance())
	}
}

func TestDeleteFailureLeavesMemory(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote(tx(1, "u1", core.Expense, "3.00", "2024-01-01"))
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)

	r.deleteErr = errors.New("permission denied")
	deleted, err := c.Delete(ctx, 1, yes())
	if err == nil || deleted {
		t.Fatalf("expected failed delete, got %v, %v", deleted, err)
	}
	if len(c.Transactions()) != 1 {
		t.Fatal("failed delete must keep the row in memory")
	}
}

func TestBalanceTracksMutations(t *testing.T) {
	ctx := context.Background()
	r := newFakeRemote()
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(ctx)

	steps := []Values{
		{Description: "Sueldo", Amount: "1000", Date: "2024-09-01", Kind: "income", Category: "Salary"},
		{Description: "Alquiler", Amount: "650.25", Date: "2024-09-02", Kind: "expense", Category: "Housing"},
		{Description: "Bus", Amount: "1.10", Date: "2024-09-03", Kind: "expense", Category: "Transport"},
	}
	for _, v := range steps {
		c.OpenCreate()
		if _, err := c.Form().Submit(ctx, v); err != nil {
			t.Fatalf("Submit %q: %v", v.Description, err)
		}
		if !c.Balance().Equal(core.Balance(c.Transactions())) {
			t.Fatal("balance must equal the signed sum of present rows")
		}
	}

	if _, err := c.Delete(ctx, c.Transactions()[0].ID, yes()); err != nil {
		t.Fatal(err)
	}
	if want := decimal.RequireFromString("349.75"); !c.Balance().Equal(want) {
		t.Fatalf("Balance = %s, want %s", c.Balance(), want)
	}
}

func TestLogout(t *testing.T) {
	r := newFakeRemote(tx(1, "u1", core.Income, "3.00", "2024-01-01"))
	c := newTestController(r, signedIn("u1"))
	_ = c.Fetch(context.Background())

	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if r.signOuts != 1 {
		t.Fatalf("expected one sign-out, got %d", r.signOuts)
	}
}
