// Package storagetest is the behaviour every storage.Repository must show.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/storage"
)

// Factory returns a fresh, empty repository. It must register its own cleanup.
type Factory func(t *testing.T) storage.Repository

// Run executes the contract suite against repositories built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo storage.Repository)
	}{
		{"users", testUsers},
		{"sessions", testSessions},
		{"transactions CRUD", testTransactionsCRUD},
		{"transactions ordering", testTransactionsOrdering},
		{"transactions are scoped to owner", testTransactionsScoping},
		{"idle demo users", testIdleDemoUsers},
		{"delete user cascades", testDeleteUserCascades},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newRepo(t))
		})
	}
}

func newUser(t *testing.T, repo storage.Repository, isDemo bool, createdAt time.Time) core.User {
	t.Helper()
	u := core.User{
		ID:        uuid.NewString(),
		Email:     uuid.NewString() + "@example.com",
		IsDemo:    isDemo,
		CreatedAt: createdAt.UTC().Truncate(time.Microsecond),
	}
	if err := repo.CreateUser(context.Background(), u, "hash-"+u.ID); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	return u
}

func input(owner, description, amount string, kind core.Kind, date string) core.TransactionInput {
	d, err := core.ParseDate(date)
	if err != nil {
		panic(err)
	}
	return core.TransactionInput{
		UserID:      owner,
		Description: description,
		Amount:      decimal.RequireFromString(amount),
		Kind:        kind,
		Date:        d,
		Category:    core.Food,
	}
}

func testUsers(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := newUser(t, repo, true, time.Now())

	got, hash, err := repo.GetUserByEmail(ctx, u.Email)
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if got.ID != u.ID || !got.IsDemo || hash != "hash-"+u.ID {
		t.Fatalf("unexpected user %+v hash=%q", got, hash)
	}

	byID, err := repo.GetUserByID(ctx, u.ID)
	if err != nil || byID.Email != u.Email {
		t.Fatalf("GetUserByID = %+v, %v", byID, err)
	}

	dup := core.User{ID: uuid.NewString(), Email: u.Email}
	if err := repo.CreateUser(ctx, dup, "x"); !errors.Is(err, core.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	if _, _, err := repo.GetUserByEmail(ctx, "missing@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := repo.GetUserByID(ctx, uuid.NewString()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.TouchUser(ctx, uuid.NewString(), time.Now()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("TouchUser of unknown user: expected ErrNotFound, got %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func testSessions(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := newUser(t, repo, false, now)
	other := newUser(t, repo, false, now)

	rec := storage.SessionRecord{ID: uuid.NewString(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	otherRec := storage.SessionRecord{ID: uuid.NewString(), UserID: other.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	for _, r := range []storage.SessionRecord{rec, otherRec} {
		if err := repo.CreateSession(ctx, r); err != nil {
			t.Fatalf("CreateSession: %v", err)
		}
	}

	got, err := repo.GetSession(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.UserID != u.ID || !got.ExpiresAt.Equal(rec.ExpiresAt) || !got.Active(now) {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.Active(now.Add(2 * time.Hour)) {
		t.Fatal("session must not be active after expiry")
	}

	if err := repo.RevokeUserSessions(ctx, u.ID); err != nil {
		t.Fatalf("RevokeUserSessions: %v", err)
	}
	got, _ = repo.GetSession(ctx, rec.ID)
	if !got.Revoked {
		t.Fatal("session should be revoked")
	}
	if o, _ := repo.GetSession(ctx, otherRec.ID); o.Revoked {
		t.Fatal("revocation must not touch other users")
	}

	if _, err := repo.GetSession(ctx, uuid.NewString()); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testTransactionsCRUD(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := newUser(t, repo, false, time.Now())

	created, err := repo.CreateTransaction(ctx, input(u.ID, "Groceries", "45.50", core.Expense, "2024-09-07"))
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if created.ID == 0 || created.UserID != u.ID || created.Description != "Groceries" ||
		!created.Amount.Equal(decimal.RequireFromString("45.50")) || created.Kind != core.Expense ||
		created.Date.String() != "2024-09-07" || created.Category != core.Food || created.CreatedAt.IsZero() {
		t.Fatalf("unexpected created row %+v", created)
	}

	change := input(u.ID, "Salary", "2000.00", core.Income, "2024-09-01")
	change.Category = core.Salary
	updated, err := repo.UpdateTransaction(ctx, u.ID, created.ID, change)
	if err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	if updated.ID != created.ID || updated.Kind != core.Income || updated.Category != core.Salary ||
		!updated.Amount.Equal(decimal.RequireFromString("2000")) || updated.Date.String() != "2024-09-01" {
		t.Fatalf("unexpected updated row %+v", updated)
	}

	list, err := repo.ListTransactions(ctx, u.ID)
	if err != nil || len(list) != 1 || list[0].Description != "Salary" {
		t.Fatalf("ListTransactions = %+v, %v", list, err)
	}

	if err := repo.DeleteTransaction(ctx, u.ID, created.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	if err := repo.DeleteTransaction(ctx, u.ID, created.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if _, err := repo.UpdateTransaction(ctx, u.ID, created.ID, change); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update of deleted row: expected ErrNotFound, got %v", err)
	}

	list, err = repo.ListTransactions(ctx, u.ID)
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("expected an empty non-nil list, got %#v, %v", list, err)
	}
}

func testTransactionsOrdering(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	u := newUser(t, repo, false, time.Now())

	dates := []string{"2024-01-15", "2024-03-01", "2024-01-15", "2023-12-31"}
	var ids []int64
	for _, d := range dates {
		tx, err := repo.CreateTransaction(ctx, input(u.ID, "row "+d, "1.00", core.Expense, d))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, tx.ID)
	}

	list, err := repo.ListTransactions(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{ids[1], ids[2], ids[0], ids[3]}
	if len(list) != len(want) {
		t.Fatalf("got %d rows, want %d", len(list), len(want))
	}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("position %d: got id %d (%s), want %d", i, list[i].ID, list[i].Date, id)
		}
	}
}

func testTransactionsScoping(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	owner := newUser(t, repo, false, time.Now())
	intruder := newUser(t, repo, false, time.Now())

	tx, err := repo.CreateTransaction(ctx, input(owner.ID, "Rent", "650.00", core.Expense, "2024-09-01"))
	if err != nil {
		t.Fatal(err)
	}

	if list, _ := repo.ListTransactions(ctx, intruder.ID); len(list) != 0 {
		t.Fatalf("intruder sees %d rows", len(list))
	}
	if _, err := repo.UpdateTransaction(ctx, intruder.ID, tx.ID, input(intruder.ID, "x", "1", core.Income, "2024-01-01")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign update: expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteTransaction(ctx, intruder.ID, tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign delete: expected ErrNotFound, got %v", err)
	}

	list, _ := repo.ListTransactions(ctx, owner.ID)
	if len(list) != 1 || list[0].Description != "Rent" {
		t.Fatalf("owner row changed: %+v", list)
	}
}

func testIdleDemoUsers(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	now := time.Now().UTC()
	idle := newUser(t, repo, true, now.Add(-2*time.Hour))
	active := newUser(t, repo, true, now.Add(-2*time.Hour))
	regular := newUser(t, repo, false, now.Add(-2*time.Hour))
	_ = regular

	if err := repo.TouchUser(ctx, active.ID, now); err != nil {
		t.Fatalf("TouchUser: %v", err)
	}
	// Older activity never moves last-seen backwards.
	if err := repo.TouchUser(ctx, active.ID, now.Add(-3*time.Hour)); err != nil {
		t.Fatalf("TouchUser: %v", err)
	}

	users, err := repo.ListIdleDemoUsers(ctx, now.Add(-30*time.Minute))
	if err != nil {
		t.Fatalf("ListIdleDemoUsers: %v", err)
	}
	found := false
	for _, u := range users {
		switch u.ID {
		case idle.ID:
			found = true
		case active.ID, regular.ID:
			t.Fatalf("user %s should not be idle", u.ID)
		}
	}
	if !found {
		t.Fatal("idle demo user not listed")
	}
}

func testDeleteUserCascades(t *testing.T, repo storage.Repository) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	u := newUser(t, repo, true, now)
	keep := newUser(t, repo, false, now)

	rec := storage.SessionRecord{ID: uuid.NewString(), UserID: u.ID, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := repo.CreateSession(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTransaction(ctx, input(u.ID, "Coffee", "2.00", core.Expense, "2024-09-07")); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.CreateTransaction(ctx, input(keep.ID, "Book", "12.00", core.Expense, "2024-09-07")); err != nil {
		t.Fatal(err)
	}

	if err := repo.DeleteUser(ctx, u.ID); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if _, err := repo.GetUserByID(ctx, u.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("deleted user still present: %v", err)
	}
	if _, err := repo.GetSession(ctx, rec.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("sessions of deleted user should be gone: %v", err)
	}
	if list, _ := repo.ListTransactions(ctx, u.ID); len(list) != 0 {
		t.Fatalf("transactions of deleted user should be gone, got %d", len(list))
	}
	if list, _ := repo.ListTransactions(ctx, keep.ID); len(list) != 1 {
		t.Fatal("other users must keep their transactions")
	}
	if err := repo.DeleteUser(ctx, u.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second DeleteUser: expected ErrNotFound, got %v", err)
	}
}
