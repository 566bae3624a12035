package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Bota93/spendesk/internal/auth"
	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/remote"
	"github.com/Bota93/spendesk/internal/storage/memory"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fixture struct {
	store  *memory.Store
	bus    *events.Bus
	auth   *AuthService
	txs    *TransactionService
	events []events.AuthEvent
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), bus: events.NewBus()}
	f.bus.Subscribe(func(e events.AuthEvent) { f.events = append(f.events, e) })
	f.auth = NewAuthService(f.store, auth.NewIssuer(testSecret, nil), f.bus, time.Hour, nil)
	f.txs = NewTransactionService(f.auth, f.store, nil)
	return f
}

func (f *fixture) signUp(t *testing.T, email string) *core.Session {
	t.Helper()
	s, err := f.auth.SignUp(context.Background(), email, "secret1", core.UserMetadata{})
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return s
}

func groceries(owner string) core.TransactionInput {
	return core.TransactionInput{
		UserID:      owner,
		Description: "Groceries",
		Amount:      decimal.RequireFromString("45.50"),
		Kind:        core.Expense,
		Date:        core.NewDate(2024, 9, 7),
		Category:    core.Food,
	}
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	s := f.signUp(t, " Ana@Example.com ")
	if s.User.Email != "ana@example.com" || s.AccessToken == "" || s.User.ID == "" || s.IssuedAt.IsZero() {
		t.Fatalf("unexpected session %+v", s)
	}

	if _, err := f.auth.SignUp(ctx, "ana@example.com", "another1", core.UserMetadata{}); !errors.Is(err, core.ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}

	signedIn, err := f.auth.SignIn(ctx, "ana@example.com", "secret1")
	if err != nil {
		t.Fatalf("SignIn: %v", err)
	}
	if signedIn.User.ID != s.User.ID || signedIn.AccessToken == s.AccessToken {
		t.Fatalf("sign-in should open a new session for the same user: %+v", signedIn)
	}

	for _, tc := range []struct{ email, password string }{
		{"ana@example.com", "wrong-password"},
		{"nobody@example.com", "secret1"},
		{"not an email", "secret1"},
	} {
		if _, err := f.auth.SignIn(ctx, tc.email, tc.password); !errors.Is(err, core.ErrInvalidCredentials) {
			t.Errorf("SignIn(%q, %q): expected ErrInvalidCredentials, got %v", tc.email, tc.password, err)
		}
	}
}

func TestSignUpValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.auth.SignUp(ctx, "bad", "secret1", core.UserMetadata{}); !errors.Is(err, core.ErrInvalidEmail) {
		t.Fatalf("expected ErrInvalidEmail, got %v", err)
	}
	if _, err := f.auth.SignUp(ctx, "ok@example.com", "123", core.UserMetadata{}); !errors.Is(err, core.ErrWeakPassword) {
		t.Fatalf("expected ErrWeakPassword, got %v", err)
	}
}

func TestDemoMetadataIsKept(t *testing.T) {
	f := newFixture(t)
	email, password, err := auth.NewDemoCredentials()
	if err != nil {
		t.Fatal(err)
	}
	s, err := f.auth.SignUp(context.Background(), email, password, core.UserMetadata{IsDemo: true})
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	u, err := f.auth.GetUser(context.Background(), s.AccessToken)
	if err != nil || !u.IsDemo {
		t.Fatalf("GetUser = %+v, %v", u, err)
	}
}

func TestSignOutRevokesEverySession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.signUp(t, "b@example.com")
	second, err := f.auth.SignIn(ctx, "b@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}

	if err := f.auth.SignOut(ctx, first.AccessToken); err != nil {
		t.Fatalf("SignOut: %v", err)
	}
	for _, token := range []string{first.AccessToken, second.AccessToken} {
		if _, err := f.auth.GetUser(ctx, token); !errors.Is(err, core.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated after sign-out, got %v", err)
		}
	}

	last := f.events[len(f.events)-1]
	if last.Type != events.SignedOut || last.UserID != first.User.ID {
		t.Fatalf("expected SIGNED_OUT event for the user, got %+v", last)
	}

	if err := f.auth.SignOut(ctx, "garbage"); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated for a garbage token, got %v", err)
	}
}

func TestExpiredSessionIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	now := time.Now()
	f.auth.now = func() time.Time { return now }
	s := f.signUp(t, "c@example.com")

	f.auth.now = func() time.Time { return now.Add(2 * time.Hour) }
	if _, err := f.auth.GetUser(ctx, s.AccessToken); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestDeletedUserIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.signUp(t, "d@example.com")
	if err := f.store.DeleteUser(ctx, s.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.auth.GetUser(ctx, s.AccessToken); !errors.Is(err, core.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestTransactionsRowLevelAccess(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	owner := f.signUp(t, "owner@example.com")
	intruder := f.signUp(t, "intruder@example.com")

	tx, err := f.txs.Insert(ctx, owner.AccessToken, groceries(owner.User.ID))
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	t.Run("select of another owner is empty", func(t *testing.T) {
		rows, err := f.txs.Select(ctx, intruder.AccessToken, remote.OwnedNewestFirst(owner.User.ID))
		if err != nil || len(rows) != 0 {
			t.Fatalf("Select = %+v, %v", rows, err)
		}
	})

	t.Run("insert for another owner is forbidden", func(t *testing.T) {
		if _, err := f.txs.Insert(ctx, intruder.AccessToken, groceries(owner.User.ID)); !errors.Is(err, core.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
	})

	t.Run("foreign update and delete find nothing", func(t *testing.T) {
		if _, err := f.txs.Update(ctx, intruder.AccessToken, tx.ID, groceries(intruder.User.ID)); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := f.txs.Delete(ctx, intruder.AccessToken, tx.ID); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("owner sees its row", func(t *testing.T) {
		rows, err := f.txs.Select(ctx, owner.AccessToken, remote.OwnedNewestFirst(owner.User.ID))
		if err != nil || len(rows) != 1 || rows[0].ID != tx.ID {
			t.Fatalf("Select = %+v, %v", rows, err)
		}
	})

	t.Run("signed-out token is rejected", func(t *testing.T) {
		if _, err := f.txs.Select(ctx, "", remote.OwnedNewestFirst(owner.User.ID)); !errors.Is(err, core.ErrUnauthenticated) {
			t.Fatalf("expected ErrUnauthenticated, got %v", err)
		}
	})
}

func TestTransactionValidationAndOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.signUp(t, "e@example.com")

	bad := groceries(s.User.ID)
	bad.Description = "  "
	if _, err := f.txs.Insert(ctx, s.AccessToken, bad); !errors.Is(err, core.ErrEmptyDescription) {
		t.Fatalf("expected ErrEmptyDescription, got %v", err)
	}

	older := groceries(s.User.ID)
	older.Date = core.NewDate(2024, 1, 1)
	first, _ := f.txs.Insert(ctx, s.AccessToken, older)
	second, _ := f.txs.Insert(ctx, s.AccessToken, groceries(s.User.ID))

	desc, _ := f.txs.Select(ctx, s.AccessToken, remote.OwnedNewestFirst(s.User.ID))
	if len(desc) != 2 || desc[0].ID != second.ID || desc[1].ID != first.ID {
		t.Fatalf("unexpected descending order %+v", desc)
	}
	asc, _ := f.txs.Select(ctx, s.AccessToken, remote.Query{OwnerID: s.User.ID, OrderBy: "date", Ascending: true})
	if asc[0].ID != first.ID {
		t.Fatalf("unexpected ascending order %+v", asc)
	}
	if _, err := f.txs.Select(ctx, s.AccessToken, remote.Query{OrderBy: "amount"}); err == nil {
		t.Fatal("unsupported order column should fail")
	}
}
