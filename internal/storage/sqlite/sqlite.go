// Package sqlite is the storage.Repository backed by a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/storage"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

func NewRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := storage.RunSQLiteMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) CreateUser(ctx context.Context, u core.User, passwordHash string) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	created := formatTime(u.CreatedAt)
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, is_demo, created_at, last_seen_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, passwordHash, u.IsDemo, created, created)
	if isUniqueViolation(err) {
		return core.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, string, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, is_demo, created_at, password_hash FROM users WHERE email = ?`, email)
	var hash string
	u, err := scanUser(row, &hash)
	if err != nil {
		return core.User{}, "", err
	}
	return u, hash, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, email, is_demo, created_at, password_hash FROM users WHERE id = ?`, id)
	var hash string
	return scanUser(row, &hash)
}

func (r *Repository) TouchUser(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_seen_at = max(last_seen_at, ?) WHERE id = ?`, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return expectRow(res)
}

func (r *Repository) ListIdleDemoUsers(ctx context.Context, cutoff time.Time) ([]core.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, email, is_demo, created_at, password_hash FROM users
		 WHERE is_demo = 1 AND last_seen_at < ? ORDER BY id`, formatTime(cutoff))
	if err != nil {
		return nil, fmt.Errorf("list idle demo users: %w", err)
	}
	defer rows.Close()

	var out []core.User
	for rows.Next() {
		var hash string
		u, err := scanUser(rows, &hash)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// DeleteUser removes dependent rows explicitly so the cascade does not rely
// on the foreign_keys pragma.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete user: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM transactions WHERE user_id = ?`,
		`DELETE FROM sessions WHERE user_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return fmt.Errorf("delete user data: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := expectRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *Repository) CreateSession(ctx context.Context, s storage.SessionRecord) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, revoked) VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.UserID, formatTime(s.CreatedAt), formatTime(s.ExpiresAt), s.Revoked)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	var (
		s                  storage.SessionRecord
		created, expiresAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, created_at, expires_at, revoked FROM sessions WHERE id = ?`, id).
		Scan(&s.ID, &s.UserID, &created, &expiresAt, &s.Revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.SessionRecord{}, core.ErrNotFound
	}
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return storage.SessionRecord{}, err
	}
	if s.ExpiresAt, err = parseTime(expiresAt); err != nil {
		return storage.SessionRecord{}, err
	}
	return s, nil
}

func (r *Repository) RevokeUserSessions(ctx context.Context, userID string) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE sessions SET revoked = 1 WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

const selectTransaction = `SELECT id, user_id, description, amount_cents, type, date, category, created_at FROM transactions`

func (r *Repository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		selectTransaction+` WHERE user_id = ? ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	out := []core.Transaction{}
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func (r *Repository) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions (user_id, description, amount_cents, type, date, category, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		in.UserID, in.Description, cents(in.Amount), string(in.Kind), in.Date.String(), string(in.Category), formatTime(r.now()))
	if isForeignKeyViolation(err) {
		return core.Transaction{}, core.ErrForbidden
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction id: %w", err)
	}
	return r.getTransaction(ctx, in.UserID, id)
}

func (r *Repository) UpdateTransaction(ctx context.Context, userID string, id int64, in core.TransactionInput) (core.Transaction, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE transactions SET description = ?, amount_cents = ?, type = ?, date = ?, category = ?
		 WHERE id = ? AND user_id = ?`,
		in.Description, cents(in.Amount), string(in.Kind), in.Date.String(), string(in.Category), id, userID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	if err := expectRow(res); err != nil {
		return core.Transaction{}, err
	}
	return r.getTransaction(ctx, userID, id)
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return expectRow(res)
}

func (r *Repository) getTransaction(ctx context.Context, userID string, id int64) (core.Transaction, error) {
	row := r.db.QueryRowContext(ctx, selectTransaction+` WHERE id = ? AND user_id = ?`, id, userID)
	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	return tx, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner, hash *string) (core.User, error) {
	var (
		u       core.User
		created string
	)
	err := row.Scan(&u.ID, &u.Email, &u.IsDemo, &created, hash)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("scan user: %w", err)
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return core.User{}, err
	}
	return u, nil
}

func scanTransaction(row scanner) (core.Transaction, error) {
	var (
		tx                            core.Transaction
		amountCents                   int64
		kind, date, category, created string
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.Description, &amountCents, &kind, &date, &category, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Transaction{}, err
		}
		return core.Transaction{}, fmt.Errorf("scan transaction: %w", err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	tx.Amount = decimal.New(amountCents, -2)
	tx.Kind = core.Kind(kind)
	tx.Date = d
	tx.Category = core.Category(category)
	if tx.CreatedAt, err = parseTime(created); err != nil {
		return core.Transaction{}, err
	}
	return tx, nil
}

func cents(d decimal.Decimal) int64 {
	return d.Shift(2).IntPart()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) &&
		(se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY)
}

func isForeignKeyViolation(err error) bool {
	var se *msqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
