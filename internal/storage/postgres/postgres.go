// Package postgres is the storage.Repository backed by PostgreSQL through a
// pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/storage"
)

type Repository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository migrates the database at url and opens a pool to it.
func NewRepository(ctx context.Context, url string) (*Repository, error) {
	if err := storage.RunPostgresMigrations(url); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Repository{pool: pool, now: time.Now}, nil
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) CreateUser(ctx context.Context, u core.User, passwordHash string) error {
	if u.CreatedAt.IsZero() {
		u.CreatedAt = r.now()
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, is_demo, created_at, last_seen_at) VALUES ($1, $2, $3, $4, $5, $5)`,
		u.ID, u.Email, passwordHash, u.IsDemo, u.CreatedAt)
	if hasCode(err, pgerrcode.UniqueViolation) {
		return core.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (r *Repository) GetUserByEmail(ctx context.Context, email string) (core.User, string, error) {
	var (
		u    core.User
		hash string
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, is_demo, created_at, password_hash FROM users WHERE email = $1`, email).
		Scan(&u.ID, &u.Email, &u.IsDemo, &u.CreatedAt, &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, "", core.ErrNotFound
	}
	if err != nil {
		return core.User{}, "", fmt.Errorf("get user by email: %w", err)
	}
	return u, hash, nil
}

func (r *Repository) GetUserByID(ctx context.Context, id string) (core.User, error) {
	var u core.User
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, is_demo, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Email, &u.IsDemo, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.User{}, core.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (r *Repository) TouchUser(ctx context.Context, id string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET last_seen_at = GREATEST(last_seen_at, $1) WHERE id = $2`, at, id)
	if err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) ListIdleDemoUsers(ctx context.Context, cutoff time.Time) ([]core.User, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, is_demo, created_at FROM users
		 WHERE is_demo AND last_seen_at < $1 ORDER BY id`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list idle demo users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (core.User, error) {
		var u core.User
		err := row.Scan(&u.ID, &u.Email, &u.IsDemo, &u.CreatedAt)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan idle demo users: %w", err)
	}
	return users, nil
}

// DeleteUser relies on ON DELETE CASCADE for sessions and transactions.
func (r *Repository) DeleteUser(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, s storage.SessionRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, user_id, created_at, expires_at, revoked) VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.CreatedAt, s.ExpiresAt, s.Revoked)
	if hasCode(err, pgerrcode.ForeignKeyViolation) {
		return core.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (r *Repository) GetSession(ctx context.Context, id string) (storage.SessionRecord, error) {
	var s storage.SessionRecord
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, created_at, expires_at, revoked FROM sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.UserID, &s.CreatedAt, &s.ExpiresAt, &s.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.SessionRecord{}, core.ErrNotFound
	}
	if err != nil {
		return storage.SessionRecord{}, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

func (r *Repository) RevokeUserSessions(ctx context.Context, userID string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE sessions SET revoked = TRUE WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}
	return nil
}

// Amounts and dates travel as text so NUMERIC and DATE keep their exact value.
const transactionColumns = `id, user_id, description, amount::text, type, to_char(date, 'YYYY-MM-DD'), category, created_at`

func (r *Repository) ListTransactions(ctx context.Context, userID string) ([]core.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE user_id = $1 ORDER BY date DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := pgx.CollectRows(rows, scanTransaction)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []core.Transaction{}
	}
	return txs, nil
}

func (r *Repository) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`INSERT INTO transactions (user_id, description, amount, type, date, category, created_at)
		 VALUES ($1, $2, $3::numeric, $4, $5::date, $6, $7)
		 RETURNING `+transactionColumns,
		in.UserID, in.Description, in.Amount.StringFixed(2), string(in.Kind), in.Date.String(), string(in.Category), r.now())
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	tx, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if hasCode(err, pgerrcode.ForeignKeyViolation) {
		return core.Transaction{}, core.ErrForbidden
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	return tx, nil
}

func (r *Repository) UpdateTransaction(ctx context.Context, userID string, id int64, in core.TransactionInput) (core.Transaction, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE transactions
		 SET description = $1, amount = $2::numeric, type = $3, date = $4::date, category = $5
		 WHERE id = $6 AND user_id = $7
		 RETURNING `+transactionColumns,
		in.Description, in.Amount.StringFixed(2), string(in.Kind), in.Date.String(), string(in.Category), id, userID)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	tx, err := pgx.CollectExactlyOneRow(rows, scanTransaction)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Transaction{}, core.ErrNotFound
	}
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction: %w", err)
	}
	return tx, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, userID string, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM transactions WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func scanTransaction(row pgx.CollectableRow) (core.Transaction, error) {
	var (
		tx                           core.Transaction
		amount, kind, date, category string
	)
	if err := row.Scan(&tx.ID, &tx.UserID, &tx.Description, &amount, &kind, &date, &category, &tx.CreatedAt); err != nil {
		return core.Transaction{}, err
	}
	a, err := decimal.NewFromString(amount)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored amount %q: %w", amount, err)
	}
	d, err := core.ParseDate(date)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("parse stored date %q: %w", date, err)
	}
	tx.Amount = a
	tx.Kind = core.Kind(kind)
	tx.Date = d
	tx.Category = core.Category(category)
	return tx, nil
}

func hasCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
