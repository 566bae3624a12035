// Package memory is an in-process storage.Repository. Data lives only as
// long as the process.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/storage"
)

type userRow struct {
	user     core.User
	hash     string
	lastSeen time.Time
}

type Store struct {
	mu           sync.RWMutex
	users        map[string]*userRow
	byEmail      map[string]string
	sessions     map[string]storage.SessionRecord
	transactions map[int64]core.Transaction
	nextID       int64
	now          func() time.Time
}

var _ storage.Repository = (*Store)(nil)

func New() *Store {
	return &Store{
		users:        make(map[string]*userRow),
		byEmail:      make(map[string]string),
		sessions:     make(map[string]storage.SessionRecord),
		transactions: make(map[int64]core.Transaction),
		nextID:       1,
		now:          time.Now,
	}
}

func (s *Store) CreateUser(_ context.Context, u core.User, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[u.Email]; ok {
		return core.ErrEmailTaken
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	s.users[u.ID] = &userRow{user: u, hash: passwordHash, lastSeen: u.CreatedAt}
	s.byEmail[u.Email] = u.ID
	return nil
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return core.User{}, "", core.ErrNotFound
	}
	row := s.users[id]
	return row.user, row.hash, nil
}

func (s *Store) GetUserByID(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.users[id]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return row.user, nil
}

func (s *Store) TouchUser(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	if at.After(row.lastSeen) {
		row.lastSeen = at
	}
	return nil
}

func (s *Store) ListIdleDemoUsers(_ context.Context, cutoff time.Time) ([]core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.User
	for _, row := range s.users {
		if row.user.IsDemo && row.lastSeen.Before(cutoff) {
			out = append(out, row.user)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.users[id]
	if !ok {
		return core.ErrNotFound
	}
	delete(s.byEmail, row.user.Email)
	delete(s.users, id)
	for sid, sess := range s.sessions {
		if sess.UserID == id {
			delete(s.sessions, sid)
		}
	}
	for tid, tx := range s.transactions {
		if tx.UserID == id {
			delete(s.transactions, tid)
		}
	}
	return nil
}

func (s *Store) CreateSession(_ context.Context, rec storage.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[rec.UserID]; !ok {
		return core.ErrNotFound
	}
	s.sessions[rec.ID] = rec
	return nil
}

func (s *Store) GetSession(_ context.Context, id string) (storage.SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[id]
	if !ok {
		return storage.SessionRecord{}, core.ErrNotFound
	}
	return rec, nil
}

func (s *Store) RevokeUserSessions(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.sessions {
		if rec.UserID == userID {
			rec.Revoked = true
			s.sessions[id] = rec
		}
	}
	return nil
}

func (s *Store) ListTransactions(_ context.Context, userID string) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []core.Transaction{}
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
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

func (s *Store) CreateTransaction(_ context.Context, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[in.UserID]; !ok {
		return core.Transaction{}, core.ErrForbidden
	}
	tx := fromInput(s.nextID, in, s.now())
	s.nextID++
	s.transactions[tx.ID] = tx
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, userID string, id int64, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[id]
	if !ok || existing.UserID != userID {
		return core.Transaction{}, core.ErrNotFound
	}
	tx := fromInput(id, in, existing.CreatedAt)
	tx.UserID = userID
	s.transactions[id] = tx
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, userID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.transactions[id]
	if !ok || existing.UserID != userID {
		return core.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) Close() error {
	return nil
}

func fromInput(id int64, in core.TransactionInput, createdAt time.Time) core.Transaction {
	return core.Transaction{
		ID:          id,
		UserID:      in.UserID,
		Description: in.Description,
		Amount:      in.Amount,
		Kind:        in.Kind,
		Date:        in.Date,
		Category:    in.Category,
		CreatedAt:   createdAt,
	}
}
