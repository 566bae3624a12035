package services

import (
	"context"
	"fmt"
	"slices"

	"github.com/Bota93/spendesk/internal/core"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote"
	"github.com/Bota93/spendesk/internal/storage"
)

// Authenticator resolves an access token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (core.User, error)
}

// TransactionService exposes the transactions relation with row-level
// authorisation: the caller only ever sees and changes its own rows.
type TransactionService struct {
	auth   Authenticator
	store  storage.TransactionStore
	logger *log.Logger
	audit  *log.StructuredLogger
}

func NewTransactionService(a Authenticator, store storage.TransactionStore, logger *log.Logger) *TransactionService {
	if logger == nil {
		logger = log.Discard()
	}
	return &TransactionService{
		auth:   a,
		store:  store,
		logger: logger.WithComponent(log.ComponentStorage),
		audit:  log.NewStructuredLogger(logger),
	}
}

// Select lists the caller's rows matching q. A filter on another owner
// matches nothing.
func (s *TransactionService) Select(ctx context.Context, accessToken string, q remote.Query) ([]core.Transaction, error) {
	if q.OrderBy != "" && q.OrderBy != "date" {
		return nil, fmt.Errorf("unsupported order column %q", q.OrderBy)
	}
	user, err := s.auth.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if q.OwnerID != "" && q.OwnerID != user.ID {
		return []core.Transaction{}, nil
	}

	rows, err := s.store.ListTransactions(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	if q.Ascending {
		slices.Reverse(rows)
	}
	return rows, nil
}

func (s *TransactionService) Insert(ctx context.Context, accessToken string, in core.TransactionInput) (core.Transaction, error) {
	user, err := s.authorize(ctx, accessToken, in)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.store.CreateTransaction(ctx, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	s.audit.LogMutation(ctx, log.OpCreate, user.ID, mutationFields(tx))
	return tx, nil
}

func (s *TransactionService) Update(ctx context.Context, accessToken string, id int64, in core.TransactionInput) (core.Transaction, error) {
	user, err := s.authorize(ctx, accessToken, in)
	if err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.store.UpdateTransaction(ctx, user.ID, id, in)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	s.audit.LogMutation(ctx, log.OpUpdate, user.ID, mutationFields(tx))
	return tx, nil
}

func (s *TransactionService) Delete(ctx context.Context, accessToken string, id int64) error {
	user, err := s.auth.Authenticate(ctx, accessToken)
	if err != nil {
		return err
	}
	if err := s.store.DeleteTransaction(ctx, user.ID, id); err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	s.audit.LogMutation(ctx, log.OpDelete, user.ID, log.NewFields().WithTransaction(id, "", "", "", ""))
	return nil
}

// authorize resolves the caller and checks that the payload is valid and
// owned by it.
func (s *TransactionService) authorize(ctx context.Context, accessToken string, in core.TransactionInput) (core.User, error) {
	user, err := s.auth.Authenticate(ctx, accessToken)
	if err != nil {
		return core.User{}, err
	}
	if in.UserID != user.ID {
		s.logger.WarnContext(ctx, "Rejected write for another owner",
			log.FieldUserID, user.ID,
			log.FieldErrorType, log.ErrorTypeAuth)
		return core.User{}, core.ErrForbidden
	}
	if err := in.Validate(); err != nil {
		return core.User{}, err
	}
	return user, nil
}

func mutationFields(tx core.Transaction) log.LogFields {
	return log.NewFields().WithTransaction(tx.ID, string(tx.Kind), string(tx.Category), tx.Date.String(), tx.Amount.StringFixed(2))
}
