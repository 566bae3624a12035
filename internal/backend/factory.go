package backend

import (
	"context"
	"fmt"

	"github.com/Bota93/spendesk/internal/adapters"
	"github.com/Bota93/spendesk/internal/auth"
	"github.com/Bota93/spendesk/internal/events"
	"github.com/Bota93/spendesk/internal/log"
	"github.com/Bota93/spendesk/internal/remote/supabase"
	"github.com/Bota93/spendesk/internal/services"
	"github.com/Bota93/spendesk/internal/storage"
	"github.com/Bota93/spendesk/internal/storage/memory"
	"github.com/Bota93/spendesk/internal/storage/postgres"
	"github.com/Bota93/spendesk/internal/storage/sqlite"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger    *log.Logger
	publisher events.Publisher
}

// NewFactory returns a factory whose backends announce auth events to
// publisher.
func NewFactory(logger *log.Logger, publisher events.Publisher) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	if publisher == nil {
		publisher = events.Discard{}
	}
	return &DefaultFactory{
		logger:    logger.WithComponent(log.ComponentBackend),
		publisher: publisher,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case MemoryBackend:
		f.logger.Info("Initialized memory backend")
		return f.local(memory.New(), config), nil

	case SQLiteBackend:
		repo, err := sqlite.NewRepository(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
		}
		f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
		return f.local(repo, config), nil

	case PostgresBackend:
		repo, err := postgres.NewRepository(ctx, config.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres repository: %w", err)
		}
		f.logger.Info("Initialized Postgres backend")
		return f.local(repo, config), nil

	case SupabaseBackend:
		client, err := supabase.NewClient(config.SupabaseURL, config.SupabaseAnonKey,
			supabase.WithPublisher(f.publisher),
			supabase.WithLogger(f.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Supabase client: %w", err)
		}
		f.logger.Info("Initialized Supabase backend", "url", config.SupabaseURL)
		return &BackendResult{Backend: client}, nil

	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// local wires the self-hosted auth and transaction services over repo.
func (f *DefaultFactory) local(repo storage.Repository, config Config) *BackendResult {
	issuer := auth.NewIssuer(config.JWTSecret, nil)
	authService := services.NewAuthService(repo, issuer, f.publisher, config.SessionTTL, f.logger)
	txService := services.NewTransactionService(authService, repo, f.logger)

	return &BackendResult{
		Backend:    adapters.NewLocalBackend(authService, txService, repo),
		Repository: repo,
		Cleanup:    repo.Close,
	}
}
