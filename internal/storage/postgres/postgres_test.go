package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/Bota93/spendesk/internal/storage"
	"github.com/Bota93/spendesk/internal/storage/storagetest"
)

func TestPostgresRepositoryContract(t *testing.T) {
	url := os.Getenv("POSTGRES_TEST_URL")
	if url == "" {
		t.Skip("POSTGRES_TEST_URL not set, skipping postgres integration tests")
	}

	storagetest.Run(t, func(t *testing.T) storage.Repository {
		repo, err := NewRepository(context.Background(), url)
		if err != nil {
			t.Fatalf("NewRepository: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}
