package testutil

import (
	"path/filepath"
	"testing"

	"github.com/kmpdu/evote/internal/history"
	"github.com/kmpdu/evote/internal/logger"
	"github.com/kmpdu/evote/internal/repository"
)

// NewTestRepository creates a new in-memory repository for testing.
// Each call creates a fresh database with all migrations applied.
func NewTestRepository(t *testing.T) *repository.Repository {
	t.Helper()

	repo, err := repository.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test repository: %v", err)
	}

	t.Cleanup(func() {
		repo.Close()
	})

	return repo
}

// NewTestHistory opens a bbolt history store in a per-test temp directory
func NewTestHistory(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"), logger.Discard())
	if err != nil {
		t.Fatalf("failed to open test history: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
