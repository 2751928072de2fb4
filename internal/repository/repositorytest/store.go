// Package repositorytest provides store helpers for tests.
package repositorytest

import (
	"testing"

	"github.com/xiaot623/carechat/internal/repository"
)

// NewTestSQLiteStore returns an in-memory store closed at the end of the test.
func NewTestSQLiteStore(t testing.TB) *repository.SQLiteStore {
	t.Helper()
	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
