// Package testutil provides shared fixtures for billfinder tests: a migrated
// throwaway run store and builders for emails and transaction series.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/billfinder/internal/model"
	"github.com/Veraticus/billfinder/internal/storage"
)

// SetupTestDB creates a migrated in-memory run store that is closed when the
// test ends.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	})

	return store
}

// SetupTestDBWithRuns creates a test database seeded with the given runs.
func SetupTestDBWithRuns(t *testing.T, runs ...*model.DiscoveryResult) *storage.SQLiteStorage {
	t.Helper()

	store := SetupTestDB(t)
	for _, run := range runs {
		if err := store.SaveRun(context.Background(), run); err != nil {
			t.Fatalf("failed to seed run %s: %v", run.RunID, err)
		}
	}
	return store
}
