package db

import (
	"context"
	"testing"
)

// NewTestStoreDB creates a migrated in-memory store database for testing.
// The database is closed when the test completes.
//
// Usage:
//
//	func TestSomething(t *testing.T) {
//	    t.Parallel()
//	    sdb := db.NewTestStoreDB(t)
//	    // use sdb...
//	}
func NewTestStoreDB(t testing.TB) *StoreDB {
	t.Helper()

	sdb, err := OpenStoreInMemory(context.Background())
	if err != nil {
		t.Fatalf("create test store db: %v", err)
	}

	t.Cleanup(func() {
		_ = sdb.Close()
	})

	return sdb
}
