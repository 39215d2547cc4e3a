package store

import (
	"context"
	"testing"
)

// NewTestStore creates a store over a private in-memory database.
// The store is closed when the test completes.
func NewTestStore(t testing.TB, opts ...Option) *DBStore {
	t.Helper()

	s, err := OpenInMemory(context.Background(), opts...)
	if err != nil {
		t.Fatalf("create test store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}
