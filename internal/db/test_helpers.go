package db

import (
	"path/filepath"
	"testing"
)

func floatPtr(f float64) *float64 {
	return &f
}

// setupTestDB opens a migrated database in a temp dir, closed at test end.
func setupTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "planner_test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
