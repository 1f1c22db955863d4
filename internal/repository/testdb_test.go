package repository

import (
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/lumalink/lumalink/internal/db"
)

// newTestDB opens an in-memory SQLite database with the real migrations
// applied. A single connection keeps the in-memory database alive and
// serializes concurrent test writers the way the pool would.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	database, err := sqlx.Connect("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	database.SetMaxOpenConns(1)

	err = db.RunMigrations(database.DB, "sqlite")
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		database.Close()
	})
	return database
}
