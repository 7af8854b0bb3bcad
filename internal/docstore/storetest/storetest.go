// Package storetest opens throwaway SQLite-backed stores for tests.
package storetest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"trackly/internal/db"
	"trackly/internal/docstore"
	"trackly/internal/migrate"
)

// Clock is the fixed instant test stores stamp documents with.
var Clock = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

// Open returns a migrated database in a temp workspace.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if _, err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// New returns a store over a fresh database using Clock.
func New(t testing.TB) *docstore.SQLStore {
	t.Helper()
	return docstore.NewSQLStore(Open(t), func() time.Time { return Clock }, nil)
}
