package migrate

import (
	"context"
	"testing"

	"trackly/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	before, err := Version(ctx, conn)
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if before != 0 {
		t.Fatalf("expected fresh db at 0, got %d", before)
	}
	v1, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	v2, err := Migrate(ctx, conn)
	if err != nil {
		t.Fatalf("migrate again: %v", err)
	}
	if v1 != v2 || v1 != 2 {
		t.Fatalf("expected version 2 twice, got %d and %d", v1, v2)
	}
	for _, table := range []string{"documents", "events", "revoked_tokens"} {
		var n int
		if err := conn.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("expected table %s", table)
		}
	}
}
