package auth

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AlexandrLebegue/thesis-llm/internal/storage"
)

func newTestService(t *testing.T, ttl time.Duration) (*Service, *sql.DB) {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatal(err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewService(db, ttl), db
}

func TestOpenAndValidate(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	ctx := context.Background()

	visitorID, token, err := svc.OpenVisitor(ctx)
	if err != nil {
		t.Fatalf("OpenVisitor: %v", err)
	}
	if visitorID <= 0 || token == "" {
		t.Fatalf("visitor = %d, token = %q", visitorID, token)
	}

	got, err := svc.ValidateToken(ctx, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if got != visitorID {
		t.Errorf("visitor = %d, want %d", got, visitorID)
	}
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	svc, _ := newTestService(t, time.Hour)
	if _, err := svc.ValidateToken(context.Background(), "deadbeef"); err == nil {
		t.Fatal("expected error for unknown token")
	}
	if _, err := svc.ValidateToken(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty token")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	svc, db := newTestService(t, time.Hour)
	ctx := context.Background()

	_, token, err := svc.OpenVisitor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE visitor_tokens SET expires_at = ?`,
		time.Now().UTC().Add(-time.Minute)); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Fatal("expected error for expired token")
	}
	// expired token row is removed on detection
	var count int
	db.QueryRow(`SELECT COUNT(*) FROM visitor_tokens`).Scan(&count)
	if count != 0 {
		t.Errorf("token rows = %d, want 0", count)
	}
}

func TestCloseVisitorCascades(t *testing.T) {
	svc, db := newTestService(t, time.Hour)
	ctx := context.Background()

	visitorID, token, err := svc.OpenVisitor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now().UTC()
	if _, err := db.Exec(
		`INSERT INTO messages (visitor_id, role, content, created_at) VALUES (?, 'user', 'hi', ?)`,
		visitorID, now); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(
		`INSERT INTO uploads (visitor_id, file_name, stored_path, mime_type, size, status, created_at, expires_at)
		 VALUES (?, 'a.pdf', '/tmp/a.pdf', 'application/pdf', 1, 'active', ?, ?)`,
		visitorID, now, now.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}

	if err := svc.CloseVisitor(ctx, visitorID); err != nil {
		t.Fatalf("CloseVisitor: %v", err)
	}
	if _, err := svc.ValidateToken(ctx, token); err == nil {
		t.Error("token still valid after close")
	}
	for _, table := range []string{"messages", "uploads", "visitor_tokens"} {
		var count int
		db.QueryRow(`SELECT COUNT(*) FROM ` + table).Scan(&count)
		if count != 0 {
			t.Errorf("%s rows = %d, want 0 after cascade", table, count)
		}
	}
}

func TestExpiredVisitors(t *testing.T) {
	svc, db := newTestService(t, time.Hour)
	ctx := context.Background()

	liveID, _, err := svc.OpenVisitor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	staleID, _, err := svc.OpenVisitor(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`UPDATE visitors SET expires_at = ? WHERE id = ?`,
		time.Now().UTC().Add(-time.Minute), staleID); err != nil {
		t.Fatal(err)
	}

	ids, err := svc.ExpiredVisitors(ctx)
	if err != nil {
		t.Fatalf("ExpiredVisitors: %v", err)
	}
	if len(ids) != 1 || ids[0] != staleID {
		t.Errorf("expired = %v, want [%d]", ids, staleID)
	}
	_ = liveID
}
