package audit

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()

	f, err := os.CreateTemp("", "audit-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE audit_logs (
			id TEXT PRIMARY KEY,
			action TEXT NOT NULL,
			entity_type TEXT NOT NULL,
			entity_id TEXT,
			user_id TEXT,
			source TEXT NOT NULL,
			details TEXT,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

func TestRepository_CreateAndList(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entry := &AuditLog{
		Action:     "oauth.token.issued",
		EntityType: "oauth",
		EntityID:   "client-abc",
		UserID:     "user-1",
		Source:     "api",
		Details:    map[string]any{"grant": "authorization_code"},
	}
	if err := repo.Create(ctx, entry); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("Create() should generate an ID")
	}

	result, err := repo.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 || len(result.Logs) != 1 {
		t.Fatalf("List() total = %d, logs = %d, want 1 each", result.Total, len(result.Logs))
	}

	got := result.Logs[0]
	if got.Action != "oauth.token.issued" {
		t.Errorf("Action = %q, want oauth.token.issued", got.Action)
	}
	if got.Details["grant"] != "authorization_code" {
		t.Errorf("Details = %v, want grant preserved", got.Details)
	}
}

func TestRepository_ListFilters(t *testing.T) {
	db := testDB(t)
	repo := NewSQLiteRepository(db)
	ctx := context.Background()

	entries := []*AuditLog{
		{Action: "oauth.token.issued", EntityType: "oauth", EntityID: "client-a", Source: "api"},
		{Action: "oauth.token.revoked", EntityType: "oauth", EntityID: "client-a", Source: "api"},
		{Action: "room.created", EntityType: "room", EntityID: "room-1", Source: "api"},
	}
	for _, e := range entries {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	byAction, err := repo.List(ctx, Filter{Action: "oauth.token.issued"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if byAction.Total != 1 {
		t.Errorf("action filter total = %d, want 1", byAction.Total)
	}

	byType, err := repo.List(ctx, Filter{EntityType: "oauth"})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if byType.Total != 2 {
		t.Errorf("entity type filter total = %d, want 2", byType.Total)
	}

	paged, err := repo.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(paged.Logs) != 2 || paged.Total != 3 {
		t.Errorf("paged logs = %d (total %d), want 2 of 3", len(paged.Logs), paged.Total)
	}
}

func TestRecorder_SwallowsFailures(t *testing.T) {
	db := testDB(t)
	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	rec := NewRecorder(NewSQLiteRepository(db), logger)
	ctx := context.Background()

	rec.RecordEvent(ctx, "oauth.token.issued", "client-x", "user-y", "grant=direct")

	result, err := NewSQLiteRepository(db).List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if result.Total != 1 {
		t.Fatalf("recorded events = %d, want 1", result.Total)
	}
	if result.Logs[0].Details["info"] != "grant=direct" {
		t.Errorf("Details = %v, want info preserved", result.Logs[0].Details)
	}

	// A closed database must not panic or surface an error to the caller
	db.Close()
	rec.RecordEvent(ctx, "oauth.token.issued", "client-x", "user-y", "")
}
