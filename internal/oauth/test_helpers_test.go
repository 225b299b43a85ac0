package oauth

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
)

// testDB creates a temporary SQLite database with the OAuth schema applied.
// The database file is cleaned up when the test completes.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	// Use a temp file so WAL mode works (in-memory doesn't support it)
	f, err := os.CreateTemp("", "oauth-test-*.db")
	if err != nil {
		t.Fatalf("creating temp db: %v", err)
	}
	dbPath := f.Name()
	f.Close()
	t.Cleanup(func() { os.Remove(dbPath) })

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	schemaSQL := `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			username TEXT NOT NULL UNIQUE,
			display_name TEXT NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE oauth_clients (
			client_id TEXT PRIMARY KEY,
			secret_hash TEXT,
			name TEXT NOT NULL,
			redirect_uris TEXT NOT NULL,
			grant_types TEXT NOT NULL,
			scopes TEXT NOT NULL,
			is_public INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
		) STRICT;

		CREATE TABLE authorization_codes (
			code TEXT PRIMARY KEY,
			client_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			redirect_uri TEXT NOT NULL,
			scopes TEXT NOT NULL,
			code_challenge TEXT,
			code_challenge_method TEXT,
			redeemed INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (client_id) REFERENCES oauth_clients(client_id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE access_tokens (
			id TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			user_id TEXT,
			scopes TEXT NOT NULL,
			family_id TEXT,
			refresh_token_id TEXT,
			code TEXT,
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (client_id) REFERENCES oauth_clients(client_id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;

		CREATE TABLE refresh_tokens (
			id TEXT PRIMARY KEY,
			token_hash TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			user_id TEXT,
			scopes TEXT NOT NULL,
			family_id TEXT NOT NULL,
			rotated_from TEXT,
			code TEXT,
			expires_at TEXT NOT NULL,
			revoked INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
			FOREIGN KEY (client_id) REFERENCES oauth_clients(client_id) ON DELETE CASCADE,
			FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
		) STRICT;
	`
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	return db
}

// seedTestUser inserts a user row directly; token tables reference it.
func seedTestUser(t *testing.T, db *sql.DB, username string) string {
	t.Helper()

	id := "user-" + uuid.NewString()[:16]
	_, err := db.Exec(
		`INSERT INTO users (id, email, username, display_name, password_hash)
		 VALUES (?, ?, ?, ?, ?)`,
		id, username+"@example.com", username, username, "x")
	if err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return id
}

// seedTestClient registers a client through the repository.
func seedTestClient(t *testing.T, db *sql.DB, client *Client) *Client {
	t.Helper()

	if client.RedirectURIs == nil {
		client.RedirectURIs = []string{"https://app.example.com/callback"}
	}
	if client.GrantTypes == nil {
		client.GrantTypes = []string{"authorization_code", "refresh_token"}
	}
	if client.Scopes == nil {
		client.Scopes = NewScopeSet(ScopeRoomsRead, ScopeRoomsWrite, ScopeZonesRead, ScopeZonesWrite)
	}
	if client.Name == "" {
		client.Name = "Test Client"
	}

	if err := NewClientRepository(db).Create(context.Background(), client); err != nil {
		t.Fatalf("seeding client: %v", err)
	}
	return client
}

type fakeUserAuth struct {
	username string
	password string
	userID   string
}

func (f *fakeUserAuth) AuthenticateUser(_ context.Context, username, password string) (string, error) {
	if username == f.username && password == f.password {
		return f.userID, nil
	}
	return "", ErrInvalidCredentials
}

type nopAudit struct{}

func (nopAudit) RecordEvent(context.Context, string, string, string, string) {}

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// testService wires a Service over the temp database. Client secrets are
// compared verbatim; hashing is covered by the auth package's own tests.
func testService(t *testing.T, db *sql.DB, users UserAuthenticator) *Service {
	t.Helper()

	if users == nil {
		users = &fakeUserAuth{}
	}
	verify := func(secret, hash string) (bool, error) { return secret == hash, nil }
	return NewService(
		NewClientRepository(db),
		NewCodeRepository(db),
		NewTokenRepository(db),
		users, verify, nopAudit{}, testLogger(),
		ServiceConfig{},
	)
}

// futureTime is a convenient expiry well past any test's runtime.
func futureTime() time.Time {
	return time.Now().Add(time.Hour)
}
