package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jmbarlow/roomkit/internal/audit"
	"github.com/jmbarlow/roomkit/internal/auth"
	"github.com/jmbarlow/roomkit/internal/infrastructure/config"
	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
	"github.com/jmbarlow/roomkit/internal/location"
	"github.com/jmbarlow/roomkit/internal/oauth"
)

// testSchema is the full application schema, inlined so API tests run
// against the same shape the migrations produce.
const testSchema = `
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
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
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
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
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
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
	) STRICT;

	CREATE TABLE rooms (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		name TEXT NOT NULL,
		icon TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		deleted_at TEXT
	) STRICT;

	CREATE TABLE zones (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		name TEXT NOT NULL,
		icon TEXT,
		frequency TEXT NOT NULL DEFAULT 'weekly',
		custom_interval_days INTEGER,
		last_cleaned_at TEXT,
		created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now')),
		deleted_at TEXT
	) STRICT;

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

// testEnv holds the full wired stack behind a test router.
type testEnv struct {
	db      *sql.DB
	srv     *Server
	router  http.Handler
	clients oauth.ClientRepository
}

// newTestEnv wires the whole application over a temp-file SQLite database.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	f, err := os.CreateTemp("", "api-test-*.db")
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

	if _, err := db.Exec(testSchema); err != nil {
		t.Fatalf("creating schema: %v", err)
	}

	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	clients := oauth.NewClientRepository(db)
	tokens := oauth.NewTokenRepository(db)
	authSvc := auth.NewService(auth.NewUserRepository(db), tokens, logger)
	auditRepo := audit.NewSQLiteRepository(db)
	recorder := audit.NewRecorder(auditRepo, logger)
	oauthSvc := oauth.NewService(
		clients,
		oauth.NewCodeRepository(db),
		tokens,
		authSvc, auth.VerifySecret, recorder, logger,
		oauth.ServiceConfig{},
	)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Port: 0,
			Timeouts: config.APITimeoutConfig{
				Read:  5,
				Write: 5,
				Idle:  5,
			},
		},
		Logger:  logger,
		OAuth:   oauthSvc,
		Auth:    authSvc,
		Clients: clients,
		Rooms:   location.NewRoomRepository(db),
		Zones:   location.NewZoneRepository(db),
		Audit:   auditRepo,
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	return &testEnv{
		db:      db,
		srv:     srv,
		router:  srv.buildRouter(),
		clients: clients,
	}
}

// seedClient registers an OAuth client with a hashed secret and returns
// the raw secret for use in requests.
func (e *testEnv) seedClient(t *testing.T, client *oauth.Client) (*oauth.Client, string) {
	t.Helper()

	secret := ""
	if !client.IsPublic {
		secret = "test-secret-" + client.Name
		hash, err := auth.HashSecret(secret)
		if err != nil {
			t.Fatalf("hashing secret: %v", err)
		}
		client.SecretHash = hash
	}
	if client.RedirectURIs == nil {
		client.RedirectURIs = []string{"https://app.example.com/callback"}
	}
	if client.GrantTypes == nil {
		client.GrantTypes = []string{"authorization_code", "refresh_token", "direct"}
	}
	if client.Scopes == nil {
		client.Scopes = oauth.DefaultScopes()
	}

	if err := e.clients.Create(context.Background(), client); err != nil {
		t.Fatalf("seeding client: %v", err)
	}
	return client, secret
}

// registerUser creates an account through the public endpoint.
func (e *testEnv) registerUser(t *testing.T, username, password string) {
	t.Helper()

	body := `{"email":"` + username + `@example.com","username":"` + username + `","password":"` + password + `"}`
	w := e.do(t, http.MethodPost, "/api/v1/auth/register", body, nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("register status = %d; body: %s", w.Code, w.Body.String())
	}
}

// login exchanges credentials for a token pair through /auth/login.
func (e *testEnv) login(t *testing.T, clientID, clientSecret, username, password string) tokenResponse {
	t.Helper()

	body, err := json.Marshal(loginRequest{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Username:     username,
		Password:     password,
	})
	if err != nil {
		t.Fatalf("marshalling login body: %v", err)
	}
	w := e.do(t, http.MethodPost, "/api/v1/auth/login", string(body), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("login status = %d; body: %s", w.Code, w.Body.String())
	}

	var resp tokenResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshalling token response: %v", err)
	}
	return resp
}

// do runs one request through the router.
func (e *testEnv) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// bearer builds an Authorization header map.
func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// formHeader is the content type for OAuth protocol endpoints.
var formHeader = map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
