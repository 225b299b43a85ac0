package oauth

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClientRepository defines the interface for OAuth client persistence.
type ClientRepository interface {
	Create(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, clientID string) (*Client, error)
	List(ctx context.Context) ([]Client, error)
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, clientID string) error
}

// SQLiteClientRepository implements ClientRepository using SQLite.
type SQLiteClientRepository struct {
	db *sql.DB
}

// NewClientRepository creates a new SQLite-backed client repository.
func NewClientRepository(db *sql.DB) *SQLiteClientRepository {
	return &SQLiteClientRepository{db: db}
}

// Create inserts a new client. The ID is generated if empty.
func (r *SQLiteClientRepository) Create(ctx context.Context, client *Client) error {
	if client.ID == "" {
		client.ID = "client-" + uuid.NewString()[:16]
	}

	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect URIs: %w", err)
	}
	grantTypes, err := json.Marshal(client.GrantTypes)
	if err != nil {
		return fmt.Errorf("encoding grant types: %w", err)
	}
	scopes, err := json.Marshal(client.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	client.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO oauth_clients (client_id, secret_hash, name, redirect_uris, grant_types, scopes, is_public, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		client.ID, nullString(client.SecretHash), client.Name,
		string(redirectURIs), string(grantTypes), string(scopes),
		boolToInt(client.IsPublic), now,
	)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}

	return nil
}

// GetByID retrieves a client by its client_id.
func (r *SQLiteClientRepository) GetByID(ctx context.Context, clientID string) (*Client, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT client_id, secret_hash, name, redirect_uris, grant_types, scopes, is_public, created_at
		 FROM oauth_clients WHERE client_id = ?`, clientID)

	client, err := scanClient(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("getting client: %w", err)
	}
	return client, nil
}

// List returns all registered clients ordered by creation time.
func (r *SQLiteClientRepository) List(ctx context.Context) ([]Client, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT client_id, secret_hash, name, redirect_uris, grant_types, scopes, is_public, created_at
		 FROM oauth_clients ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	defer rows.Close()

	var clients []Client
	for rows.Next() {
		client, err := scanClient(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning client: %w", err)
		}
		clients = append(clients, *client)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating clients: %w", err)
	}

	if clients == nil {
		clients = []Client{}
	}
	return clients, nil
}

// Update rewrites a client's mutable fields: name, redirect URIs, grant
// types and scopes. The secret hash and public flag are fixed at creation.
func (r *SQLiteClientRepository) Update(ctx context.Context, client *Client) error {
	redirectURIs, err := json.Marshal(client.RedirectURIs)
	if err != nil {
		return fmt.Errorf("encoding redirect URIs: %w", err)
	}
	grantTypes, err := json.Marshal(client.GrantTypes)
	if err != nil {
		return fmt.Errorf("encoding grant types: %w", err)
	}
	scopes, err := json.Marshal(client.Scopes)
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE oauth_clients SET name = ?, redirect_uris = ?, grant_types = ?, scopes = ?
		 WHERE client_id = ?`,
		client.Name, string(redirectURIs), string(grantTypes), string(scopes), client.ID)
	if err != nil {
		return fmt.Errorf("updating client: %w", err)
	}

	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// Delete removes a client. Tokens and codes cascade via foreign keys.
func (r *SQLiteClientRepository) Delete(ctx context.Context, clientID string) error {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM oauth_clients WHERE client_id = ?", clientID)
	if err != nil {
		return fmt.Errorf("deleting client: %w", err)
	}

	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanClient(row rowScanner) (*Client, error) {
	var c Client
	var secretHash sql.NullString
	var redirectURIs, grantTypes, scopes string
	var isPublic int
	var createdAt string

	err := row.Scan(&c.ID, &secretHash, &c.Name, &redirectURIs, &grantTypes,
		&scopes, &isPublic, &createdAt)
	if err != nil {
		return nil, err
	}

	if secretHash.Valid {
		c.SecretHash = secretHash.String
	}
	c.IsPublic = isPublic != 0
	if err := json.Unmarshal([]byte(redirectURIs), &c.RedirectURIs); err != nil {
		return nil, fmt.Errorf("decoding redirect URIs: %w", err)
	}
	if err := json.Unmarshal([]byte(grantTypes), &c.GrantTypes); err != nil {
		return nil, fmt.Errorf("decoding grant types: %w", err)
	}
	if err := json.Unmarshal([]byte(scopes), &c.Scopes); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &c, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
