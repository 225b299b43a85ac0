package oauth

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TokenRepository defines the interface for access and refresh token
// persistence, including the transactional rotation path.
type TokenRepository interface {
	CreateAccess(ctx context.Context, token *AccessToken) error
	CreatePair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error
	GetAccessByHash(ctx context.Context, tokenHash string) (*AccessToken, error)
	GetRefreshByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)
	Rotate(ctx context.Context, oldRefreshID string, access *AccessToken, refresh *RefreshToken) error
	RevokeAccess(ctx context.Context, id string) error
	RevokeRefreshCascade(ctx context.Context, id string) error
	RevokeFamily(ctx context.Context, familyID string) error
	RevokeAllForUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteTokenRepository implements TokenRepository using SQLite.
type SQLiteTokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new SQLite-backed token repository.
func NewTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db}
}

// execer abstracts *sql.DB and *sql.Tx so inserts can run standalone or
// inside the pair/rotation transactions.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// CreateAccess inserts a new access token. The ID is generated if empty.
func (r *SQLiteTokenRepository) CreateAccess(ctx context.Context, token *AccessToken) error {
	return insertAccessToken(ctx, r.db, token)
}

// CreatePair inserts an access token and its companion refresh token in a
// single transaction, so a crash cannot leave a refresh token whose
// access token was never minted or vice versa. The refresh token's ID and
// family are generated if empty, and the access token is linked to them.
func (r *SQLiteTokenRepository) CreatePair(ctx context.Context, access *AccessToken, refresh *RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning pair transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if refresh.ID == "" {
		refresh.ID = "rt-" + uuid.NewString()[:16]
	}
	if refresh.FamilyID == "" {
		refresh.FamilyID = uuid.NewString()
	}
	access.FamilyID = refresh.FamilyID
	access.RefreshTokenID = refresh.ID

	if err := insertRefreshToken(ctx, tx, refresh); err != nil {
		return err
	}
	if err := insertAccessToken(ctx, tx, access); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing pair: %w", err)
	}
	return nil
}

// GetAccessByHash retrieves an access token by its SHA-256 hash.
func (r *SQLiteTokenRepository) GetAccessByHash(ctx context.Context, tokenHash string) (*AccessToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, client_id, user_id, scopes, family_id, refresh_token_id, code, expires_at, revoked, created_at
		 FROM access_tokens WHERE token_hash = ?`, tokenHash)

	token, err := scanAccessToken(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("getting access token by hash: %w", err)
	}
	return token, nil
}

// GetRefreshByHash retrieves a refresh token by its SHA-256 hash.
func (r *SQLiteTokenRepository) GetRefreshByHash(ctx context.Context, tokenHash string) (*RefreshToken, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, token_hash, client_id, user_id, scopes, family_id, rotated_from, code, expires_at, revoked, created_at
		 FROM refresh_tokens WHERE token_hash = ?`, tokenHash)

	token, err := scanRefreshToken(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("getting refresh token by hash: %w", err)
	}
	return token, nil
}

// Rotate atomically retires a refresh token and mints its successor pair
// in the same family. The retire step is conditional on the old token
// still being live, so two concurrent rotations of the same token cannot
// both succeed; the loser gets ErrTokenRevoked and the caller treats it
// as reuse. Access tokens minted alongside the old refresh token are
// revoked with it.
func (r *SQLiteTokenRepository) Rotate(ctx context.Context, oldRefreshID string, access *AccessToken, refresh *RefreshToken) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning rotation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	result, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ? AND revoked = 0", oldRefreshID)
	if err != nil {
		return fmt.Errorf("retiring old refresh token: %w", err)
	}
	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		return ErrTokenRevoked
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE access_tokens SET revoked = 1 WHERE refresh_token_id = ?", oldRefreshID); err != nil {
		return fmt.Errorf("revoking access tokens of old refresh token: %w", err)
	}

	if refresh.ID == "" {
		refresh.ID = "rt-" + uuid.NewString()[:16]
	}
	refresh.RotatedFrom = oldRefreshID
	access.FamilyID = refresh.FamilyID
	access.RefreshTokenID = refresh.ID

	if err := insertRefreshToken(ctx, tx, refresh); err != nil {
		return err
	}
	if err := insertAccessToken(ctx, tx, access); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rotation: %w", err)
	}
	return nil
}

// RevokeAccess marks a single access token as revoked. Already-revoked
// tokens are left untouched; the operation is idempotent.
func (r *SQLiteTokenRepository) RevokeAccess(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		"UPDATE access_tokens SET revoked = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("revoking access token: %w", err)
	}
	return nil
}

// RevokeRefreshCascade marks a refresh token and every access token
// minted alongside any token in its rotation chain as revoked. Used for
// explicit revocation: killing the refresh token ends the session.
func (r *SQLiteTokenRepository) RevokeRefreshCascade(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning revocation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE id = ?", id); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE access_tokens SET revoked = 1 WHERE refresh_token_id = ?", id); err != nil {
		return fmt.Errorf("revoking linked access tokens: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing revocation: %w", err)
	}
	return nil
}

// RevokeFamily marks every refresh and access token in a family as
// revoked. This is the reuse-detection hammer: one replayed refresh
// token takes down the whole rotation lineage.
func (r *SQLiteTokenRepository) RevokeFamily(ctx context.Context, familyID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning family revocation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE family_id = ?", familyID); err != nil {
		return fmt.Errorf("revoking refresh token family: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE access_tokens SET revoked = 1 WHERE family_id = ?", familyID); err != nil {
		return fmt.Errorf("revoking access token family: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing family revocation: %w", err)
	}
	return nil
}

// RevokeAllForUser marks all tokens belonging to a user as revoked.
// Used on password change and admin force-logout.
func (r *SQLiteTokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning user revocation transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked = 1 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoking refresh tokens for user: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE access_tokens SET revoked = 1 WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("revoking access tokens for user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing user revocation: %w", err)
	}
	return nil
}

// DeleteExpired removes tokens past their expiry from both tables,
// freeing storage. Returns the total number of deleted rows.
func (r *SQLiteTokenRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	var total int64
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM access_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired access tokens: %w", err)
	}
	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	total += count

	result, err = r.db.ExecContext(ctx,
		"DELETE FROM refresh_tokens WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired refresh tokens: %w", err)
	}
	count, _ = result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	total += count

	return total, nil
}

func insertAccessToken(ctx context.Context, db execer, token *AccessToken) error {
	if token.ID == "" {
		token.ID = "at-" + uuid.NewString()[:16]
	}

	scopes, err := token.Scopes.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	token.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err = db.ExecContext(ctx,
		`INSERT INTO access_tokens (id, token_hash, client_id, user_id, scopes, family_id, refresh_token_id, code, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.TokenHash, token.ClientID, nullString(token.UserID),
		string(scopes), nullString(token.FamilyID), nullString(token.RefreshTokenID),
		nullString(token.Code),
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked), now,
	)
	if err != nil {
		return fmt.Errorf("creating access token: %w", err)
	}
	return nil
}

func insertRefreshToken(ctx context.Context, db execer, token *RefreshToken) error {
	if token.ID == "" {
		token.ID = "rt-" + uuid.NewString()[:16]
	}
	if token.FamilyID == "" {
		token.FamilyID = uuid.NewString()
	}

	scopes, err := token.Scopes.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	token.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err = db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, token_hash, client_id, user_id, scopes, family_id, rotated_from, code, expires_at, revoked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		token.ID, token.TokenHash, token.ClientID, nullString(token.UserID),
		string(scopes), token.FamilyID, nullString(token.RotatedFrom),
		nullString(token.Code),
		token.ExpiresAt.UTC().Format(time.RFC3339),
		boolToInt(token.Revoked), now,
	)
	if err != nil {
		return fmt.Errorf("creating refresh token: %w", err)
	}
	return nil
}

func scanAccessToken(row rowScanner) (*AccessToken, error) {
	var t AccessToken
	var userID, familyID, refreshTokenID, code sql.NullString
	var revoked int
	var scopes, expiresAt, createdAt string

	err := row.Scan(&t.ID, &t.TokenHash, &t.ClientID, &userID, &scopes,
		&familyID, &refreshTokenID, &code, &expiresAt, &revoked, &createdAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		t.UserID = userID.String
	}
	if familyID.Valid {
		t.FamilyID = familyID.String
	}
	if refreshTokenID.Valid {
		t.RefreshTokenID = refreshTokenID.String
	}
	if code.Valid {
		t.Code = code.String
	}
	t.Revoked = revoked != 0
	if err := t.Scopes.UnmarshalJSON([]byte(scopes)); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}

func scanRefreshToken(row rowScanner) (*RefreshToken, error) {
	var t RefreshToken
	var userID, rotatedFrom, code sql.NullString
	var revoked int
	var scopes, expiresAt, createdAt string

	err := row.Scan(&t.ID, &t.TokenHash, &t.ClientID, &userID, &scopes,
		&t.FamilyID, &rotatedFrom, &code, &expiresAt, &revoked, &createdAt)
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		t.UserID = userID.String
	}
	if rotatedFrom.Valid {
		t.RotatedFrom = rotatedFrom.String
	}
	if code.Valid {
		t.Code = code.String
	}
	t.Revoked = revoked != 0
	if err := t.Scopes.UnmarshalJSON([]byte(scopes)); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	t.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	return &t, nil
}
