package oauth

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CodeRepository defines the interface for authorization code persistence.
//
// Redemption is a claim operation: the first caller to present a code wins
// it, every later caller trips the replay path. Validation of what the
// claimed code binds (client, redirect URI, PKCE) happens above this layer;
// a claimed code stays burned even when that validation fails.
type CodeRepository interface {
	Create(ctx context.Context, code *AuthorizationCode) error
	Redeem(ctx context.Context, code string) (*AuthorizationCode, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

// SQLiteCodeRepository implements CodeRepository using SQLite.
type SQLiteCodeRepository struct {
	db *sql.DB
}

// NewCodeRepository creates a new SQLite-backed authorization code repository.
func NewCodeRepository(db *sql.DB) *SQLiteCodeRepository {
	return &SQLiteCodeRepository{db: db}
}

// Create inserts a new authorization code. The code value is generated
// if empty.
func (r *SQLiteCodeRepository) Create(ctx context.Context, code *AuthorizationCode) error {
	if code.Code == "" {
		value, err := GenerateCode()
		if err != nil {
			return err
		}
		code.Code = value
	}

	scopes, err := code.Scopes.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encoding scopes: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	code.CreatedAt, _ = time.Parse(time.RFC3339, now) //nolint:errcheck // format is controlled

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO authorization_codes (code, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, redeemed, expires_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		code.Code, code.ClientID, code.UserID, code.RedirectURI, string(scopes),
		nullString(code.CodeChallenge), nullString(code.CodeChallengeMethod),
		boolToInt(code.Redeemed),
		code.ExpiresAt.UTC().Format(time.RFC3339), now,
	)
	if err != nil {
		return fmt.Errorf("creating authorization code: %w", err)
	}

	return nil
}

// Redeem atomically claims a code. Exactly one caller can ever claim a
// given code; the claim and the replay check share one transaction so
// concurrent redemptions cannot both succeed.
//
// When the code was already claimed, every token previously issued from
// it is revoked in the same transaction (breach containment) and
// ErrCodeReplayed is returned. Unknown codes return ErrCodeNotFound.
// Expiry is not checked here; the caller decides what an expired claim
// means.
func (r *SQLiteCodeRepository) Redeem(ctx context.Context, code string) (*AuthorizationCode, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning redemption transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback is no-op after commit

	var ac AuthorizationCode
	var challenge, method sql.NullString
	var redeemed int
	var scopes, expiresAt, createdAt string

	err = tx.QueryRowContext(ctx,
		`SELECT code, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, redeemed, expires_at, created_at
		 FROM authorization_codes WHERE code = ?`, code,
	).Scan(&ac.Code, &ac.ClientID, &ac.UserID, &ac.RedirectURI, &scopes,
		&challenge, &method, &redeemed, &expiresAt, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("getting authorization code: %w", err)
	}

	ac.Redeemed = redeemed != 0
	if challenge.Valid {
		ac.CodeChallenge = challenge.String
	}
	if method.Valid {
		ac.CodeChallengeMethod = method.String
	}
	if err := ac.Scopes.UnmarshalJSON([]byte(scopes)); err != nil {
		return nil, fmt.Errorf("decoding scopes: %w", err)
	}
	ac.ExpiresAt, _ = time.Parse(time.RFC3339, expiresAt) //nolint:errcheck // format is controlled
	ac.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled

	if ac.Redeemed {
		// Replay. Someone holds a copy of a spent code, so nothing minted
		// from it can be trusted anymore.
		if _, err := tx.ExecContext(ctx,
			"UPDATE access_tokens SET revoked = 1 WHERE code = ?", code); err != nil {
			return nil, fmt.Errorf("revoking access tokens for replayed code: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE refresh_tokens SET revoked = 1 WHERE code = ?", code); err != nil {
			return nil, fmt.Errorf("revoking refresh tokens for replayed code: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("committing replay revocation: %w", err)
		}
		return nil, ErrCodeReplayed
	}

	result, err := tx.ExecContext(ctx,
		"UPDATE authorization_codes SET redeemed = 1 WHERE code = ? AND redeemed = 0", code)
	if err != nil {
		return nil, fmt.Errorf("claiming authorization code: %w", err)
	}
	affected, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if affected == 0 {
		// Lost the race to a concurrent redemption.
		return nil, ErrCodeReplayed
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing redemption: %w", err)
	}

	ac.Redeemed = true
	return &ac, nil
}

// DeleteExpired removes codes past their expiry, freeing storage.
// Returns the number of deleted rows.
func (r *SQLiteCodeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339)

	result, err := r.db.ExecContext(ctx,
		"DELETE FROM authorization_codes WHERE expires_at <= ?", now)
	if err != nil {
		return 0, fmt.Errorf("deleting expired codes: %w", err)
	}

	count, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	return count, nil
}
