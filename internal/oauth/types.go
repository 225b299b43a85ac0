package oauth

import (
	"errors"
	"time"
)

// Sentinel errors for the token lifecycle. Handlers map these onto the
// OAuth wire error codes; anything not in this list is a server error.
var (
	ErrClientNotFound       = errors.New("client not found")
	ErrInvalidClient        = errors.New("client authentication failed")
	ErrInvalidGrant         = errors.New("invalid grant")
	ErrUnauthorizedClient   = errors.New("client not authorized for grant type")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
	ErrInvalidScope         = errors.New("invalid scope")
	ErrRedirectMismatch     = errors.New("redirect_uri not registered for client")
	ErrCodeNotFound         = errors.New("authorization code not found")
	ErrCodeReplayed         = errors.New("authorization code already redeemed")
	ErrTokenNotFound        = errors.New("token not found")
	ErrTokenRevoked         = errors.New("token revoked")
	ErrTokenExpired         = errors.New("token expired")
	ErrTokenReuse           = errors.New("refresh token reuse detected")
	ErrInvalidCredentials   = errors.New("invalid credentials")
)

// GrantType identifies a token issuance path.
type GrantType string

// Supported grant types.
const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
	GrantDirect            GrantType = "direct"
)

// PKCE challenge methods.
const (
	ChallengeS256  = "S256"
	ChallengePlain = "plain"
)

// Client is a registered OAuth client application.
//
// Public clients carry no secret and must use PKCE on the authorization
// code flow. Confidential clients authenticate with client_secret on every
// token endpoint call.
type Client struct {
	ID           string    `json:"client_id"`
	SecretHash   string    `json:"-"`
	Name         string    `json:"name"`
	RedirectURIs []string  `json:"redirect_uris"`
	GrantTypes   []string  `json:"grant_types"`
	Scopes       ScopeSet  `json:"scopes"`
	IsPublic     bool      `json:"is_public"`
	CreatedAt    time.Time `json:"created_at"`
}

// IsConfidential returns true if the client holds a secret.
func (c *Client) IsConfidential() bool {
	return !c.IsPublic
}

// AllowsGrantType returns true if the client is registered for the grant.
func (c *Client) AllowsGrantType(gt GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == string(gt) {
			return true
		}
	}
	return false
}

// AllowsRedirectURI returns true if uri exactly matches a registered
// redirect URI. No prefix or pattern matching.
func (c *Client) AllowsRedirectURI(uri string) bool {
	for _, r := range c.RedirectURIs {
		if r == uri {
			return true
		}
	}
	return false
}

// AuthorizationCode is a short-lived single-use credential binding a user's
// consent to a client, redirect URI, scope set and PKCE challenge.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	UserID              string    `json:"user_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scopes              ScopeSet  `json:"scopes"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	Redeemed            bool      `json:"redeemed"`
	ExpiresAt           time.Time `json:"expires_at"`
	CreatedAt           time.Time `json:"created_at"`
}

// AccessToken is the stored record of an issued access token. The raw
// token value is never stored; TokenHash is its SHA-256 hex digest.
//
// FamilyID, RefreshTokenID and Code are back-references used for cascade
// revocation: family-wide on refresh reuse, session-wide on refresh
// revocation, and breach revocation on authorization code replay.
type AccessToken struct {
	ID             string    `json:"id"`
	TokenHash      string    `json:"-"`
	ClientID       string    `json:"client_id"`
	UserID         string    `json:"user_id,omitempty"`
	Scopes         ScopeSet  `json:"scopes"`
	FamilyID       string    `json:"family_id,omitempty"`
	RefreshTokenID string    `json:"refresh_token_id,omitempty"`
	Code           string    `json:"-"`
	ExpiresAt      time.Time `json:"expires_at"`
	Revoked        bool      `json:"revoked"`
	CreatedAt      time.Time `json:"created_at"`
}

// Active reports whether the token is currently usable.
func (t *AccessToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// RefreshToken is the stored record of an issued refresh token. Tokens
// descended from the same initial grant share a FamilyID; RotatedFrom
// links each token to its predecessor in the rotation chain.
type RefreshToken struct {
	ID          string    `json:"id"`
	TokenHash   string    `json:"-"`
	ClientID    string    `json:"client_id"`
	UserID      string    `json:"user_id,omitempty"`
	Scopes      ScopeSet  `json:"scopes"`
	FamilyID    string    `json:"family_id"`
	RotatedFrom string    `json:"rotated_from,omitempty"`
	Code        string    `json:"-"`
	ExpiresAt   time.Time `json:"expires_at"`
	Revoked     bool      `json:"revoked"`
	CreatedAt   time.Time `json:"created_at"`
}

// Active reports whether the token is currently usable.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// TokenPair is the issuance result handed back to a client: the raw
// values exist only here, never in storage.
type TokenPair struct {
	AccessToken      string   `json:"access_token"`
	TokenType        string   `json:"token_type"`
	ExpiresIn        int64    `json:"expires_in"`
	RefreshToken     string   `json:"refresh_token,omitempty"`
	RefreshExpiresIn int64    `json:"refresh_expires_in,omitempty"`
	Scope            ScopeSet `json:"-"`
}

// Introspection is the result of looking up a presented token. An
// inactive token yields Active=false with every other field zeroed, so
// the endpoint never leaks why a token is dead.
type Introspection struct {
	Active    bool     `json:"active"`
	Scope     string   `json:"scope,omitempty"`
	ClientID  string   `json:"client_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	TokenType string   `json:"token_type,omitempty"`
	ExpiresAt int64    `json:"exp,omitempty"`
	IssuedAt  int64    `json:"iat,omitempty"`
}
