package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
)

// UserAuthenticator verifies first-party user credentials for the direct
// grant. Implementations return the user's ID on success and
// ErrInvalidCredentials (or any other error) on failure.
type UserAuthenticator interface {
	AuthenticateUser(ctx context.Context, username, password string) (string, error)
}

// SecretVerifier checks a presented client secret against a stored hash.
type SecretVerifier func(secret, hash string) (bool, error)

// EventRecorder receives token lifecycle events for the audit trail.
// Implementations must swallow their own failures; auditing never blocks
// token operations.
type EventRecorder interface {
	RecordEvent(ctx context.Context, action, entityID, userID, details string)
}

// ServiceConfig holds the token lifetimes. Zero fields fall back to the
// defaults below.
type ServiceConfig struct {
	AccessTokenTTL        time.Duration
	RefreshTokenTTL       time.Duration
	DirectAccessTokenTTL  time.Duration
	DirectRefreshTokenTTL time.Duration
	AuthCodeTTL           time.Duration
}

// Default token lifetimes.
const (
	DefaultAccessTokenTTL        = 60 * time.Minute
	DefaultRefreshTokenTTL       = 30 * 24 * time.Hour
	DefaultDirectAccessTokenTTL  = 24 * time.Hour
	DefaultDirectRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultAuthCodeTTL           = 10 * time.Minute
)

func (c *ServiceConfig) applyDefaults() {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.DirectAccessTokenTTL <= 0 {
		c.DirectAccessTokenTTL = DefaultDirectAccessTokenTTL
	}
	if c.DirectRefreshTokenTTL <= 0 {
		c.DirectRefreshTokenTTL = DefaultDirectRefreshTokenTTL
	}
	if c.AuthCodeTTL <= 0 {
		c.AuthCodeTTL = DefaultAuthCodeTTL
	}
}

// Service orchestrates the token lifecycle: code issuance and redemption,
// the four grant paths, rotation, revocation and introspection.
type Service struct {
	clients      ClientRepository
	codes        CodeRepository
	tokens       TokenRepository
	users        UserAuthenticator
	verifySecret SecretVerifier
	audit        EventRecorder
	logger       *logging.Logger
	cfg          ServiceConfig
	now          func() time.Time
}

// NewService creates the token lifecycle service.
func NewService(clients ClientRepository, codes CodeRepository, tokens TokenRepository,
	users UserAuthenticator, verifySecret SecretVerifier, audit EventRecorder,
	logger *logging.Logger, cfg ServiceConfig) *Service {
	cfg.applyDefaults()
	return &Service{
		clients:      clients,
		codes:        codes,
		tokens:       tokens,
		users:        users,
		verifySecret: verifySecret,
		audit:        audit,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// TokenRequest carries the parsed form fields of a token endpoint call.
// Which fields matter depends on the grant type.
type TokenRequest struct {
	GrantType    GrantType
	ClientID     string
	ClientSecret string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	Username     string
	Password     string
	Scope        string
}

// IssueCodeRequest carries a consent decision from the authorization
// endpoint.
type IssueCodeRequest struct {
	ClientID            string
	UserID              string
	RedirectURI         string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// ErrPKCERequired is returned when a public client starts the code flow
// without a code_challenge.
var ErrPKCERequired = errors.New("code_challenge required for public clients")

// ValidateAuthorizeRequest checks an authorization request before any
// consent UI is shown: the client must exist, the redirect URI must
// exactly match a registered one, the grant must be allowed, the scopes
// must be a subset of the client's registration, and public clients must
// present a PKCE challenge with a supported method.
//
// Redirect validation comes first; nothing may ever be sent to an
// unregistered redirect URI, including error responses.
func (s *Service) ValidateAuthorizeRequest(ctx context.Context, req IssueCodeRequest) (*Client, ScopeSet, error) {
	client, err := s.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, nil, err
	}
	if !client.AllowsRedirectURI(req.RedirectURI) {
		return nil, nil, ErrRedirectMismatch
	}
	if !client.AllowsGrantType(GrantAuthorizationCode) {
		return nil, nil, ErrUnauthorizedClient
	}

	scopes, err := ParseScopeSet(req.Scope)
	if err != nil {
		return nil, nil, ErrInvalidScope
	}
	if scopes.IsEmpty() {
		scopes = DefaultScopes().Intersect(client.Scopes)
	}
	if !scopes.IsSubsetOf(client.Scopes) {
		return nil, nil, ErrInvalidScope
	}

	if req.CodeChallenge == "" {
		if client.IsPublic {
			return nil, nil, ErrPKCERequired
		}
	} else if !ValidChallengeMethod(req.CodeChallengeMethod) {
		return nil, nil, fmt.Errorf("%w: unsupported code_challenge_method", ErrPKCERequired)
	}

	return client, scopes, nil
}

// IssueCode records a user's consent as a single-use authorization code.
// The request is re-validated; trust nothing that survived the consent
// round trip.
func (s *Service) IssueCode(ctx context.Context, req IssueCodeRequest) (*AuthorizationCode, error) {
	_, scopes, err := s.ValidateAuthorizeRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	code := &AuthorizationCode{
		ClientID:            req.ClientID,
		UserID:              req.UserID,
		RedirectURI:         req.RedirectURI,
		Scopes:              scopes,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod,
		ExpiresAt:           s.now().Add(s.cfg.AuthCodeTTL),
	}
	if code.CodeChallenge != "" && code.CodeChallengeMethod == "" {
		code.CodeChallengeMethod = ChallengePlain
	}

	err = s.withRetry(ctx, func() error {
		return s.codes.Create(ctx, code)
	})
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, "oauth.code.issued", code.ClientID, code.UserID, "")
	return code, nil
}

// Token dispatches a token endpoint request to the matching grant path.
// All grant-level failures surface as ErrInvalidGrant (or the scope and
// grant-type sentinels) so the response never reveals which check failed.
func (s *Service) Token(ctx context.Context, req TokenRequest) (*TokenPair, error) {
	client, err := s.authenticateClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, err
	}

	switch req.GrantType {
	case GrantAuthorizationCode:
		return s.tokenFromCode(ctx, client, req)
	case GrantRefreshToken:
		return s.tokenFromRefresh(ctx, client, req)
	case GrantClientCredentials:
		return s.tokenFromClientCredentials(ctx, client, req)
	case GrantDirect:
		return s.tokenFromCredentials(ctx, client, req)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

// AuthenticateClient verifies client credentials for endpoints that
// require client authentication outside a grant flow, such as
// introspection.
func (s *Service) AuthenticateClient(ctx context.Context, clientID, secret string) (*Client, error) {
	return s.authenticateClient(ctx, clientID, secret)
}

// authenticateClient resolves the client and, for confidential clients,
// verifies the presented secret. Unknown clients and bad secrets both
// collapse to ErrInvalidClient.
func (s *Service) authenticateClient(ctx context.Context, clientID, secret string) (*Client, error) {
	if clientID == "" {
		return nil, ErrInvalidClient
	}
	client, err := s.clients.GetByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, ErrClientNotFound) {
			return nil, ErrInvalidClient
		}
		return nil, err
	}

	if client.IsConfidential() {
		if secret == "" {
			return nil, ErrInvalidClient
		}
		ok, err := s.verifySecret(secret, client.SecretHash)
		if err != nil {
			return nil, fmt.Errorf("verifying client secret: %w", err)
		}
		if !ok {
			return nil, ErrInvalidClient
		}
	}

	return client, nil
}

// tokenFromCode redeems an authorization code for a token pair. The code
// claim is atomic; once claimed here the code is spent even if a later
// check fails. A replayed code revokes everything it ever minted.
func (s *Service) tokenFromCode(ctx context.Context, client *Client, req TokenRequest) (*TokenPair, error) {
	if !client.AllowsGrantType(GrantAuthorizationCode) {
		return nil, ErrUnauthorizedClient
	}
	if req.Code == "" || req.RedirectURI == "" {
		return nil, ErrInvalidGrant
	}

	var code *AuthorizationCode
	err := s.withRetry(ctx, func() error {
		var redeemErr error
		code, redeemErr = s.codes.Redeem(ctx, req.Code)
		return redeemErr
	})
	if err != nil {
		if errors.Is(err, ErrCodeReplayed) {
			s.logger.Warn("authorization code replayed, revoking descendants",
				"client_id", client.ID)
			s.audit.RecordEvent(ctx, "oauth.code.replayed", client.ID, "", "descendant tokens revoked")
			return nil, ErrInvalidGrant
		}
		if errors.Is(err, ErrCodeNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	now := s.now()
	switch {
	case code.ClientID != client.ID:
		return nil, ErrInvalidGrant
	case code.RedirectURI != req.RedirectURI:
		return nil, ErrInvalidGrant
	case !now.Before(code.ExpiresAt):
		return nil, ErrInvalidGrant
	}

	if code.CodeChallenge != "" {
		if !VerifyPKCE(code.CodeChallengeMethod, code.CodeChallenge, req.CodeVerifier) {
			return nil, ErrInvalidGrant
		}
	} else if req.CodeVerifier != "" {
		return nil, ErrInvalidGrant
	}

	pair, err := s.mintPair(ctx, client, code.UserID, code.Scopes, code.Code, "",
		s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, "oauth.code.redeemed", client.ID, code.UserID, "")
	s.audit.RecordEvent(ctx, "oauth.token.issued", client.ID, code.UserID, "grant=authorization_code")
	return pair, nil
}

// tokenFromRefresh rotates a refresh token. A presented token that is
// already revoked means someone is replaying a spent token, so the whole
// family goes down with it.
func (s *Service) tokenFromRefresh(ctx context.Context, client *Client, req TokenRequest) (*TokenPair, error) {
	if !client.AllowsGrantType(GrantRefreshToken) {
		return nil, ErrUnauthorizedClient
	}
	if req.RefreshToken == "" {
		return nil, ErrInvalidGrant
	}

	token, err := s.tokens.GetRefreshByHash(ctx, HashToken(req.RefreshToken))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	if token.ClientID != client.ID {
		// A valid refresh token presented by the wrong client is theft
		// evidence just like a replay.
		s.revokeFamilyForReuse(ctx, token, "presented by wrong client")
		return nil, ErrInvalidGrant
	}
	if token.Revoked {
		s.revokeFamilyForReuse(ctx, token, "revoked token replayed")
		return nil, ErrInvalidGrant
	}
	if !s.now().Before(token.ExpiresAt) {
		return nil, ErrInvalidGrant
	}

	scopes := token.Scopes
	if req.Scope != "" {
		requested, err := ParseScopeSet(req.Scope)
		if err != nil || !requested.IsSubsetOf(token.Scopes) {
			return nil, ErrInvalidScope
		}
		scopes = requested
	}

	accessTTL, refreshTTL := s.cfg.AccessTokenTTL, s.cfg.RefreshTokenTTL
	pair, err := s.rotatePair(ctx, token, scopes, accessTTL, refreshTTL)
	if err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			// Lost a race against a concurrent rotation of the same token.
			s.revokeFamilyForReuse(ctx, token, "concurrent rotation")
			return nil, ErrInvalidGrant
		}
		return nil, err
	}

	s.audit.RecordEvent(ctx, "oauth.token.rotated", client.ID, token.UserID, "family="+token.FamilyID)
	return pair, nil
}

// revokeFamilyForReuse tears down a rotation family after reuse evidence.
// Best effort; the caller is already returning invalid_grant.
func (s *Service) revokeFamilyForReuse(ctx context.Context, token *RefreshToken, reason string) {
	s.logger.Warn("refresh token reuse detected, revoking family",
		"client_id", token.ClientID, "family_id", token.FamilyID, "reason", reason)
	err := s.withRetry(ctx, func() error {
		return s.tokens.RevokeFamily(ctx, token.FamilyID)
	})
	if err != nil {
		s.logger.Error("revoking token family", "family_id", token.FamilyID, "error", err)
	}
	s.audit.RecordEvent(ctx, "oauth.token.reuse_detected", token.ClientID, token.UserID,
		"family="+token.FamilyID+" reason="+reason)
}

// tokenFromClientCredentials issues a standalone access token for
// machine-to-machine use. No user, no refresh token, no family.
func (s *Service) tokenFromClientCredentials(ctx context.Context, client *Client, req TokenRequest) (*TokenPair, error) {
	if !client.AllowsGrantType(GrantClientCredentials) {
		return nil, ErrUnauthorizedClient
	}
	if client.IsPublic {
		return nil, ErrUnauthorizedClient
	}

	scopes := client.Scopes
	if req.Scope != "" {
		requested, err := ParseScopeSet(req.Scope)
		if err != nil || !requested.IsSubsetOf(client.Scopes) {
			return nil, ErrInvalidScope
		}
		scopes = requested
	}

	pair, err := s.mintAccessOnly(ctx, client, scopes, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, "oauth.token.issued", client.ID, "", "grant=client_credentials")
	return pair, nil
}

// tokenFromCredentials is the direct first-party grant: username and
// password in exchange for a long-lived session pair. Bad credentials
// collapse to ErrInvalidGrant like every other grant failure.
func (s *Service) tokenFromCredentials(ctx context.Context, client *Client, req TokenRequest) (*TokenPair, error) {
	if !client.AllowsGrantType(GrantDirect) {
		return nil, ErrUnauthorizedClient
	}
	if req.Username == "" || req.Password == "" {
		return nil, ErrInvalidGrant
	}

	userID, err := s.users.AuthenticateUser(ctx, req.Username, req.Password)
	if err != nil {
		// Whatever went wrong, the caller learns only invalid_grant.
		if !errors.Is(err, ErrInvalidCredentials) {
			s.logger.Error("authenticating user for direct grant", "error", err)
		}
		return nil, ErrInvalidGrant
	}

	scopes := DefaultScopes().Intersect(client.Scopes)
	if req.Scope != "" {
		requested, err := ParseScopeSet(req.Scope)
		if err != nil || !requested.IsSubsetOf(client.Scopes) {
			return nil, ErrInvalidScope
		}
		scopes = requested
	}

	pair, err := s.mintPair(ctx, client, userID, scopes, "", "",
		s.cfg.DirectAccessTokenTTL, s.cfg.DirectRefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	s.audit.RecordEvent(ctx, "oauth.token.issued", client.ID, userID, "grant=direct")
	return pair, nil
}

// RevocationRequest carries the parsed form fields of a revocation call.
type RevocationRequest struct {
	Token         string
	TokenTypeHint string
}

// Revoke invalidates a presented token. Possession of the token is the
// only credential: the raw value is unguessable, so whoever holds it may
// kill it. Revocation is idempotent and deliberately quiet - unknown and
// already-revoked tokens succeed without effect.
//
// Revoking a refresh token also revokes the access tokens minted with it.
func (s *Service) Revoke(ctx context.Context, req RevocationRequest) error {
	if req.Token == "" {
		return nil
	}

	hash := HashToken(req.Token)

	// The hint only orders the lookups; a wrong hint must not change
	// the outcome.
	if req.TokenTypeHint != "access_token" {
		if refresh, err := s.tokens.GetRefreshByHash(ctx, hash); err == nil {
			err := s.withRetry(ctx, func() error {
				return s.tokens.RevokeRefreshCascade(ctx, refresh.ID)
			})
			if err != nil {
				return err
			}
			s.audit.RecordEvent(ctx, "oauth.token.revoked", refresh.ClientID, refresh.UserID, "type=refresh")
			return nil
		} else if !errors.Is(err, ErrTokenNotFound) {
			return err
		}
	}

	if access, err := s.tokens.GetAccessByHash(ctx, hash); err == nil {
		err := s.withRetry(ctx, func() error {
			return s.tokens.RevokeAccess(ctx, access.ID)
		})
		if err != nil {
			return err
		}
		s.audit.RecordEvent(ctx, "oauth.token.revoked", access.ClientID, access.UserID, "type=access")
		return nil
	} else if !errors.Is(err, ErrTokenNotFound) {
		return err
	}

	// Hint said access_token but the value might still be a refresh token.
	if req.TokenTypeHint == "access_token" {
		if refresh, err := s.tokens.GetRefreshByHash(ctx, hash); err == nil {
			err := s.withRetry(ctx, func() error {
				return s.tokens.RevokeRefreshCascade(ctx, refresh.ID)
			})
			if err != nil {
				return err
			}
			s.audit.RecordEvent(ctx, "oauth.token.revoked", refresh.ClientID, refresh.UserID, "type=refresh")
			return nil
		} else if !errors.Is(err, ErrTokenNotFound) {
			return err
		}
	}

	return nil
}

// Introspect reports the state of a presented token. Anything that is
// not a live token - unknown, expired, revoked, malformed - comes back
// as a bare {active:false}; the endpoint never explains itself. Storage
// failures are logged and also reported as inactive.
func (s *Service) Introspect(ctx context.Context, raw string) Introspection {
	if raw == "" {
		return Introspection{Active: false}
	}
	hash := HashToken(raw)
	now := s.now()

	if access, err := s.tokens.GetAccessByHash(ctx, hash); err == nil {
		if !access.Active(now) {
			return Introspection{Active: false}
		}
		return Introspection{
			Active:    true,
			Scope:     access.Scopes.String(),
			ClientID:  access.ClientID,
			UserID:    access.UserID,
			TokenType: "access_token",
			ExpiresAt: access.ExpiresAt.Unix(),
			IssuedAt:  access.CreatedAt.Unix(),
		}
	} else if !errors.Is(err, ErrTokenNotFound) {
		s.logger.Error("introspecting access token", "error", err)
		return Introspection{Active: false}
	}

	if refresh, err := s.tokens.GetRefreshByHash(ctx, hash); err == nil {
		if !refresh.Active(now) {
			return Introspection{Active: false}
		}
		return Introspection{
			Active:    true,
			Scope:     refresh.Scopes.String(),
			ClientID:  refresh.ClientID,
			UserID:    refresh.UserID,
			TokenType: "refresh_token",
			ExpiresAt: refresh.ExpiresAt.Unix(),
			IssuedAt:  refresh.CreatedAt.Unix(),
		}
	} else if !errors.Is(err, ErrTokenNotFound) {
		s.logger.Error("introspecting refresh token", "error", err)
	}

	return Introspection{Active: false}
}

// Authenticate resolves a raw bearer token to its stored access token.
// Used by the API middleware; unknown, revoked and expired tokens return
// distinct sentinels that all map to a 401.
func (s *Service) Authenticate(ctx context.Context, raw string) (*AccessToken, error) {
	if raw == "" {
		return nil, ErrTokenNotFound
	}
	token, err := s.tokens.GetAccessByHash(ctx, HashToken(raw))
	if err != nil {
		return nil, err
	}
	if token.Revoked {
		return nil, ErrTokenRevoked
	}
	if !s.now().Before(token.ExpiresAt) {
		return nil, ErrTokenExpired
	}
	return token, nil
}

// withRetry runs op, retrying exactly once when SQLite reports a
// transient busy/locked condition. Anything else fails immediately.
func (s *Service) withRetry(ctx context.Context, op func() error) error {
	err := op()
	if err == nil || !isTransient(err) {
		return err
	}
	s.logger.Warn("transient storage failure, retrying once", "error", err)
	if ctx.Err() != nil {
		return err
	}
	return op()
}

func isTransient(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}
