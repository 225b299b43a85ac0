package oauth

import (
	"context"
	"fmt"
	"time"
)

// mintPair generates a fresh access/refresh token pair for the given
// client and user, persists the hashes, and returns the raw values. The
// code argument back-references the authorization code the pair descends
// from, empty for other grants. familyID keeps rotated pairs in their
// original family; leave empty to start a new one.
func (s *Service) mintPair(ctx context.Context, client *Client, userID string, scopes ScopeSet, code, familyID string, accessTTL, refreshTTL time.Duration) (*TokenPair, error) {
	rawAccess, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	rawRefresh, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	access := &AccessToken{
		TokenHash: HashToken(rawAccess),
		ClientID:  client.ID,
		UserID:    userID,
		Scopes:    scopes,
		Code:      code,
		ExpiresAt: now.Add(accessTTL),
	}
	refresh := &RefreshToken{
		TokenHash: HashToken(rawRefresh),
		ClientID:  client.ID,
		UserID:    userID,
		Scopes:    scopes,
		FamilyID:  familyID,
		Code:      code,
		ExpiresAt: now.Add(refreshTTL),
	}

	err = s.withRetry(ctx, func() error {
		return s.tokens.CreatePair(ctx, access, refresh)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting token pair: %w", err)
	}

	return &TokenPair{
		AccessToken:      rawAccess,
		TokenType:        "Bearer",
		ExpiresIn:        int64(accessTTL.Seconds()),
		RefreshToken:     rawRefresh,
		RefreshExpiresIn: int64(refreshTTL.Seconds()),
		Scope:            scopes,
	}, nil
}

// mintAccessOnly generates and persists a standalone access token with no
// refresh token, no family and no user. Used by client_credentials.
func (s *Service) mintAccessOnly(ctx context.Context, client *Client, scopes ScopeSet, accessTTL time.Duration) (*TokenPair, error) {
	rawAccess, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	access := &AccessToken{
		TokenHash: HashToken(rawAccess),
		ClientID:  client.ID,
		Scopes:    scopes,
		ExpiresAt: s.now().Add(accessTTL),
	}

	err = s.withRetry(ctx, func() error {
		return s.tokens.CreateAccess(ctx, access)
	})
	if err != nil {
		return nil, fmt.Errorf("persisting access token: %w", err)
	}

	return &TokenPair{
		AccessToken: rawAccess,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTTL.Seconds()),
		Scope:       scopes,
	}, nil
}

// rotatePair generates the successor pair during refresh rotation. The
// repository retires the old token and inserts both successors in one
// transaction.
func (s *Service) rotatePair(ctx context.Context, old *RefreshToken, scopes ScopeSet, accessTTL, refreshTTL time.Duration) (*TokenPair, error) {
	rawAccess, err := GenerateToken()
	if err != nil {
		return nil, err
	}
	rawRefresh, err := GenerateToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	access := &AccessToken{
		TokenHash: HashToken(rawAccess),
		ClientID:  old.ClientID,
		UserID:    old.UserID,
		Scopes:    scopes,
		Code:      old.Code,
		ExpiresAt: now.Add(accessTTL),
	}
	refresh := &RefreshToken{
		TokenHash: HashToken(rawRefresh),
		ClientID:  old.ClientID,
		UserID:    old.UserID,
		Scopes:    scopes,
		FamilyID:  old.FamilyID,
		Code:      old.Code,
		ExpiresAt: now.Add(refreshTTL),
	}

	err = s.withRetry(ctx, func() error {
		return s.tokens.Rotate(ctx, old.ID, access, refresh)
	})
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      rawAccess,
		TokenType:        "Bearer",
		ExpiresIn:        int64(accessTTL.Seconds()),
		RefreshToken:     rawRefresh,
		RefreshExpiresIn: int64(refreshTTL.Seconds()),
		Scope:            scopes,
	}, nil
}
