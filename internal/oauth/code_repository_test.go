package oauth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCodeRepository_CreateAndRedeem(t *testing.T) {
	db := testDB(t)
	client := seedTestClient(t, db, &Client{})
	userID := seedTestUser(t, db, "codeuser")
	repo := NewCodeRepository(db)
	ctx := context.Background()

	code := &AuthorizationCode{
		ClientID:            client.ID,
		UserID:              userID,
		RedirectURI:         "https://app.example.com/callback",
		Scopes:              NewScopeSet(ScopeRoomsRead, ScopeZonesRead),
		CodeChallenge:       "challenge-value",
		CodeChallengeMethod: ChallengeS256,
		ExpiresAt:           futureTime(),
	}
	if err := repo.Create(ctx, code); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if code.Code == "" {
		t.Fatal("Create() should generate a code value")
	}

	got, err := repo.Redeem(ctx, code.Code)
	if err != nil {
		t.Fatalf("Redeem() error = %v", err)
	}
	if !got.Redeemed {
		t.Error("claimed code should be marked redeemed")
	}
	if got.ClientID != client.ID || got.UserID != userID {
		t.Errorf("claimed code bindings = (%q, %q), want (%q, %q)",
			got.ClientID, got.UserID, client.ID, userID)
	}
	if got.CodeChallenge != "challenge-value" || got.CodeChallengeMethod != ChallengeS256 {
		t.Error("PKCE challenge should survive the round trip")
	}
	if !got.Scopes.ContainsExact(ScopeZonesRead) {
		t.Errorf("Scopes = %v, want zones:read present", got.Scopes.Sorted())
	}
}

func TestCodeRepository_RedeemUnknown(t *testing.T) {
	db := testDB(t)
	repo := NewCodeRepository(db)

	_, err := repo.Redeem(context.Background(), "no-such-code")
	if !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("Redeem() error = %v, want ErrCodeNotFound", err)
	}
}

func TestCodeRepository_ReplayRevokesDescendants(t *testing.T) {
	db := testDB(t)
	client := seedTestClient(t, db, &Client{})
	userID := seedTestUser(t, db, "replayuser")
	codes := NewCodeRepository(db)
	tokens := NewTokenRepository(db)
	ctx := context.Background()

	code := &AuthorizationCode{
		ClientID:    client.ID,
		UserID:      userID,
		RedirectURI: "https://app.example.com/callback",
		Scopes:      NewScopeSet(ScopeRoomsRead),
		ExpiresAt:   futureTime(),
	}
	if err := codes.Create(ctx, code); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := codes.Redeem(ctx, code.Code); err != nil {
		t.Fatalf("first Redeem() error = %v", err)
	}

	// Tokens minted from the first redemption, tagged with the code
	access := &AccessToken{
		TokenHash: HashToken("minted-access"),
		ClientID:  client.ID,
		UserID:    userID,
		Scopes:    NewScopeSet(ScopeRoomsRead),
		Code:      code.Code,
		ExpiresAt: futureTime(),
	}
	refresh := &RefreshToken{
		TokenHash: HashToken("minted-refresh"),
		ClientID:  client.ID,
		UserID:    userID,
		Scopes:    NewScopeSet(ScopeRoomsRead),
		Code:      code.Code,
		ExpiresAt: futureTime(),
	}
	if err := tokens.CreatePair(ctx, access, refresh); err != nil {
		t.Fatalf("CreatePair() error = %v", err)
	}

	// Unrelated token that must survive the breach revocation
	other := &AccessToken{
		TokenHash: HashToken("unrelated-access"),
		ClientID:  client.ID,
		Scopes:    NewScopeSet(ScopeRoomsRead),
		ExpiresAt: futureTime(),
	}
	if err := tokens.CreateAccess(ctx, other); err != nil {
		t.Fatalf("CreateAccess() error = %v", err)
	}

	_, err := codes.Redeem(ctx, code.Code)
	if !errors.Is(err, ErrCodeReplayed) {
		t.Fatalf("second Redeem() error = %v, want ErrCodeReplayed", err)
	}

	gotAccess, _ := tokens.GetAccessByHash(ctx, access.TokenHash)
	if !gotAccess.Revoked {
		t.Error("access token minted from the replayed code should be revoked")
	}
	gotRefresh, _ := tokens.GetRefreshByHash(ctx, refresh.TokenHash)
	if !gotRefresh.Revoked {
		t.Error("refresh token minted from the replayed code should be revoked")
	}
	gotOther, _ := tokens.GetAccessByHash(ctx, other.TokenHash)
	if gotOther.Revoked {
		t.Error("unrelated token should NOT be revoked")
	}
}

func TestCodeRepository_DeleteExpired(t *testing.T) {
	db := testDB(t)
	client := seedTestClient(t, db, &Client{})
	userID := seedTestUser(t, db, "expiryuser")
	repo := NewCodeRepository(db)
	ctx := context.Background()

	stale := &AuthorizationCode{
		ClientID:    client.ID,
		UserID:      userID,
		RedirectURI: "https://app.example.com/callback",
		Scopes:      NewScopeSet(ScopeRoomsRead),
		ExpiresAt:   time.Now().Add(-time.Minute),
	}
	fresh := &AuthorizationCode{
		ClientID:    client.ID,
		UserID:      userID,
		RedirectURI: "https://app.example.com/callback",
		Scopes:      NewScopeSet(ScopeRoomsRead),
		ExpiresAt:   futureTime(),
	}
	repo.Create(ctx, stale) //nolint:errcheck // test setup
	repo.Create(ctx, fresh) //nolint:errcheck // test setup

	count, err := repo.DeleteExpired(ctx)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if count != 1 {
		t.Errorf("DeleteExpired() = %d, want 1", count)
	}

	if _, err := repo.Redeem(ctx, stale.Code); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("expired code should be gone, got %v", err)
	}
	if _, err := repo.Redeem(ctx, fresh.Code); err != nil {
		t.Errorf("fresh code should still redeem, got %v", err)
	}
}
