package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmbarlow/roomkit/internal/infrastructure/logging"
)

const minPasswordLen = 8

// SessionRevoker invalidates every token issued to a user. The OAuth
// token repository satisfies this.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) error
}

// Service handles account registration and credential verification.
type Service struct {
	users    UserRepository
	sessions SessionRevoker
	logger   *logging.Logger
}

// NewService creates the account service. sessions may be nil when no
// token store exists to revoke against.
func NewService(users UserRepository, sessions SessionRevoker, logger *logging.Logger) *Service {
	return &Service{users: users, sessions: sessions, logger: logger}
}

// RegisterRequest carries a new account's details.
type RegisterRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

// Validate checks the registration fields.
func (r *RegisterRequest) Validate() error {
	if r.Username == "" || len(r.Username) > 64 {
		return fmt.Errorf("username must be 1-64 characters")
	}
	if !strings.Contains(r.Email, "@") {
		return fmt.Errorf("email address is not valid")
	}
	if len(r.Password) < minPasswordLen {
		return ErrWeakPassword
	}
	return nil
}

// Register creates a new user account with a hashed password.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	hash, err := HashSecret(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	user := &User{
		Email:        strings.ToLower(req.Email),
		Username:     req.Username,
		DisplayName:  displayName,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// AuthenticateUser verifies a username (or email) and password and
// returns the user's ID. Unknown accounts and wrong passwords both
// return ErrInvalidCredentials; the password is still hashed against a
// dummy value for unknown accounts so the two cases take the same time.
func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (string, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if errors.Is(err, ErrUserNotFound) && strings.Contains(username, "@") {
		user, err = s.users.GetByEmail(ctx, strings.ToLower(username))
	}
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifySecret(password, dummyHash) //nolint:errcheck // timing equalisation only
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := VerifySecret(password, user.PasswordHash)
	if err != nil {
		return "", fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return "", ErrInvalidCredentials
	}

	return user.ID, nil
}

// GetUser returns a user's profile by ID.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.users.GetByID(ctx, id)
}

// ChangePassword verifies the current password, replaces it, and
// revokes every token issued to the user. A stolen session must not
// survive the password that ends it.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if len(next) < minPasswordLen {
		return ErrWeakPassword
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := VerifySecret(current, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	hash, err := HashSecret(next)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, hash); err != nil {
		return err
	}

	if s.sessions != nil {
		if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
			return fmt.Errorf("revoking sessions: %w", err)
		}
	}

	s.logger.Info("password changed", "user_id", userID)
	return nil
}

// dummyHash is a valid PHC string for a throwaway password. Verifying
// against it keeps unknown-account failures as slow as wrong-password
// failures.
const dummyHash = "$argon2id$v=19$m=65536,t=3,p=1$AAAAAAAAAAAAAAAAAAAAAA$vzUPTUvqJaC9TuOdxQVjr9vpqQ6rJzLMhUlAG1H1XF4"
