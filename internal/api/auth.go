package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmbarlow/roomkit/internal/auth"
	"github.com/jmbarlow/roomkit/internal/oauth"
)

// handleRegister creates a new user account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "username is taken")
		case errors.Is(err, auth.ErrEmailExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "email is already registered")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
		default:
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// loginRequest is the first-party login body. It runs the direct grant
// under the hood, so the calling app identifies itself as a client.
type loginRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Scope        string `json:"scope,omitempty"`
}

// handleLogin exchanges first-party credentials for a token pair.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.oauth.Token(r.Context(), oauth.TokenRequest{
		GrantType:    oauth.GrantDirect,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Username:     req.Username,
		Password:     req.Password,
		Scope:        req.Scope,
	})
	if err != nil {
		writeTokenError(w, s.logger, err)
		return
	}

	writeTokenResponse(w, pair)
}

// handleMe returns the authenticated user's profile.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	user, err := s.auth.GetUser(r.Context(), token.UserID)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeNotFound(w, "user not found")
			return
		}
		s.logger.Error("loading user profile", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// handleChangePassword replaces the authenticated user's password after
// verifying the current one.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := s.auth.ChangePassword(r.Context(), token.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			writeUnauthorized(w, "current password is incorrect")
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "password must be at least 8 characters")
		default:
			s.logger.Error("changing password", "error", err, "user_id", token.UserID)
			writeInternalError(w, "internal server error")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
