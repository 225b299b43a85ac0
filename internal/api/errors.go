package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmbarlow/roomkit/internal/oauth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest     = "bad_request"
	ErrCodeNotFound       = "not_found"
	ErrCodeUnauthorized   = "unauthorised"
	ErrCodeForbidden      = "forbidden"
	ErrCodeConflict       = "conflict"
	ErrCodeInternal       = "internal_error"
	ErrCodeValidation     = "validation_error"
	ErrCodeMethodNotAllow = "method_not_allowed"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// oauthError is the RFC 6749 error response body.
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// writeOAuthError writes an OAuth protocol error. invalid_client gets a
// 401 with a WWW-Authenticate challenge; everything else is a 400.
func writeOAuthError(w http.ResponseWriter, code, description string) {
	status := http.StatusBadRequest
	if code == "invalid_client" {
		w.Header().Set("WWW-Authenticate", `Basic realm="roomkit"`)
		status = http.StatusUnauthorized
	}
	writeJSON(w, status, oauthError{Error: code, Description: description})
}

// oauthErrorCode maps lifecycle sentinels to wire error codes. Unmapped
// errors are server-side failures.
func oauthErrorCode(err error) (string, bool) {
	switch {
	case errors.Is(err, oauth.ErrInvalidClient):
		return "invalid_client", true
	case errors.Is(err, oauth.ErrInvalidGrant):
		return "invalid_grant", true
	case errors.Is(err, oauth.ErrUnauthorizedClient):
		return "unauthorized_client", true
	case errors.Is(err, oauth.ErrUnsupportedGrantType):
		return "unsupported_grant_type", true
	case errors.Is(err, oauth.ErrInvalidScope):
		return "invalid_scope", true
	case errors.Is(err, oauth.ErrPKCERequired), errors.Is(err, oauth.ErrRedirectMismatch),
		errors.Is(err, oauth.ErrClientNotFound):
		return "invalid_request", true
	default:
		return "", false
	}
}

// writeTokenError converts a token/revocation failure into its wire form.
func writeTokenError(w http.ResponseWriter, logger interface {
	Error(msg string, args ...any)
}, err error) {
	if code, ok := oauthErrorCode(err); ok {
		writeOAuthError(w, code, "")
		return
	}
	logger.Error("token endpoint failure", "error", err)
	writeInternalError(w, "internal server error")
}
