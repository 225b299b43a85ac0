package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jmbarlow/roomkit/internal/audit"
	"github.com/jmbarlow/roomkit/internal/auth"
	"github.com/jmbarlow/roomkit/internal/oauth"
)

type clientRequest struct {
	Name         string   `json:"name"`
	RedirectURIs []string `json:"redirect_uris"`
	GrantTypes   []string `json:"grant_types"`
	Scope        string   `json:"scope"`
	IsPublic     bool     `json:"is_public"`
}

// createdClientResponse carries the one and only disclosure of a new
// confidential client's secret. Only its hash is stored.
type createdClientResponse struct {
	oauth.Client
	ClientSecret string `json:"client_secret,omitempty"`
}

// handleListClients returns all registered OAuth clients.
func (s *Server) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.clients.List(r.Context())
	if err != nil {
		s.logger.Error("listing clients", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"clients": clients,
		"count":   len(clients),
	})
}

// handleCreateClient registers a new OAuth client. Confidential clients
// get a generated secret, returned exactly once.
func (s *Server) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "name is required")
		return
	}
	if len(req.GrantTypes) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "grant_types is required")
		return
	}

	scopes, err := oauth.ParseScopeSet(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown scope in request")
		return
	}
	if scopes.IsEmpty() {
		scopes = oauth.DefaultScopes()
	}

	client := &oauth.Client{
		Name:         req.Name,
		RedirectURIs: req.RedirectURIs,
		GrantTypes:   req.GrantTypes,
		Scopes:       scopes,
		IsPublic:     req.IsPublic,
	}

	var secret string
	if !req.IsPublic {
		secret, err = oauth.GenerateToken()
		if err != nil {
			s.logger.Error("generating client secret", "error", err)
			writeInternalError(w, "internal server error")
			return
		}
		hash, err := auth.HashSecret(secret)
		if err != nil {
			s.logger.Error("hashing client secret", "error", err)
			writeInternalError(w, "internal server error")
			return
		}
		client.SecretHash = hash
	}

	if err := s.clients.Create(r.Context(), client); err != nil {
		s.logger.Error("creating client", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, createdClientResponse{
		Client:       *client,
		ClientSecret: secret,
	})
}

// handleGetClient returns one client registration.
func (s *Server) handleGetClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, oauth.ErrClientNotFound) {
			writeNotFound(w, "client not found")
			return
		}
		s.logger.Error("getting client", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, client)
}

// handleUpdateClient changes a client's registration. The secret and
// public/confidential standing are fixed at creation.
func (s *Server) handleUpdateClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.clients.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, oauth.ErrClientNotFound) {
			writeNotFound(w, "client not found")
			return
		}
		s.logger.Error("getting client", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Name != "" {
		client.Name = req.Name
	}
	if req.RedirectURIs != nil {
		client.RedirectURIs = req.RedirectURIs
	}
	if req.GrantTypes != nil {
		client.GrantTypes = req.GrantTypes
	}
	if req.Scope != "" {
		scopes, err := oauth.ParseScopeSet(req.Scope)
		if err != nil {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown scope in request")
			return
		}
		client.Scopes = scopes
	}

	if err := s.clients.Update(r.Context(), client); err != nil {
		if errors.Is(err, oauth.ErrClientNotFound) {
			writeNotFound(w, "client not found")
			return
		}
		s.logger.Error("updating client", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, client)
}

// handleDeleteClient removes a client registration.
func (s *Server) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	err := s.clients.Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, oauth.ErrClientNotFound) {
			writeNotFound(w, "client not found")
			return
		}
		s.logger.Error("deleting client", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleListAuditLogs returns paginated security events.
func (s *Server) handleListAuditLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.Filter{
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			writeBadRequest(w, "limit must be a number")
			return
		}
		filter.Limit = n
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			writeBadRequest(w, "offset must be a number")
			return
		}
		filter.Offset = n
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
