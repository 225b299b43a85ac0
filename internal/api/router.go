package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmbarlow/roomkit/internal/oauth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// OAuth protocol endpoints. Client authentication, where an endpoint
	// needs it, happens inside the handler rather than via bearer token.
	r.Route("/oauth", func(r chi.Router) {
		r.Get("/authorize", s.handleAuthorizeForm)
		r.Post("/authorize", s.handleAuthorizeSubmit)
		r.Post("/token", s.handleToken)
		r.Post("/revoke", s.handleRevoke)
		r.Post("/introspect", s.handleIntrospect)
	})

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Account creation and first-party login (no auth required)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.bearerAuthMiddleware)

			r.Group(func(r chi.Router) {
				r.Use(s.requireUser)

				r.With(s.requireScope(oauth.ScopeUserRead)).Get("/auth/me", s.handleMe)
				r.With(s.requireScope(oauth.ScopeUserWrite)).Put("/auth/password", s.handleChangePassword)

				// Room endpoints
				r.Route("/rooms", func(r chi.Router) {
					r.With(s.requireScope(oauth.ScopeRoomsRead)).Get("/", s.handleListRooms)
					r.With(s.requireScope(oauth.ScopeRoomsWrite)).Post("/", s.handleCreateRoom)

					r.Route("/{id}", func(r chi.Router) {
						r.With(s.requireScope(oauth.ScopeRoomsRead)).Get("/", s.handleGetRoom)
						r.With(s.requireScope(oauth.ScopeRoomsWrite)).Patch("/", s.handleUpdateRoom)
						r.With(s.requireScope(oauth.ScopeRoomsWrite)).Delete("/", s.handleDeleteRoom)
					})
				})

				// Zone endpoints
				r.Route("/zones", func(r chi.Router) {
					r.With(s.requireScope(oauth.ScopeZonesRead)).Get("/", s.handleListZones)
					r.With(s.requireScope(oauth.ScopeZonesRead)).Get("/due", s.handleListDueZones)
					r.With(s.requireScope(oauth.ScopeZonesWrite)).Post("/", s.handleCreateZone)
					r.With(s.requireScope(oauth.ScopeZonesWrite)).Post("/bulk/clean", s.handleCleanZonesBulk)

					r.Route("/{id}", func(r chi.Router) {
						r.With(s.requireScope(oauth.ScopeZonesRead)).Get("/", s.handleGetZone)
						r.With(s.requireScope(oauth.ScopeZonesWrite)).Patch("/", s.handleUpdateZone)
						r.With(s.requireScope(oauth.ScopeZonesWrite)).Delete("/", s.handleDeleteZone)
						r.With(s.requireScope(oauth.ScopeZonesWrite)).Post("/clean", s.handleCleanZone)
					})
				})

				// Cleaning statistics
				r.With(s.requireScope(oauth.ScopeStatsRead)).Get("/stats", s.handleStats)
			})

			// Client administration (admin scope, no user requirement so a
			// provisioning service can run on client credentials)
			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireScope(oauth.ScopeAdmin))

				r.Route("/clients", func(r chi.Router) {
					r.Get("/", s.handleListClients)
					r.Post("/", s.handleCreateClient)
					r.Get("/{id}", s.handleGetClient)
					r.Patch("/{id}", s.handleUpdateClient)
					r.Delete("/{id}", s.handleDeleteClient)
				})

				r.Get("/audit", s.handleListAuditLogs)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
