package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jmbarlow/roomkit/internal/location"
)

type zoneRequest struct {
	RoomID             string `json:"room_id"`
	Name               string `json:"name"`
	Icon               string `json:"icon,omitempty"`
	Frequency          string `json:"frequency,omitempty"`
	CustomIntervalDays int    `json:"custom_interval_days,omitempty"`
}

// zoneViews derives schedule state for a batch of zones.
func zoneViews(zones []location.Zone, now time.Time) []location.ZoneView {
	views := make([]location.ZoneView, 0, len(zones))
	for i := range zones {
		views = append(views, zones[i].View(now))
	}
	return views
}

// handleListZones returns the caller's zones, optionally filtered by room.
func (s *Server) handleListZones(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	zones, err := s.zones.List(r.Context(), token.UserID, r.URL.Query().Get("room_id"))
	if err != nil {
		s.logger.Error("listing zones", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}

	views := zoneViews(zones, time.Now())
	writeJSON(w, http.StatusOK, map[string]any{
		"zones": views,
		"count": len(views),
	})
}

// handleListDueZones returns only the zones currently due for cleaning.
func (s *Server) handleListDueZones(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	zones, err := s.zones.List(r.Context(), token.UserID, r.URL.Query().Get("room_id"))
	if err != nil {
		s.logger.Error("listing zones", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}

	now := time.Now()
	due := make([]location.ZoneView, 0)
	for i := range zones {
		if zones[i].IsDue(now) {
			due = append(due, zones[i].View(now))
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"zones": due,
		"count": len(due),
	})
}

// handleCreateZone creates a zone in one of the caller's rooms.
func (s *Server) handleCreateZone(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" || req.RoomID == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "room_id and name are required")
		return
	}

	// Ownership check before the insert; the zones table itself has no
	// user column.
	if _, err := s.rooms.GetByID(r.Context(), token.UserID, req.RoomID); err != nil {
		if errors.Is(err, location.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("checking room ownership", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	zone := &location.Zone{
		RoomID:             req.RoomID,
		Name:               req.Name,
		Icon:               req.Icon,
		Frequency:          location.Frequency(req.Frequency),
		CustomIntervalDays: req.CustomIntervalDays,
	}
	if err := s.zones.Create(r.Context(), zone); err != nil {
		if errors.Is(err, location.ErrInvalidFrequency) {
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
			return
		}
		s.logger.Error("creating zone", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, zone.View(time.Now()))
}

// handleGetZone returns one zone with its schedule state.
func (s *Server) handleGetZone(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	zone, err := s.zones.GetByID(r.Context(), token.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrZoneNotFound) {
			writeNotFound(w, "zone not found")
			return
		}
		s.logger.Error("getting zone", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, zone.View(time.Now()))
}

// handleUpdateZone changes a zone's name, icon or cleaning schedule.
func (s *Server) handleUpdateZone(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	zone, err := s.zones.GetByID(r.Context(), token.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrZoneNotFound) {
			writeNotFound(w, "zone not found")
			return
		}
		s.logger.Error("getting zone", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	var req zoneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != "" {
		zone.Name = req.Name
	}
	zone.Icon = req.Icon
	if req.Frequency != "" {
		zone.Frequency = location.Frequency(req.Frequency)
	}
	if req.CustomIntervalDays != 0 {
		zone.CustomIntervalDays = req.CustomIntervalDays
	}

	if err := s.zones.Update(r.Context(), token.UserID, zone); err != nil {
		switch {
		case errors.Is(err, location.ErrInvalidFrequency):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		case errors.Is(err, location.ErrZoneNotFound):
			writeNotFound(w, "zone not found")
		default:
			s.logger.Error("updating zone", "error", err)
			writeInternalError(w, "internal server error")
		}
		return
	}

	writeJSON(w, http.StatusOK, zone.View(time.Now()))
}

// handleDeleteZone soft-deletes a zone.
func (s *Server) handleDeleteZone(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	err := s.zones.Delete(r.Context(), token.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrZoneNotFound) {
			writeNotFound(w, "zone not found")
			return
		}
		s.logger.Error("deleting zone", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCleanZone records a cleaning for one zone.
func (s *Server) handleCleanZone(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	zone, err := s.zones.MarkCleaned(r.Context(), token.UserID, chi.URLParam(r, "id"), time.Now())
	if err != nil {
		if errors.Is(err, location.ErrZoneNotFound) {
			writeNotFound(w, "zone not found")
			return
		}
		s.logger.Error("marking zone cleaned", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, zone.View(time.Now()))
}

type bulkCleanRequest struct {
	ZoneIDs []string `json:"zone_ids"`
}

// handleCleanZonesBulk records one cleaning time across several zones.
// Zones the caller does not own are skipped, not errors.
func (s *Server) handleCleanZonesBulk(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	var req bulkCleanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.ZoneIDs) == 0 {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "zone_ids is required")
		return
	}

	count, err := s.zones.MarkCleanedBulk(r.Context(), token.UserID, req.ZoneIDs, time.Now())
	if err != nil {
		s.logger.Error("bulk marking zones cleaned", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cleaned": count})
}
