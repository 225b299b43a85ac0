package api

import (
	"net/http"
	"time"
)

// statsResponse summarises the caller's cleaning state.
type statsResponse struct {
	Rooms          int `json:"rooms"`
	Zones          int `json:"zones"`
	DueZones       int `json:"due_zones"`
	NeverCleaned   int `json:"never_cleaned"`
	CleanedLast7d  int `json:"cleaned_last_7_days"`
	CleanedLast30d int `json:"cleaned_last_30_days"`
}

// handleStats derives cleaning statistics for the authenticated user.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	rooms, err := s.rooms.List(r.Context(), token.UserID)
	if err != nil {
		s.logger.Error("listing rooms for stats", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}
	zones, err := s.zones.List(r.Context(), token.UserID, "")
	if err != nil {
		s.logger.Error("listing zones for stats", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}

	now := time.Now()
	stats := statsResponse{Rooms: len(rooms), Zones: len(zones)}
	for i := range zones {
		z := &zones[i]
		if z.IsDue(now) {
			stats.DueZones++
		}
		if z.LastCleanedAt == nil {
			stats.NeverCleaned++
			continue
		}
		age := now.Sub(*z.LastCleanedAt)
		if age <= 7*24*time.Hour {
			stats.CleanedLast7d++
		}
		if age <= 30*24*time.Hour {
			stats.CleanedLast30d++
		}
	}

	writeJSON(w, http.StatusOK, stats)
}
