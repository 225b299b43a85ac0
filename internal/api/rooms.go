package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmbarlow/roomkit/internal/location"
)

type roomRequest struct {
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
}

// handleListRooms returns the caller's rooms.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	rooms, err := s.rooms.List(r.Context(), token.UserID)
	if err != nil {
		s.logger.Error("listing rooms", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleCreateRoom creates a room owned by the caller.
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "name is required")
		return
	}

	room := &location.Room{UserID: token.UserID, Name: req.Name, Icon: req.Icon}
	if err := s.rooms.Create(r.Context(), room); err != nil {
		s.logger.Error("creating room", "error", err, "user_id", token.UserID)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// handleGetRoom returns one room by ID.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	room, err := s.rooms.GetByID(r.Context(), token.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("getting room", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// handleUpdateRoom renames a room or changes its icon.
func (s *Server) handleUpdateRoom(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	room, err := s.rooms.GetByID(r.Context(), token.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("getting room", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name != "" {
		room.Name = req.Name
	}
	room.Icon = req.Icon

	if err := s.rooms.Update(r.Context(), room); err != nil {
		if errors.Is(err, location.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("updating room", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// handleDeleteRoom soft-deletes a room and its zones.
func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	token := tokenFromContext(r.Context())

	err := s.rooms.Delete(r.Context(), token.UserID, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, location.ErrRoomNotFound) {
			writeNotFound(w, "room not found")
			return
		}
		s.logger.Error("deleting room", "error", err)
		writeInternalError(w, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
