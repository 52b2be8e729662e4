// Package api provides HTTP handlers for the admin endpoints.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/kiore73/telegram-ConsultOS-bot/internal/models"
)

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", map[string]interface{}{
		"questionnaires": s.registry.Names(),
	}))
}

// reloadHandler rebuilds every questionnaire cache from the definition
// source. A definition error in any questionnaire aborts the whole reload and
// the previous caches stay live.
func (s *Server) reloadHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.reloadHandler: processing reload request", "method", r.Method)
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := s.registry.Load(r.Context(), s.source); err != nil {
		slog.Error("Server.reloadHandler: reload failed, previous definitions kept", "error", err)
		if errors.Is(err, models.ErrDefinition) {
			writeJSONResponse(w, http.StatusUnprocessableEntity, models.Error(err.Error()))
			return
		}
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to reload questionnaires"))
		return
	}

	slog.Info("Server.reloadHandler: questionnaires reloaded", "count", len(s.registry.Names()))
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Questionnaires reloaded", map[string]interface{}{
		"questionnaires": s.registry.Names(),
	}))
}

type addSlotRequest struct {
	StartsAt time.Time `json:"starts_at"`
}

// slotsHandler lists open slots on GET and registers a new slot on POST.
func (s *Server) slotsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodGet:
		slots, err := s.booking.UpcomingSlots(r.Context())
		if err != nil {
			slog.Error("Server.slotsHandler: listing failed", "error", err)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list slots"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(slots))
	case http.MethodPost:
		var req addSlotRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			slog.Warn("Server.slotsHandler: failed to decode JSON", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
			return
		}
		if req.StartsAt.IsZero() {
			writeJSONResponse(w, http.StatusBadRequest, models.Error("starts_at is required"))
			return
		}
		if err := s.booking.AddSlot(r.Context(), req.StartsAt); err != nil {
			slog.Warn("Server.slotsHandler: add slot rejected", "error", err)
			writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
			return
		}
		writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Slot added", nil))
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// answersHandler exports the recorded answers of one session for the
// consultant preparing the appointment.
func (s *Server) answersHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("session query parameter is required"))
		return
	}

	answers, err := s.store.AnswersBySession(r.Context(), sessionID)
	if err != nil {
		slog.Error("Server.answersHandler: query failed", "sessionID", sessionID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load answers"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(answers))
}
