package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// healthHandler reports liveness and the number of active sessions.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	sessions := 0
	if s.sessions != nil {
		sessions = s.sessions.Len()
	}
	writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"status":   models.APIStatusOK,
		"sessions": sessions,
	})
}

// resultHandler returns the cached result of a user.
func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user id is required"))
		return
	}
	if s.results == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("no result for user"))
		return
	}

	res, err := s.results.GetResult(r.Context(), userID)
	if err != nil {
		slog.Error("Server.resultHandler: lookup failed", "user_id", userID, "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load result"))
		return
	}
	if res == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("no result for user"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(res))
}
