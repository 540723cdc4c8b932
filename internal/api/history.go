package api

import (
	"net/http"
	"strconv"

	"github.com/user/phantom/internal/db"
)

const defaultHistoryLimit = 100

func (h *handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.sessionRepo == nil {
		jsonError(w, http.StatusServiceUnavailable, "session history is not configured")
		return
	}
	filter := db.SessionFilter{
		Status: r.URL.Query().Get("status"),
		Limit:  defaultHistoryLimit,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}
	switch filter.Status {
	case "", db.StatusRunning, db.StatusExited, db.StatusClosed, db.StatusLost:
	default:
		jsonError(w, http.StatusBadRequest, "invalid status")
		return
	}

	sessions, err := h.sessionRepo.List(r.Context(), filter)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	jsonResponse(w, http.StatusOK, sessions)
}

func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	if h.sessionRepo == nil {
		jsonError(w, http.StatusServiceUnavailable, "session history is not configured")
		return
	}
	session, err := h.sessionRepo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	jsonResponse(w, http.StatusOK, session)
}

func (h *handler) deleteHistory(w http.ResponseWriter, r *http.Request) {
	if h.sessionRepo == nil {
		jsonError(w, http.StatusServiceUnavailable, "session history is not configured")
		return
	}
	id := r.PathValue("id")
	session, err := h.sessionRepo.Get(r.Context(), id)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		jsonError(w, http.StatusNotFound, "session not found")
		return
	}
	if session.Status == db.StatusRunning {
		jsonError(w, http.StatusConflict, "session is still running")
		return
	}
	if err := h.sessionRepo.Delete(r.Context(), id); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
