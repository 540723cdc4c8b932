package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/pty"
	"github.com/user/phantom/internal/terminal"
	"github.com/user/phantom/internal/wire"
)

// errorBody is the JSON shape of every error reply. Code is set for session
// errors so clients can branch without parsing Error.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	if data == nil || status == http.StatusNoContent {
		return
	}
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Error: message})
}

// sessionError replies with the status and code for a session service
// error.
func sessionError(w http.ResponseWriter, err error) {
	status, code := sessionErrorStatus(err)
	jsonResponse(w, status, errorBody{Error: err.Error(), Code: code})
}

func sessionErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, terminal.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, profiles.ErrNotFound):
		return http.StatusNotFound, "profile_not_found"
	case errors.Is(err, pty.ErrResizeFailed):
		return http.StatusBadRequest, "resize_failed"
	case errors.Is(err, pty.ErrSpawnFailed):
		return http.StatusUnprocessableEntity, "spawn_failed"
	case errors.Is(err, pty.ErrIO):
		return http.StatusConflict, "session_io"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

// frameResponse writes a FullFrame in its tagged wire encoding.
func frameResponse(w http.ResponseWriter, frame wire.FullFrame) {
	data, err := wire.Marshal(frame)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
