package api

import (
	"net/http"

	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/terminal"
	"github.com/user/phantom/internal/wire"
)

type inputRequest struct {
	Data string `json:"data"`
}

type resizeRequest struct {
	Cols int `json:"cols"`
	Rows int `json:"rows"`
}

type screenResponse struct {
	Cols  int    `json:"cols"`
	Rows  int    `json:"rows"`
	Text  string `json:"text"`
	Title string `json:"title,omitempty"`
	wire.Cursor
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req profiles.Request
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	id, err := h.creator.CreateSession(r.Context(), req)
	if err != nil {
		sessionError(w, err)
		return
	}
	info, err := h.sessions.Info(id)
	if err != nil {
		// A child that exits at once may already be gone.
		jsonResponse(w, http.StatusCreated, terminal.Info{ID: id})
		return
	}
	jsonResponse(w, http.StatusCreated, info)
}

func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	list := h.sessions.List()
	if list == nil {
		list = []terminal.Info{}
	}
	jsonResponse(w, http.StatusOK, list)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	info, err := h.sessions.Info(id)
	if err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, info)
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.sessions.Close(id); err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) writeInput(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Data == "" {
		jsonError(w, http.StatusBadRequest, "data is required")
		return
	}
	if err := h.sessions.WriteInput(id, []byte(req.Data)); err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) resizeSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req resizeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Cols < 0 || req.Rows < 0 || req.Cols > 0xffff || req.Rows > 0xffff {
		jsonError(w, http.StatusBadRequest, "cols and rows must be between 1 and 65535")
		return
	}
	if err := h.sessions.Resize(id, uint16(req.Cols), uint16(req.Rows)); err != nil {
		sessionError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

// getScreen returns the current screen as text, or as a FullFrame event
// when format=frame.
func (h *handler) getScreen(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		jsonError(w, http.StatusBadRequest, "invalid session id")
		return
	}
	frame, err := h.sessions.Snapshot(id)
	if err != nil {
		sessionError(w, err)
		return
	}

	if r.URL.Query().Get("format") == "frame" {
		frameResponse(w, frame)
		return
	}

	text, err := frame.Text()
	if err != nil {
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := screenResponse{Cols: frame.Cols, Rows: frame.Rows, Text: text, Cursor: frame.Cursor}
	if info, err := h.sessions.Info(id); err == nil {
		resp.Title = info.Title
	}
	jsonResponse(w, http.StatusOK, resp)
}
