package api

import (
	"errors"
	"net/http"
	"os"

	"github.com/user/phantom/internal/profiles"
)

func (h *handler) listProfiles(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		jsonError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}
	jsonResponse(w, http.StatusOK, h.profiles.List())
}

func (h *handler) getProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		jsonError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}
	p, ok := h.profiles.Get(r.PathValue("id"))
	if !ok {
		jsonError(w, http.StatusNotFound, "profile not found")
		return
	}
	jsonResponse(w, http.StatusOK, p)
}

func (h *handler) putProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		jsonError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}
	var p profiles.Profile
	if err := decodeJSON(r, &p); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	id := r.PathValue("id")
	if p.ID != "" && p.ID != id {
		jsonError(w, http.StatusBadRequest, "profile id does not match path")
		return
	}
	p.ID = id
	if err := h.profiles.Save(&p); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	saved, _ := h.profiles.Get(id)
	jsonResponse(w, http.StatusOK, saved)
}

func (h *handler) deleteProfile(w http.ResponseWriter, r *http.Request) {
	if h.profiles == nil {
		jsonError(w, http.StatusServiceUnavailable, "profiles are not configured")
		return
	}
	if err := h.profiles.Delete(r.PathValue("id")); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			jsonError(w, http.StatusNotFound, "profile not found")
			return
		}
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
