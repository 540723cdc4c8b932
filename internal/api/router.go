package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/user/phantom/internal/db"
	"github.com/user/phantom/internal/profiles"
	"github.com/user/phantom/internal/terminal"
	"github.com/user/phantom/internal/wire"
)

// Sessions is the live session service behind the session endpoints.
type Sessions interface {
	WriteInput(id uint64, data []byte) error
	Resize(id uint64, cols, rows uint16) error
	Close(id uint64) error
	Info(id uint64) (terminal.Info, error)
	List() []terminal.Info
	Snapshot(id uint64) (wire.FullFrame, error)
}

// Creator starts sessions so that their events reach WebSocket clients.
type Creator interface {
	CreateSession(ctx context.Context, req profiles.Request) (uint64, error)
}

type handler struct {
	sessions    Sessions
	creator     Creator
	profiles    *profiles.Registry
	sessionRepo *db.SessionRepo
}

// NewRouter builds the REST API. conn and reg may be nil, in which case the
// history and profile endpoints answer 503.
func NewRouter(conn *sql.DB, sessions Sessions, creator Creator, reg *profiles.Registry, token string) http.Handler {
	handler := &handler{
		sessions: sessions,
		creator:  creator,
		profiles: reg,
	}
	if conn != nil {
		handler.sessionRepo = db.NewSessionRepo(conn)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", handler.createSession)
	mux.HandleFunc("GET /api/sessions", handler.listSessions)
	mux.HandleFunc("GET /api/sessions/{id}", handler.getSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", handler.closeSession)
	mux.HandleFunc("POST /api/sessions/{id}/input", handler.writeInput)
	mux.HandleFunc("POST /api/sessions/{id}/resize", handler.resizeSession)
	mux.HandleFunc("GET /api/sessions/{id}/screen", handler.getScreen)

	mux.HandleFunc("GET /api/profiles", handler.listProfiles)
	mux.HandleFunc("GET /api/profiles/{id}", handler.getProfile)
	mux.HandleFunc("PUT /api/profiles/{id}", handler.putProfile)
	mux.HandleFunc("DELETE /api/profiles/{id}", handler.deleteProfile)

	mux.HandleFunc("GET /api/history", handler.listHistory)
	mux.HandleFunc("GET /api/history/{id}", handler.getHistory)
	mux.HandleFunc("DELETE /api/history/{id}", handler.deleteHistory)

	wrapped := authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
	return wrapped
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}

			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}

func sessionIDParam(r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

