package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/store"
)

// SessionsHandler serves recorded sessions.
type SessionsHandler struct {
	store *store.Store
}

// NewSessionsHandler creates a SessionsHandler backed by s.
func NewSessionsHandler(s *store.Store) *SessionsHandler {
	return &SessionsHandler{store: s}
}

// Register mounts the handler's routes on r.
func (h *SessionsHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/sessions", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", h.delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/sessions/{id}/events", h.events).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}/commands", h.commands).Methods(http.MethodGet)
}

type sessionResponse struct {
	ID        string `json:"id"`
	Source    string `json:"source"`
	Ticks     int    `json:"ticks"`
	StartedAt string `json:"started_at"`
	EndedAt   string `json:"ended_at,omitempty"`
}

func toSessionResponse(s *store.Session) sessionResponse {
	resp := sessionResponse{
		ID:        s.ID,
		Source:    s.Source,
		Ticks:     s.Ticks,
		StartedAt: s.StartedAt.Format(time.RFC3339),
	}
	if s.EndedAt != nil {
		resp.EndedAt = s.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// list handles GET /api/sessions.
func (h *SessionsHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.Sessions().List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}

	resp := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		resp = append(resp, toSessionResponse(s))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": resp})
}

// lookup writes a 404 and returns false when the session does not exist.
func (h *SessionsHandler) lookup(w http.ResponseWriter, id string) (*store.Session, bool) {
	sess, err := h.store.Sessions().GetByID(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return nil, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get session")
		return nil, false
	}
	return sess, true
}

// get handles GET /api/sessions/{id}.
func (h *SessionsHandler) get(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.lookup(w, mux.Vars(r)["id"])
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// delete handles DELETE /api/sessions/{id}.
func (h *SessionsHandler) delete(w http.ResponseWriter, r *http.Request) {
	err := h.store.Sessions().Delete(mux.Vars(r)["id"])
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// events handles GET /api/sessions/{id}/events.
func (h *SessionsHandler) events(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	events, err := h.store.Ticks().Events(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events")
		return
	}
	if events == nil {
		events = []store.EventRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}

// commands handles GET /api/sessions/{id}/commands.
func (h *SessionsHandler) commands(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, ok := h.lookup(w, id); !ok {
		return
	}

	cmds, err := h.store.Ticks().Commands(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list commands")
		return
	}
	if cmds == nil {
		cmds = []model.ControlCommand{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"commands": cmds})
}
