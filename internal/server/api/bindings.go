package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/store"
)

// BindingsHandler edits the live gesture-to-command table.
type BindingsHandler struct {
	dispatcher *dispatch.Dispatcher
	store      *store.Store
	log        *zap.Logger
}

// NewBindingsHandler creates a BindingsHandler. Changes are persisted when a
// store is given.
func NewBindingsHandler(d *dispatch.Dispatcher, s *store.Store, log *zap.Logger) *BindingsHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BindingsHandler{dispatcher: d, store: s, log: log.Named("api")}
}

// Register mounts the handler's routes on r.
func (h *BindingsHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/bindings", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/bindings/{kind}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/bindings/{kind}", h.update).Methods(http.MethodPut)
	r.HandleFunc("/api/bindings/{kind}", h.reset).Methods(http.MethodDelete)
}

type bindingResponse struct {
	Kind       string  `json:"kind"`
	Command    string  `json:"command"`
	Scale      float64 `json:"scale"`
	CooldownMs int64   `json:"cooldown_ms"`
	Enabled    bool    `json:"enabled"`
}

type updateBindingRequest struct {
	Command    string   `json:"command" validate:"required"`
	Scale      *float64 `json:"scale"`
	CooldownMs int64    `json:"cooldown_ms" validate:"gte=0"`
	Enabled    *bool    `json:"enabled"`
}

func toBindingResponse(b dispatch.Binding) bindingResponse {
	return bindingResponse{
		Kind:       string(b.Kind),
		Command:    string(b.Command),
		Scale:      b.Scale,
		CooldownMs: b.Cooldown.Milliseconds(),
		Enabled:    b.Enabled,
	}
}

// list handles GET /api/bindings.
func (h *BindingsHandler) list(w http.ResponseWriter, r *http.Request) {
	bindings := h.dispatcher.Bindings()
	resp := make([]bindingResponse, 0, len(bindings))
	for _, b := range bindings {
		resp = append(resp, toBindingResponse(b))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bindings": resp})
}

// get handles GET /api/bindings/{kind}.
func (h *BindingsHandler) get(w http.ResponseWriter, r *http.Request) {
	b, ok := h.dispatcher.Binding(model.GestureKind(mux.Vars(r)["kind"]))
	if !ok {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}
	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// update handles PUT /api/bindings/{kind}. Omitted scale keeps the current
// value and omitted enabled means true.
func (h *BindingsHandler) update(w http.ResponseWriter, r *http.Request) {
	kind := model.GestureKind(mux.Vars(r)["kind"])

	var req updateBindingRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}

	b := dispatch.Binding{
		Kind:     kind,
		Command:  model.CommandType(req.Command),
		Scale:    1,
		Cooldown: time.Duration(req.CooldownMs) * time.Millisecond,
		Enabled:  true,
	}
	if cur, ok := h.dispatcher.Binding(kind); ok {
		b.Scale = cur.Scale
	}
	if req.Scale != nil {
		b.Scale = *req.Scale
	}
	if req.Enabled != nil {
		b.Enabled = *req.Enabled
	}

	if err := h.dispatcher.SetBinding(b); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.store != nil {
		rec := &store.Binding{
			Kind:       string(b.Kind),
			Command:    string(b.Command),
			Scale:      b.Scale,
			CooldownMs: req.CooldownMs,
			Enabled:    b.Enabled,
		}
		if err := h.store.Bindings().Upsert(rec); err != nil {
			h.log.Error("failed to persist binding", zap.String("kind", string(kind)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to save binding")
			return
		}
	}

	writeJSON(w, http.StatusOK, toBindingResponse(b))
}

// reset handles DELETE /api/bindings/{kind}, restoring the default mapping.
func (h *BindingsHandler) reset(w http.ResponseWriter, r *http.Request) {
	kind := model.GestureKind(mux.Vars(r)["kind"])

	if err := h.dispatcher.ResetBinding(kind); err != nil {
		writeError(w, http.StatusNotFound, "Binding not found")
		return
	}

	if h.store != nil {
		if err := h.store.Bindings().Delete(string(kind)); err != nil && !errors.Is(err, store.ErrNotFound) {
			h.log.Error("failed to delete binding", zap.String("kind", string(kind)), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "Failed to delete binding")
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
