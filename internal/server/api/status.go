package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/pipeline"
	"github.com/ayusman/handscene/internal/store"
)

// Pipeline is the read side of a running pipeline.
type Pipeline interface {
	State() pipeline.State
	DisabledReason() error
	Stats() pipeline.Stats
	LastResult() pipeline.TickResult
}

// StatusHandler reports pipeline health and toggles dispatch.
type StatusHandler struct {
	pipeline   Pipeline
	dispatcher *dispatch.Dispatcher
	store      *store.Store
	log        *zap.Logger
}

// NewStatusHandler creates a StatusHandler. The store is optional; without
// it the dispatch toggle is not persisted.
func NewStatusHandler(p Pipeline, d *dispatch.Dispatcher, s *store.Store, log *zap.Logger) *StatusHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &StatusHandler{pipeline: p, dispatcher: d, store: s, log: log.Named("api")}
}

// Register mounts the handler's routes on r.
func (h *StatusHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/status", h.status).Methods(http.MethodGet)
	r.HandleFunc("/api/dispatch", h.setDispatch).Methods(http.MethodPut)
}

type statusResponse struct {
	State           string               `json:"state"`
	Reason          string               `json:"reason,omitempty"`
	DispatchEnabled bool                 `json:"dispatch_enabled"`
	Stats           pipeline.Stats       `json:"stats"`
	LastTimestamp   int64                `json:"last_timestamp_ms"`
	LastEvents      []model.GestureEvent `json:"last_events"`
}

// status handles GET /api/status.
func (h *StatusHandler) status(w http.ResponseWriter, r *http.Request) {
	last := h.pipeline.LastResult()
	resp := statusResponse{
		State:           h.pipeline.State().String(),
		DispatchEnabled: h.dispatcher.Enabled(),
		Stats:           h.pipeline.Stats(),
		LastTimestamp:   last.Timestamp.Milliseconds(),
		LastEvents:      last.Events,
	}
	if err := h.pipeline.DisabledReason(); err != nil {
		resp.Reason = err.Error()
	}
	if resp.LastEvents == nil {
		resp.LastEvents = []model.GestureEvent{}
	}
	writeJSON(w, http.StatusOK, resp)
}

type dispatchRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

// setDispatch handles PUT /api/dispatch.
func (h *StatusHandler) setDispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request: enabled is required")
		return
	}

	h.dispatcher.SetEnabled(*req.Enabled)

	if h.store != nil {
		if err := h.store.Settings().SetBool(store.SettingDispatchEnabled, *req.Enabled); err != nil {
			h.log.Warn("failed to persist dispatch setting", zap.Error(err))
		}
	}

	writeJSON(w, http.StatusOK, map[string]bool{"dispatch_enabled": h.dispatcher.Enabled()})
}
