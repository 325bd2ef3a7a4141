package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/pipeline"
	"github.com/ayusman/handscene/internal/store"
)

// newTestStore creates a new Store with a temporary database for testing.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func newDispatcher(t *testing.T) *dispatch.Dispatcher {
	t.Helper()
	d, err := dispatch.New(dispatch.DefaultConfig(), nil, nil)
	require.NoError(t, err)
	return d
}

type fakePipeline struct {
	state  pipeline.State
	reason error
	stats  pipeline.Stats
	last   pipeline.TickResult
}

func (f *fakePipeline) State() pipeline.State           { return f.state }
func (f *fakePipeline) DisabledReason() error           { return f.reason }
func (f *fakePipeline) Stats() pipeline.Stats           { return f.stats }
func (f *fakePipeline) LastResult() pipeline.TickResult { return f.last }

type registrar interface {
	Register(r *mux.Router)
}

func serve(h registrar, method, path string, body interface{}) *httptest.ResponseRecorder {
	r := mux.NewRouter()
	h.Register(r)

	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStatusHandler_Status(t *testing.T) {
	p := &fakePipeline{
		state: pipeline.StateRunning,
		stats: pipeline.Stats{Processed: 42, Hands: 1},
		last: pipeline.TickResult{
			Timestamp: 1500 * time.Millisecond,
			Events:    []model.GestureEvent{{Kind: model.GesturePinch, HandIDs: []string{"hand-1"}}},
		},
	}
	h := NewStatusHandler(p, newDispatcher(t), nil, nil)

	rec := serve(h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "running", resp.State)
	assert.True(t, resp.DispatchEnabled)
	assert.Equal(t, uint64(42), resp.Stats.Processed)
	assert.Equal(t, int64(1500), resp.LastTimestamp)
	require.Len(t, resp.LastEvents, 1)
	assert.Equal(t, model.GesturePinch, resp.LastEvents[0].Kind)
	assert.Empty(t, resp.Reason)
}

func TestStatusHandler_Disabled(t *testing.T) {
	p := &fakePipeline{state: pipeline.StateDisabled, reason: errors.New("camera unavailable")}
	h := NewStatusHandler(p, newDispatcher(t), nil, nil)

	rec := serve(h, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "disabled", resp.State)
	assert.Equal(t, "camera unavailable", resp.Reason)
	assert.NotNil(t, resp.LastEvents)
}

func TestStatusHandler_SetDispatch(t *testing.T) {
	s := newTestStore(t)
	d := newDispatcher(t)
	h := NewStatusHandler(&fakePipeline{}, d, s, nil)

	rec := serve(h, http.MethodPut, "/api/dispatch", map[string]bool{"enabled": false})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, d.Enabled())

	persisted, err := s.Settings().GetBool(store.SettingDispatchEnabled, true)
	require.NoError(t, err)
	assert.False(t, persisted)

	rec = serve(h, http.MethodPut, "/api/dispatch", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, http.MethodPost, "/api/dispatch", map[string]bool{"enabled": true})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestBindingsHandler_List(t *testing.T) {
	h := NewBindingsHandler(newDispatcher(t), nil, nil)

	rec := serve(h, http.MethodGet, "/api/bindings", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Bindings []bindingResponse `json:"bindings"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Bindings, len(dispatch.DefaultBindings()))
	assert.Equal(t, "pinch", resp.Bindings[0].Kind)
	assert.Equal(t, "select", resp.Bindings[0].Command)
	assert.Equal(t, int64(250), resp.Bindings[0].CooldownMs)
}

func TestBindingsHandler_UpdateAndReset(t *testing.T) {
	s := newTestStore(t)
	d := newDispatcher(t)
	h := NewBindingsHandler(d, s, nil)

	rec := serve(h, http.MethodPut, "/api/bindings/swipe_left", map[string]interface{}{
		"command":     "rotate",
		"scale":       2.0,
		"cooldown_ms": 400,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	b, ok := d.Binding(model.GestureSwipeLeft)
	require.True(t, ok)
	assert.Equal(t, model.CommandRotate, b.Command)
	assert.Equal(t, 2.0, b.Scale)
	assert.Equal(t, 400*time.Millisecond, b.Cooldown)
	assert.True(t, b.Enabled)

	saved, err := s.Bindings().Get("swipe_left")
	require.NoError(t, err)
	assert.Equal(t, "rotate", saved.Command)
	assert.Equal(t, int64(400), saved.CooldownMs)

	rec = serve(h, http.MethodGet, "/api/bindings/swipe_left", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(h, http.MethodDelete, "/api/bindings/swipe_left", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	b, _ = d.Binding(model.GestureSwipeLeft)
	assert.Equal(t, model.CommandPan, b.Command)
	_, err = s.Bindings().Get("swipe_left")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// Resetting a binding that was never overridden is fine.
	rec = serve(h, http.MethodDelete, "/api/bindings/pinch", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestBindingsHandler_Invalid(t *testing.T) {
	h := NewBindingsHandler(newDispatcher(t), nil, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		code   int
	}{
		{"unknown command", http.MethodPut, "/api/bindings/pinch", map[string]interface{}{"command": "explode"}, http.StatusBadRequest},
		{"unknown gesture", http.MethodPut, "/api/bindings/wave", map[string]interface{}{"command": "pan"}, http.StatusBadRequest},
		{"missing command", http.MethodPut, "/api/bindings/pinch", map[string]interface{}{"scale": 2}, http.StatusBadRequest},
		{"negative cooldown", http.MethodPut, "/api/bindings/pinch", map[string]interface{}{"command": "select", "cooldown_ms": -5}, http.StatusBadRequest},
		{"get unknown", http.MethodGet, "/api/bindings/wave", nil, http.StatusNotFound},
		{"reset unknown", http.MethodDelete, "/api/bindings/wave", nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code)
		})
	}
}

func TestSessionsHandler(t *testing.T) {
	s := newTestStore(t)
	sess := &store.Session{Source: "replay"}
	require.NoError(t, s.Sessions().Create(sess))

	ts := 100 * time.Millisecond
	require.NoError(t, s.Ticks().Append(sess.ID, store.TickRecord{
		Seq:       0,
		Timestamp: ts,
		Events:    []model.GestureEvent{{Kind: model.GestureSwipeRight, HandIDs: []string{"hand-1"}, Magnitude: 0.3, Timestamp: ts}},
		Commands:  []model.ControlCommand{{Type: model.CommandPan, Source: model.GestureSwipeRight, Payload: model.CommandPayload{Delta: 0.3}, Timestamp: ts}},
	}))

	h := NewSessionsHandler(s)

	t.Run("list", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/sessions", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Sessions []sessionResponse `json:"sessions"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Sessions, 1)
		assert.Equal(t, sess.ID, resp.Sessions[0].ID)
		assert.Equal(t, 1, resp.Sessions[0].Ticks)
	})

	t.Run("events", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/sessions/"+sess.ID+"/events", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Events []store.EventRecord `json:"events"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Events, 1)
		assert.Equal(t, model.GestureSwipeRight, resp.Events[0].Kind)
	})

	t.Run("commands", func(t *testing.T) {
		rec := serve(h, http.MethodGet, "/api/sessions/"+sess.ID+"/commands", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Commands []model.ControlCommand `json:"commands"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		require.Len(t, resp.Commands, 1)
		assert.Equal(t, 0.3, resp.Commands[0].Payload.Delta)
	})

	t.Run("missing", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/sessions/nope", nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/sessions/nope/events", nil).Code)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNoContent, serve(h, http.MethodDelete, "/api/sessions/"+sess.ID, nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/api/sessions/"+sess.ID, nil).Code)
		assert.Equal(t, http.StatusNotFound, serve(h, http.MethodDelete, "/api/sessions/"+sess.ID, nil).Code)
	})
}
