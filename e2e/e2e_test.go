package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ayusman/handscene/internal/app"
	"github.com/ayusman/handscene/internal/config"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/pipeline"
	"github.com/ayusman/handscene/internal/replay"
	"github.com/ayusman/handscene/internal/server"
	"github.com/ayusman/handscene/internal/store"
	"github.com/ayusman/handscene/testdata"
)

// recordingPlugin appends every request it receives to received.jsonl in
// its own directory.
const recordingPlugin = `#!/bin/sh
cat >> received.jsonl
echo >> received.jsonl
echo '{"success":true}'
`

func pinchTicks() []replay.Tick {
	samples := testdata.PinchSequence("hand-1", []float64{0.1, 0.1, 0.1, 0.02}, 33*time.Millisecond)
	ticks := make([]replay.Tick, len(samples))
	for i, s := range samples {
		ticks[i] = replay.Tick{Timestamp: s.Timestamp, Hands: []model.HandSample{s}}
	}
	return ticks
}

func installPlugin(t *testing.T, pluginDir string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := filepath.Join(pluginDir, "recorder")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	manifest := `{"name":"recorder","version":"1.0.0","executable":"run.sh","commands":["select","zoom"]}`
	if err := os.WriteFile(filepath.Join(dir, "plugin.json"), []byte(manifest), 0o644); err != nil {
		t.Fatalf("write manifest error = %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "run.sh"), []byte(recordingPlugin), 0o755); err != nil {
		t.Fatalf("write plugin error = %v", err)
	}
	return filepath.Join(dir, "received.jsonl")
}

func testConfig(tmpDir string) config.Config {
	cfg := config.Default()
	cfg.Server.Enabled = true
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Store.Path = filepath.Join(tmpDir, "data.db")
	cfg.Plugins.Dir = filepath.Join(tmpDir, "plugins")
	cfg.Sink.Kinds = []string{"plugin"}
	cfg.Sink.Plugin = "recorder"
	return cfg
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func readRequests(t *testing.T, path string) []struct {
	Commands []model.ControlCommand `json:"commands"`
} {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open plugin output error = %v", err)
	}
	defer f.Close()

	var reqs []struct {
		Commands []model.ControlCommand `json:"commands"`
	}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var req struct {
			Commands []model.ControlCommand `json:"commands"`
		}
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			t.Fatalf("bad plugin request %q: %v", line, err)
		}
		reqs = append(reqs, req)
	}
	return reqs
}

// runSession plays ticks through a live application until all of them
// are processed and returns the recorded session ID.
func runSession(t *testing.T, a *app.App, n int) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool {
		return a.Pipeline().Stats().Processed == uint64(n)
	})
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	id := a.SessionID()
	if err := a.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	return id
}

func TestE2E_CompleteWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)
	received := installPlugin(t, cfg.Plugins.Dir)

	s, err := store.New(cfg.Store.Path)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	ticks := pinchTicks()
	application, err := app.New(cfg, s, nil, app.Options{
		Source:     replay.NewSource(ticks),
		Provider:   replay.NewProvider(ticks),
		SourceName: "e2e",
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	ts := httptest.NewServer(application.Handler())
	defer ts.Close()
	client := ts.Client()

	t.Run("HealthBeforeRun", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/health")
		if err != nil {
			t.Fatalf("health error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}
	})

	sessionID := runSession(t, application, len(ticks))

	t.Run("PluginReceivedSelect", func(t *testing.T) {
		reqs := readRequests(t, received)
		if len(reqs) != 1 {
			t.Fatalf("plugin requests = %d, want 1", len(reqs))
		}
		if len(reqs[0].Commands) != 1 {
			t.Fatalf("commands = %d, want 1", len(reqs[0].Commands))
		}
		cmd := reqs[0].Commands[0]
		if cmd.Type != model.CommandSelect || cmd.Payload.Target != "hand-1" {
			t.Errorf("command = %+v, want select on hand-1", cmd)
		}
	})

	t.Run("SessionRecorded", func(t *testing.T) {
		resp, err := client.Get(ts.URL + "/api/sessions/" + sessionID + "/commands")
		if err != nil {
			t.Fatalf("commands error = %v", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
		}

		var body struct {
			Commands []model.ControlCommand `json:"commands"`
		}
		json.NewDecoder(resp.Body).Decode(&body)
		if len(body.Commands) != 1 || body.Commands[0].Type != model.CommandSelect {
			t.Errorf("recorded commands = %+v, want one select", body.Commands)
		}
	})
}

func TestE2E_RebindThenReplay(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)
	cfg.Sink.Kinds = []string{"log"}

	s, err := store.New(cfg.Store.Path)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	ticks := pinchTicks()
	application, err := app.New(cfg, s, nil, app.Options{
		Source:   replay.NewSource(ticks),
		Provider: replay.NewProvider(ticks),
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	sessionID := runSession(t, application, len(ticks))

	// A fresh server over the same store, as after a restart.
	srv := server.New(server.Config{Store: s, Dispatcher: application.Dispatcher()})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	req, _ := http.NewRequest(http.MethodPut, ts.URL+"/api/bindings/pinch",
		strings.NewReader(`{"command":"rotate","scale":3}`))
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("rebind error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rebind status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	results, err := app.Replay(context.Background(), cfg, s, sessionID, nil)
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if len(results) != len(ticks) {
		t.Fatalf("results = %d, want %d", len(results), len(ticks))
	}
	cmds := results[len(results)-1].Commands
	if len(cmds) != 1 || cmds[0].Type != model.CommandRotate {
		t.Fatalf("replayed commands = %+v, want one rotate", cmds)
	}
	if d := cmds[0].Payload.Delta; d < 0.0599 || d > 0.0601 {
		t.Errorf("delta = %f, want 0.06", d)
	}
}

func TestE2E_VisualizeOnly(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	tmpDir := t.TempDir()
	cfg := testConfig(tmpDir)
	received := installPlugin(t, cfg.Plugins.Dir)

	s, err := store.New(cfg.Store.Path)
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	ticks := pinchTicks()
	application, err := app.New(cfg, s, nil, app.Options{
		Source:        replay.NewSource(ticks),
		Provider:      replay.NewProvider(ticks),
		VisualizeOnly: true,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}

	var pinches int
	application.Pipeline().AddObserver(pipeline.ObserverFunc(func(res pipeline.TickResult) {
		for _, ev := range res.Events {
			if ev.Kind == model.GesturePinch {
				pinches++
			}
		}
	}))

	sessionID := runSession(t, application, len(ticks))

	if pinches != 1 {
		t.Errorf("pinches seen = %d, want 1", pinches)
	}
	if _, err := os.Stat(received); !os.IsNotExist(err) {
		t.Errorf("plugin should not have been invoked, stat err = %v", err)
	}

	events, err := s.Ticks().Events(sessionID)
	if err != nil {
		t.Fatalf("Events() error = %v", err)
	}
	if len(events) != 1 {
		t.Errorf("recorded events = %d, want 1", len(events))
	}
	cmds, err := s.Ticks().Commands(sessionID)
	if err != nil {
		t.Fatalf("Commands() error = %v", err)
	}
	if len(cmds) != 0 {
		t.Errorf("recorded commands = %d, want 0", len(cmds))
	}
}
