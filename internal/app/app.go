// Package app wires the gesture pipeline, its sinks, persistence and the
// HTTP surface into one runnable application.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/capture"
	"github.com/ayusman/handscene/internal/config"
	"github.com/ayusman/handscene/internal/detector"
	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/pipeline"
	"github.com/ayusman/handscene/internal/plugin"
	"github.com/ayusman/handscene/internal/server"
	"github.com/ayusman/handscene/internal/sink"
	"github.com/ayusman/handscene/internal/store"
)

// Options replace the parts of the application that normally come from
// hardware. Zero values select the configured camera and detector.
type Options struct {
	Source   pipeline.FrameSource
	Provider pipeline.LandmarkProvider
	// SourceName labels recorded sessions. Defaults to "camera".
	SourceName string
	// VisualizeOnly starts with dispatch off regardless of saved settings.
	VisualizeOnly bool
}

// App is the running application.
type App struct {
	cfg   config.Config
	store *store.Store
	opts  Options
	log   *zap.Logger

	dispatcher *dispatch.Dispatcher
	pipeline   *pipeline.Pipeline
	events     *server.EventsHub
	server     *server.Server
	closers    []io.Closer

	mu       sync.Mutex
	recorder *store.Recorder
	closed   bool
}

// New builds the application from cfg. st may be nil, in which case
// nothing is persisted and the session routes are not served.
func New(cfg config.Config, st *store.Store, log *zap.Logger, opts Options) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.SourceName == "" {
		opts.SourceName = "camera"
	}

	a := &App{
		cfg:   cfg,
		store: st,
		opts:  opts,
		log:   log.Named("app"),
	}

	target, closers, err := buildSink(cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = closers

	dcfg, err := dispatchConfig(cfg.Dispatch, st, a.log)
	if err != nil {
		a.closeSinks()
		return nil, err
	}
	if opts.VisualizeOnly {
		dcfg.Enabled = false
	}
	a.dispatcher, err = dispatch.New(dcfg, target, log)
	if err != nil {
		a.closeSinks()
		return nil, fmt.Errorf("build dispatcher: %w", err)
	}

	source := opts.Source
	if source == nil {
		if cfg.Camera.Synthetic {
			source = capture.NewSynthetic(cfg.Camera)
		} else {
			source = capture.NewCamera(cfg.Camera)
		}
	}
	provider := opts.Provider
	if provider == nil {
		provider = detector.New(cfg.Detector, log)
		if opts.Source == nil && cfg.Camera.MotionGate > 0 {
			provider = capture.NewMotionGate(provider, cfg.Camera.MotionGate, log)
		}
	}
	a.pipeline = pipeline.New(cfg.PipelineConfig(), source, provider, a.dispatcher, log)

	if cfg.Server.Enabled {
		a.events = server.NewEventsHub(log)
		a.pipeline.AddObserver(a.events)
		a.server = server.New(server.Config{
			StaticDir:  cfg.Server.StaticDir,
			Store:      st,
			Pipeline:   a.pipeline,
			Dispatcher: a.dispatcher,
			Events:     a.events,
			Log:        log,
		})
	}

	a.pipeline.WatchState(func(s pipeline.State, reason error) {
		if reason != nil {
			a.log.Warn("pipeline state", zap.Stringer("state", s), zap.Error(reason))
			return
		}
		a.log.Info("pipeline state", zap.Stringer("state", s))
	})

	return a, nil
}

// buildSink assembles the configured command sinks. The returned closers
// release connections held by the sinks.
func buildSink(cfg config.Config, log *zap.Logger) (dispatch.Sink, []io.Closer, error) {
	var (
		sinks   sink.Multi
		closers []io.Closer
	)

	for _, kind := range cfg.Sink.Kinds {
		switch kind {
		case "log":
			sinks = append(sinks, sink.NewLogSink(log))

		case "plugin":
			mgr := plugin.NewManager(cfg.Plugins.Dir, log)
			if err := mgr.Discover(); err != nil {
				log.Warn("plugin discovery failed", zap.String("dir", cfg.Plugins.Dir), zap.Error(err))
			}
			var raw json.RawMessage
			if len(cfg.Plugins.Config) > 0 {
				b, err := json.Marshal(cfg.Plugins.Config)
				if err != nil {
					return nil, closers, fmt.Errorf("encode plugin config: %w", err)
				}
				raw = b
			}
			exec := plugin.NewExecutor(time.Duration(cfg.Plugins.TimeoutMs) * time.Millisecond)
			sinks = append(sinks, plugin.NewSink(mgr, exec, cfg.Sink.Plugin, raw, log))

		case "nats":
			ns, err := sink.NewNATSSink(cfg.Sink.NATSURL, cfg.Sink.NATSSubject, log)
			if err != nil {
				closeAll(closers, log)
				return nil, nil, err
			}
			sinks = append(sinks, ns)
			closers = append(closers, ns)

		default:
			closeAll(closers, log)
			return nil, nil, fmt.Errorf("%w: unknown sink %q", config.ErrInvalid, kind)
		}
	}

	switch len(sinks) {
	case 0:
		return nil, closers, nil
	case 1:
		return sinks[0], closers, nil
	}
	return sinks, closers, nil
}

// dispatchConfig layers persisted state over the file config: saved binding
// overrides win over configured ones and the saved dispatch toggle wins over
// the configured default.
func dispatchConfig(cfg dispatch.Config, st *store.Store, log *zap.Logger) (dispatch.Config, error) {
	if st == nil {
		return cfg, nil
	}

	saved, err := st.Bindings().List()
	if err != nil {
		return cfg, fmt.Errorf("load bindings: %w", err)
	}
	bindings := make([]dispatch.Binding, 0, len(cfg.Bindings)+len(saved))
	bindings = append(bindings, cfg.Bindings...)
	for _, sb := range saved {
		b := FromStored(sb)
		if err := b.Validate(); err != nil {
			log.Warn("ignoring saved binding", zap.String("kind", sb.Kind), zap.Error(err))
			continue
		}
		bindings = append(bindings, b)
	}
	cfg.Bindings = bindings

	enabled, err := st.Settings().GetBool(store.SettingDispatchEnabled, cfg.Enabled)
	if err != nil {
		return cfg, fmt.Errorf("load dispatch setting: %w", err)
	}
	cfg.Enabled = enabled
	return cfg, nil
}

// FromStored converts a persisted override into a dispatcher binding.
func FromStored(b *store.Binding) dispatch.Binding {
	return dispatch.Binding{
		Kind:     model.GestureKind(b.Kind),
		Command:  model.CommandType(b.Command),
		Scale:    b.Scale,
		Cooldown: time.Duration(b.CooldownMs) * time.Millisecond,
		Enabled:  b.Enabled,
	}
}

// Run starts recording and the pipeline, then serves the API until ctx is
// done. A pipeline that cannot start leaves the application running in a
// degraded state so the failure stays visible through status.
func (a *App) Run(ctx context.Context) error {
	if err := a.startRecording(); err != nil {
		return err
	}

	if err := a.pipeline.Start(ctx); err != nil {
		a.log.Error("running without gesture input", zap.Error(err))
	}

	if a.server == nil {
		<-ctx.Done()
		return nil
	}
	return a.server.ListenAndServe(ctx, a.cfg.Server.Addr)
}

func (a *App) startRecording() error {
	if a.store == nil || !a.cfg.Store.Record {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorder != nil {
		return nil
	}

	rec, err := store.NewRecorder(a.store, a.opts.SourceName, a.cfg.Store.RecordBuffer, a.log)
	if err != nil {
		return fmt.Errorf("start recording: %w", err)
	}
	a.recorder = rec
	a.pipeline.AddObserver(pipeline.ObserverFunc(func(res pipeline.TickResult) {
		rec.Record(store.TickRecord{
			Timestamp: res.Timestamp,
			Hands:     res.Hands,
			Events:    res.Events,
			Commands:  res.Commands,
		})
	}))
	return nil
}

// Close stops the pipeline, finishes the recorded session and releases the
// sinks. It is safe to call more than once.
func (a *App) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	rec := a.recorder
	a.mu.Unlock()

	a.pipeline.Stop()

	var errs []error
	if rec != nil {
		if err := rec.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.events != nil {
		a.events.Close()
	}
	errs = append(errs, a.closeSinks())
	return errors.Join(errs...)
}

func (a *App) closeSinks() error {
	return closeAll(a.closers, a.log)
}

func closeAll(closers []io.Closer, log *zap.Logger) error {
	var errs []error
	for _, c := range closers {
		if err := c.Close(); err != nil {
			log.Warn("close sink", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetDispatchEnabled toggles dispatch and remembers the choice.
func (a *App) SetDispatchEnabled(enabled bool) error {
	a.pipeline.SetDispatchEnabled(enabled)
	if a.store == nil {
		return nil
	}
	return a.store.Settings().SetBool(store.SettingDispatchEnabled, enabled)
}

// SessionID returns the session being recorded, or "" when not recording.
func (a *App) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.recorder == nil {
		return ""
	}
	return a.recorder.SessionID()
}

// Pipeline returns the gesture pipeline.
func (a *App) Pipeline() *pipeline.Pipeline {
	return a.pipeline
}

// Dispatcher returns the command dispatcher.
func (a *App) Dispatcher() *dispatch.Dispatcher {
	return a.dispatcher
}

// Events returns the live tick hub, or nil when the server is disabled.
func (a *App) Events() *server.EventsHub {
	return a.events
}

// Handler returns the HTTP API, or nil when the server is disabled.
func (a *App) Handler() *server.Server {
	return a.server
}
