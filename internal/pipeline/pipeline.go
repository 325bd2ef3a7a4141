// Package pipeline runs the frame -> landmarks -> gestures -> commands loop.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/gesture"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/tracker"
)

// Pipeline owns a frame source and a landmark provider and turns their
// output into gesture events and control commands.
//
// All gesture state is mutated on a single goroutine: the Run loop, or the
// caller of Step when the pipeline is driven manually.
type Pipeline struct {
	cfg        Config
	source     FrameSource
	provider   LandmarkProvider
	dispatcher *dispatch.Dispatcher
	log        *zap.Logger

	sched      Scheduler
	tracker    *tracker.Tracker
	classifier *gesture.Classifier
	relation   *gesture.Relation

	life sync.Mutex // serializes Start and Stop

	mu             sync.Mutex
	state          State
	disabledReason error
	last           TickResult
	observers      []Observer
	watchers       []func(State, error)
	cancel         context.CancelFunc
	done           chan struct{}

	release func()

	processed      atomic.Uint64
	skipped        atomic.Uint64
	detectFailures atomic.Uint64
	hands          atomic.Int64
}

// New creates a Pipeline in StateIdle. Nothing is opened until Start.
func New(cfg Config, source FrameSource, provider LandmarkProvider, dispatcher *dispatch.Dispatcher, log *zap.Logger) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultConfig().TickInterval
	}
	if dispatcher == nil {
		dispatcher, _ = dispatch.New(dispatch.DefaultConfig(), nil, log)
	}

	p := &Pipeline{
		cfg:        cfg,
		source:     source,
		provider:   provider,
		dispatcher: dispatcher,
		log:        log.Named("pipeline"),
		tracker:    tracker.New(cfg.Tracker, log),
		classifier: gesture.NewClassifier(cfg.Gesture, log),
		relation:   gesture.NewRelation(cfg.Zoom, log),
	}
	p.release = sync.OnceFunc(p.closeResources)
	return p
}

// Start opens the frame source and provider and launches the tick loop.
// If either fails to open the pipeline moves to StateDisabled, releases
// whatever was opened and returns the cause.
func (p *Pipeline) Start(ctx context.Context) error {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	switch p.state {
	case StateRunning:
		p.mu.Unlock()
		return ErrAlreadyStarted
	case StateStopped, StateDisabled:
		p.mu.Unlock()
		return ErrStopped
	}
	p.mu.Unlock()

	if err := p.open(); err != nil {
		p.release()
		p.setState(StateDisabled, err)
		p.log.Error("pipeline disabled", zap.Error(err))
		return fmt.Errorf("start pipeline: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()
	p.setState(StateRunning, nil)

	go p.run(runCtx, done)

	p.log.Info("pipeline started", zap.Duration("tick", p.cfg.TickInterval))
	return nil
}

func (p *Pipeline) open() error {
	if p.source == nil {
		return fmt.Errorf("no frame source")
	}
	if p.provider == nil {
		return fmt.Errorf("no landmark provider")
	}
	if err := p.source.Open(); err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}
	if o, ok := p.provider.(Opener); ok {
		if err := o.Open(); err != nil {
			return fmt.Errorf("open landmark provider: %w", err)
		}
	}
	return nil
}

// Stop cancels the tick loop and releases the source and provider. It does
// not wait for an in-flight detection. Stop is safe to call in any state
// and more than once.
func (p *Pipeline) Stop() {
	p.life.Lock()
	defer p.life.Unlock()

	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	p.release()

	if p.State() != StateDisabled {
		p.setState(StateStopped, nil)
	}
}

// closeResources runs exactly once via p.release.
func (p *Pipeline) closeResources() {
	if p.source != nil {
		if err := p.source.Close(); err != nil {
			p.log.Warn("close frame source", zap.Error(err))
		}
	}
	if p.provider != nil {
		if err := p.provider.Close(); err != nil {
			p.log.Warn("close landmark provider", zap.Error(err))
		}
	}
	p.log.Debug("resources released")
}

type detection struct {
	ts      time.Duration
	samples []model.HandSample
}

// run is the tick loop. At most one detection is outstanding; ticks that
// arrive while it runs, or whose frame has not advanced, are skipped.
// Resources are released when the loop exits for any reason.
func (p *Pipeline) run(ctx context.Context, done chan struct{}) {
	defer func() {
		p.release()
		if p.State() == StateRunning {
			p.setState(StateStopped, nil)
		}
		close(done)
	}()

	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	pending := make(chan detection, 1)
	busy := false

	for {
		select {
		case <-ctx.Done():
			return

		case d := <-pending:
			busy = false
			if ctx.Err() != nil {
				return
			}
			p.apply(ctx, d.ts, d.samples)

		case <-ticker.C:
			if busy {
				p.skipped.Add(1)
				continue
			}

			frame, err := p.source.ReadFrame()
			if err != nil {
				p.log.Debug("read frame", zap.Error(err))
				continue
			}
			ts := frame.Timestamp()
			if !p.sched.Tick(ts) {
				p.skipped.Add(1)
				frame.Close()
				continue
			}

			busy = true
			go func() {
				samples := p.detect(ctx, frame)
				frame.Close()
				pending <- detection{ts: ts, samples: samples}
			}()
		}
	}
}

// Step processes one frame synchronously and reports whether it was
// processed. It is the deterministic driver for tests and replay and must
// not be used while Run is active. The caller keeps ownership of frame.
func (p *Pipeline) Step(ctx context.Context, frame model.Frame) (TickResult, bool) {
	if s := p.State(); s != StateIdle {
		return TickResult{}, false
	}

	ts := frame.Timestamp()
	if !p.sched.Tick(ts) {
		p.skipped.Add(1)
		return TickResult{}, false
	}

	samples := p.detect(ctx, frame)
	return p.apply(ctx, ts, samples), true
}

// detect calls the provider and absorbs failures as an empty tick.
func (p *Pipeline) detect(ctx context.Context, frame model.Frame) []model.HandSample {
	if p.cfg.DetectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.DetectTimeout)
		defer cancel()
	}

	samples, err := p.provider.Detect(ctx, frame)
	if err != nil {
		p.detectFailures.Add(1)
		p.log.Debug("detection failed", zap.Duration("at", frame.Timestamp()), zap.Error(err))
		return nil
	}
	return samples
}

// apply runs tracking, classification and dispatch for one tick.
func (p *Pipeline) apply(ctx context.Context, ts time.Duration, samples []model.HandSample) TickResult {
	updated, evicted := p.tracker.Observe(samples, ts)

	res := TickResult{
		Timestamp:  ts,
		Hands:      make([]model.HandSample, 0, len(updated)),
		Evicted:    evicted,
		Dispatched: p.dispatcher.Enabled(),
	}
	for _, st := range updated {
		res.Hands = append(res.Hands, *st.Latest())
		res.Events = append(res.Events, p.classifier.Classify(st, ts)...)
	}
	if ev, ok := p.relation.Update(updated, ts); ok {
		res.Events = append(res.Events, ev)
	}

	res.Commands = p.dispatcher.Dispatch(ctx, res.Events)

	p.processed.Add(1)
	p.hands.Store(int64(p.tracker.Len()))

	p.mu.Lock()
	p.last = res
	observers := p.observers
	p.mu.Unlock()

	for _, o := range observers {
		o.ObserveTick(res)
	}
	return res
}

// Reset returns the gesture state to that of a freshly built pipeline.
func (p *Pipeline) Reset() {
	p.sched.Reset()
	p.tracker.Reset()
	p.relation.Reset()
	p.dispatcher.Reset()

	p.mu.Lock()
	p.last = TickResult{}
	p.mu.Unlock()
}

// AddObserver registers o for every processed tick.
func (p *Pipeline) AddObserver(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers[:len(p.observers):len(p.observers)], o)
}

// WatchState registers fn for lifecycle transitions.
func (p *Pipeline) WatchState(fn func(State, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.watchers = append(p.watchers, fn)
}

func (p *Pipeline) setState(s State, reason error) {
	p.mu.Lock()
	if p.state == s {
		p.mu.Unlock()
		return
	}
	p.state = s
	p.disabledReason = reason
	watchers := p.watchers
	p.mu.Unlock()

	for _, fn := range watchers {
		fn(s, reason)
	}
}

// State returns the lifecycle state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// DisabledReason returns why the pipeline is disabled, or nil.
func (p *Pipeline) DisabledReason() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disabledReason
}

// LastResult returns the most recent processed tick.
func (p *Pipeline) LastResult() TickResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// LastEvents returns the gesture events of the most recent processed tick.
func (p *Pipeline) LastEvents() []model.GestureEvent {
	return p.LastResult().Events
}

// Stats returns the running counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Processed:      p.processed.Load(),
		Skipped:        p.skipped.Load(),
		DetectFailures: p.detectFailures.Load(),
		Hands:          int(p.hands.Load()),
	}
}

// Dispatcher returns the dispatcher commands flow through.
func (p *Pipeline) Dispatcher() *dispatch.Dispatcher {
	return p.dispatcher
}

// SetDispatchEnabled toggles between dispatching and visualization-only.
func (p *Pipeline) SetDispatchEnabled(enabled bool) {
	p.dispatcher.SetEnabled(enabled)
}
