// Package dispatch maps gesture events to scene-control commands.
package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
)

// Sink receives the ordered commands produced in one tick.
type Sink interface {
	Deliver(ctx context.Context, cmds []model.ControlCommand) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, cmds []model.ControlCommand) error

// Deliver calls f.
func (f SinkFunc) Deliver(ctx context.Context, cmds []model.ControlCommand) error {
	return f(ctx, cmds)
}

// Config holds dispatcher settings.
type Config struct {
	// Enabled forwards commands to the sink. When false gestures are still
	// recognized and visualized but nothing reaches the scene.
	Enabled bool `toml:"enabled"`
	// GlobalCooldown is the minimum media time between any two commands.
	GlobalCooldown time.Duration `toml:"global_cooldown" validate:"gte=0"`
	Bindings       []Binding     `toml:"bindings" validate:"dive"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Enabled:  true,
		Bindings: DefaultBindings(),
	}
}

// Dispatcher converts gesture events into control commands through the
// binding table and forwards them to a Sink. Bindings and the enabled flag
// may be changed from other goroutines while the pipeline runs.
type Dispatcher struct {
	mu       sync.Mutex
	bindings map[model.GestureKind]Binding
	global   time.Duration
	last     map[model.GestureKind]time.Duration
	lastAny  time.Duration
	haveAny  bool

	enabled atomic.Bool
	sink    Sink
	log     *zap.Logger
}

// New creates a Dispatcher. Bindings in cfg override the defaults per kind.
// A nil sink drops commands; a nil logger disables logging.
func New(cfg Config, sink Sink, log *zap.Logger) (*Dispatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Dispatcher{
		bindings: make(map[model.GestureKind]Binding),
		global:   cfg.GlobalCooldown,
		last:     make(map[model.GestureKind]time.Duration),
		sink:     sink,
		log:      log.Named("dispatch"),
	}
	for _, b := range DefaultBindings() {
		d.bindings[b.Kind] = b
	}
	for _, b := range cfg.Bindings {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		d.bindings[b.Kind] = b
	}
	d.enabled.Store(cfg.Enabled)
	return d, nil
}

// Enabled reports whether commands are forwarded.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// SetEnabled toggles between dispatching and visualization-only.
func (d *Dispatcher) SetEnabled(enabled bool) {
	if d.enabled.Swap(enabled) != enabled {
		d.log.Info("dispatch toggled", zap.Bool("enabled", enabled))
	}
}

// Dispatch maps events to commands in order, applies the global and
// per-kind cooldowns and delivers the surviving commands to the sink.
// It returns the commands produced. Sink failures are logged, not returned.
func (d *Dispatcher) Dispatch(ctx context.Context, events []model.GestureEvent) []model.ControlCommand {
	if !d.Enabled() || len(events) == 0 {
		return nil
	}

	cmds := d.Map(events)
	if len(cmds) == 0 || d.sink == nil {
		return cmds
	}

	if err := d.sink.Deliver(ctx, cmds); err != nil {
		d.log.Warn("sink delivery failed",
			zap.Int("commands", len(cmds)),
			zap.Error(err),
		)
	}
	return cmds
}

// Map converts events into commands and records cooldowns, without
// delivering anything. Events that would move the scene by zero are dropped.
func (d *Dispatcher) Map(events []model.GestureEvent) []model.ControlCommand {
	d.mu.Lock()
	defer d.mu.Unlock()

	var cmds []model.ControlCommand
	for _, ev := range events {
		if ev.Kind == model.GestureNone {
			continue
		}
		b, ok := d.bindings[ev.Kind]
		if !ok || !b.Enabled || b.Command == model.CommandNone {
			continue
		}
		// Zero movement must not hold off the commands behind it.
		if b.noop(ev) {
			continue
		}

		now := ev.Timestamp
		if last, ok := d.last[ev.Kind]; ok && b.Cooldown > 0 && now < last+b.Cooldown {
			d.log.Debug("command suppressed by kind cooldown", zap.String("kind", string(ev.Kind)))
			continue
		}
		if d.haveAny && d.global > 0 && now < d.lastAny+d.global {
			d.log.Debug("command suppressed by global cooldown", zap.String("kind", string(ev.Kind)))
			continue
		}

		d.last[ev.Kind] = now
		d.lastAny = now
		d.haveAny = true
		cmds = append(cmds, b.command(ev))
	}
	return cmds
}

// Bindings returns the current table in gesture order.
func (d *Dispatcher) Bindings() []Binding {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]Binding, 0, len(d.bindings))
	for _, kind := range model.GestureKinds {
		if b, ok := d.bindings[kind]; ok {
			out = append(out, b)
		}
	}
	return out
}

// Binding returns the binding for kind.
func (d *Dispatcher) Binding(kind model.GestureKind) (Binding, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.bindings[kind]
	return b, ok
}

// SetBinding replaces the binding for b.Kind.
func (d *Dispatcher) SetBinding(b Binding) error {
	if err := b.Validate(); err != nil {
		return err
	}

	d.mu.Lock()
	d.bindings[b.Kind] = b
	d.mu.Unlock()

	d.log.Info("binding updated",
		zap.String("kind", string(b.Kind)),
		zap.String("command", string(b.Command)),
		zap.Float64("scale", b.Scale),
		zap.Duration("cooldown", b.Cooldown),
		zap.Bool("enabled", b.Enabled),
	)
	return nil
}

// ResetBinding restores the stock binding for kind.
func (d *Dispatcher) ResetBinding(kind model.GestureKind) error {
	for _, b := range DefaultBindings() {
		if b.Kind == kind {
			d.mu.Lock()
			d.bindings[kind] = b
			d.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("%w: gesture %q", ErrInvalidBinding, kind)
}

// Reset clears cooldown bookkeeping.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	clear(d.last)
	d.lastAny = 0
	d.haveAny = false
}
