// Package gesture turns tracked hand motion into gesture events.
package gesture

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/tracker"
)

// PinchConfig tunes pinch detection.
type PinchConfig struct {
	// Threshold is the thumb-index distance below which the hand counts as pinching.
	Threshold float64 `toml:"threshold" validate:"gt=0,lt=1"`
	// MinSamples is the buffered history a hand needs before a pinch can fire.
	MinSamples int `toml:"min_samples" validate:"gte=1"`
	// Hold is the number of consecutive below-threshold samples that fire a pinch.
	Hold     int           `toml:"hold" validate:"gte=1"`
	Cooldown time.Duration `toml:"cooldown" validate:"gte=0"`
}

// SwipeConfig tunes swipe detection.
type SwipeConfig struct {
	// Window is the number of samples the net palm displacement is measured over.
	Window int `toml:"window" validate:"gte=2"`
	// Threshold is the net horizontal displacement, in normalized frame
	// widths, that fires a swipe.
	Threshold float64       `toml:"threshold" validate:"gt=0,lte=1"`
	Cooldown  time.Duration `toml:"cooldown" validate:"gte=0"`
}

// Config holds single-hand classifier tuning.
type Config struct {
	Pinch PinchConfig `toml:"pinch"`
	Swipe SwipeConfig `toml:"swipe"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Pinch: PinchConfig{
			Threshold:  0.05,
			MinSamples: 3,
			Hold:       1,
			Cooldown:   500 * time.Millisecond,
		},
		Swipe: SwipeConfig{
			Window:    6,
			Threshold: 0.25,
			Cooldown:  600 * time.Millisecond,
		},
	}
}

// Classifier detects pinch and swipe gestures on a single hand. All of its
// memory lives on the tracker.State, so one Classifier serves every hand.
type Classifier struct {
	cfg Config
	log *zap.Logger
}

// NewClassifier creates a Classifier. A nil logger disables logging.
func NewClassifier(cfg Config, log *zap.Logger) *Classifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Classifier{
		cfg: cfg,
		log: log.Named("classifier"),
	}
}

// Config returns the classifier tuning.
func (c *Classifier) Config() Config {
	return c.cfg
}

// Classify advances the gesture state of st after its newest sample was
// appended and returns the events fired at now, pinch before swipe.
func (c *Classifier) Classify(st *tracker.State, now time.Duration) []model.GestureEvent {
	if st == nil || st.Len() == 0 {
		return nil
	}

	var events []model.GestureEvent
	if ev, ok := c.pinch(st, now); ok {
		events = append(events, ev)
	}
	if ev, ok := c.swipe(st, now); ok {
		events = append(events, ev)
	}
	return events
}

// pinch runs the Idle -> Pinching -> Cooldown -> Idle machine. Pinching is
// left as soon as the event is emitted. Cooldown always ends after
// Cooldown, but a pinch fires again only after the fingers have opened.
func (c *Classifier) pinch(st *tracker.State, now time.Duration) (model.GestureEvent, bool) {
	m := &st.Memory
	cfg := c.cfg.Pinch

	dist := st.PinchDistance()
	closed := dist < cfg.Threshold
	if !closed {
		m.PinchHeld = false
	}

	if m.PinchPhase == model.PinchCooldown {
		if m.CoolingDown(model.GesturePinch, now) {
			return model.GestureEvent{}, false
		}
		m.PinchPhase = model.PinchIdle
		m.PinchRun = 0
	}

	if closed && !m.PinchHeld {
		m.PinchRun++
	} else {
		m.PinchRun = 0
	}

	if st.Len() < cfg.MinSamples || m.PinchRun < cfg.Hold {
		return model.GestureEvent{}, false
	}

	m.PinchPhase = model.PinchPinching
	ev := model.GestureEvent{
		Kind:      model.GesturePinch,
		HandIDs:   []string{st.ID},
		Magnitude: dist,
		Timestamp: now,
	}

	m.SetCooldown(model.GesturePinch, now+cfg.Cooldown)
	m.PinchPhase = model.PinchCooldown
	m.PinchRun = 0
	m.PinchHeld = true

	c.log.Debug("pinch",
		zap.String("hand", st.ID),
		zap.Float64("distance", dist),
		zap.Duration("at", now),
	)
	return ev, true
}

// swipe measures the net palm-center displacement across the last Window
// samples by summing each step's velocity over its elapsed time. Both swipe directions share one cooldown, and samples at or
// before the previous swipe never count toward another one.
func (c *Classifier) swipe(st *tracker.State, now time.Duration) (model.GestureEvent, bool) {
	m := &st.Memory
	cfg := c.cfg.Swipe

	if m.CoolingDown(model.GestureSwipeLeft, now) || m.CoolingDown(model.GestureSwipeRight, now) {
		return model.GestureEvent{}, false
	}

	window := st.Window(cfg.Window)
	if len(window) < cfg.Window {
		return model.GestureEvent{}, false
	}
	first, last := &window[0], &window[len(window)-1]
	if m.Swiped && first.Timestamp <= m.LastSwipe {
		return model.GestureEvent{}, false
	}

	dx := travel(window)
	if math.Abs(dx) <= cfg.Threshold {
		return model.GestureEvent{}, false
	}

	kind := model.GestureSwipeRight
	if dx < 0 {
		kind = model.GestureSwipeLeft
	}

	m.Swiped = true
	m.LastSwipe = last.Timestamp
	m.SetCooldown(model.GestureSwipeLeft, now+cfg.Cooldown)
	m.SetCooldown(model.GestureSwipeRight, now+cfg.Cooldown)

	c.log.Debug("swipe",
		zap.String("hand", st.ID),
		zap.String("kind", string(kind)),
		zap.Float64("dx", dx),
	)
	return model.GestureEvent{
		Kind:      kind,
		HandIDs:   []string{st.ID},
		Magnitude: dx,
		Timestamp: now,
	}, true
}

// travel integrates the horizontal palm velocity across samples.
func travel(samples []model.HandSample) float64 {
	var dx float64
	for i := 1; i < len(samples); i++ {
		prev, cur := &samples[i-1], &samples[i]
		dx += tracker.Velocity(prev, cur).X * (cur.Timestamp - prev.Timestamp).Seconds()
	}
	return dx
}
