package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/handscene/internal/gesture"
	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/tracker"
)

// Sentinel errors for lifecycle misuse.
var (
	ErrAlreadyStarted = errors.New("pipeline already started")
	ErrStopped        = errors.New("pipeline stopped")
)

// LandmarkProvider turns a frame into the hands visible in it. It may be slow
// and may fail; a failure counts as no hands for that tick.
type LandmarkProvider interface {
	Detect(ctx context.Context, frame model.Frame) ([]model.HandSample, error)
	Close() error
}

// Opener is implemented by providers that start expensive resources eagerly.
// Start calls Open so that an unavailable model disables the pipeline
// instead of failing every tick.
type Opener interface {
	Open() error
}

// FrameSource supplies timestamped frames.
type FrameSource interface {
	Open() error
	ReadFrame() (model.Frame, error)
	Close() error
}

// State is the pipeline lifecycle position.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDisabled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDisabled:
		return "disabled"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// TickResult is everything one processed tick produced.
type TickResult struct {
	Timestamp time.Duration          `json:"timestamp"`
	Hands     []model.HandSample     `json:"hands"`
	Events    []model.GestureEvent   `json:"events"`
	Commands  []model.ControlCommand `json:"commands"`
	Evicted   []string               `json:"evicted,omitempty"`
	// Dispatched is false when the tick ran in visualization-only mode.
	Dispatched bool `json:"dispatched"`
}

// Observer is notified after every processed tick. Observers run on the
// pipeline goroutine and must not block.
type Observer interface {
	ObserveTick(res TickResult)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(res TickResult)

// ObserveTick calls f.
func (f ObserverFunc) ObserveTick(res TickResult) {
	f(res)
}

// Stats are running counters for status reporting.
type Stats struct {
	Processed      uint64 `json:"processed"`
	Skipped        uint64 `json:"skipped"`
	DetectFailures uint64 `json:"detect_failures"`
	Hands          int    `json:"hands"`
}

// Config holds pipeline tuning.
type Config struct {
	// TickInterval is the display-refresh period driving Run.
	TickInterval time.Duration `toml:"tick_interval" validate:"gt=0"`
	// DetectTimeout bounds a single detection call. Zero means no bound.
	DetectTimeout time.Duration `toml:"detect_timeout" validate:"gte=0"`

	// Component tuning lives in its own config sections.
	Tracker tracker.Config     `toml:"-"`
	Gesture gesture.Config     `toml:"-"`
	Zoom    gesture.ZoomConfig `toml:"-"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		TickInterval:  time.Second / 60,
		DetectTimeout: time.Second,
		Tracker:       tracker.DefaultConfig(),
		Gesture:       gesture.DefaultConfig(),
		Zoom:          gesture.DefaultZoomConfig(),
	}
}
