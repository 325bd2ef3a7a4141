// Package detector provides landmark providers for the gesture pipeline.
package detector

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
)

// ErrUnsupportedFrame is returned when a detector receives a frame type it cannot decode.
var ErrUnsupportedFrame = errors.New("unsupported frame type")

// Detector defines the interface for hand detection implementations.
type Detector interface {
	// Detect returns the hands visible in frame, stamped with its timestamp.
	// Returns an empty slice if no hands are detected.
	Detect(ctx context.Context, frame model.Frame) ([]model.HandSample, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for hand detection.
type Config struct {
	// Backend selects the implementation: "mediapipe" or "mock".
	Backend string `toml:"backend" validate:"oneof=mediapipe mock"`

	// Script and Python override the MediaPipe service lookup.
	Script string `toml:"script"`
	Python string `toml:"python"`

	// MaxHands is the maximum number of hands to report.
	MaxHands int `toml:"max_hands" validate:"gte=1,lte=4"`

	// MinConfidence drops hands scored below it (0.0-1.0).
	MinConfidence float64 `toml:"min_confidence" validate:"gte=0,lte=1"`

	// IdleTimeout stops the service after this long without a frame. Zero keeps it running.
	IdleTimeout time.Duration `toml:"idle_timeout" validate:"gte=0"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Backend:       "mediapipe",
		MaxHands:      2,
		MinConfidence: 0.5,
		IdleTimeout:   30 * time.Second,
	}
}

// New returns the detector selected by cfg.Backend. The mock backend sees
// no hands until scripted.
func New(cfg Config, log *zap.Logger) Detector {
	if cfg.Backend == "mock" {
		return NewMockDetector()
	}
	return NewMediaPipeDetector(cfg, log)
}
