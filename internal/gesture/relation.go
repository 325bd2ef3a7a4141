package gesture

import (
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/tracker"
)

// ZoomConfig tunes the two-hand zoom signal.
type ZoomConfig struct {
	// Gain scales the change in wrist distance into the zoom magnitude.
	Gain float64 `toml:"gain" validate:"gt=0"`
	// MaxDelta caps the absolute magnitude of a single zoom event.
	MaxDelta float64 `toml:"max_delta" validate:"gt=0"`
	// Deadband suppresses events whose absolute magnitude does not exceed it.
	// Zero disables it, so every two-hand tick after the first emits.
	Deadband float64 `toml:"deadband" validate:"gte=0"`
}

// DefaultZoomConfig returns a ZoomConfig with sensible default values.
func DefaultZoomConfig() ZoomConfig {
	return ZoomConfig{
		Gain:     1.0,
		MaxDelta: 0.1,
		Deadband: 0,
	}
}

// Relation derives a zoom signal from the distance between exactly two hands.
type Relation struct {
	cfg ZoomConfig
	log *zap.Logger

	havePrev bool
	prevDist float64
	prevPair [2]string
}

// NewRelation creates a Relation. A nil logger disables logging.
func NewRelation(cfg ZoomConfig, log *zap.Logger) *Relation {
	if log == nil {
		log = zap.NewNop()
	}
	return &Relation{
		cfg: cfg,
		log: log.Named("relation"),
	}
}

// Update consumes the hands seen this tick. It emits a ZoomDelta only when
// exactly two hands are present and the same pair was present last tick;
// any other hand count clears the remembered distance.
func (r *Relation) Update(hands []*tracker.State, now time.Duration) (model.GestureEvent, bool) {
	if len(hands) != 2 || hands[0] == nil || hands[1] == nil {
		r.Reset()
		return model.GestureEvent{}, false
	}

	a, b := hands[0].Latest(), hands[1].Latest()
	if a == nil || b == nil {
		r.Reset()
		return model.GestureEvent{}, false
	}

	pair := [2]string{hands[0].ID, hands[1].ID}
	sort.Strings(pair[:])
	dist := model.Distance(a.Landmarks[model.Wrist], b.Landmarks[model.Wrist])

	if !r.havePrev || pair != r.prevPair {
		r.havePrev = true
		r.prevDist = dist
		r.prevPair = pair
		return model.GestureEvent{}, false
	}

	raw := r.cfg.Gain * (dist - r.prevDist)
	r.prevDist = dist

	delta := math.Max(-r.cfg.MaxDelta, math.Min(r.cfg.MaxDelta, raw))
	if delta != raw {
		r.log.Debug("zoom delta clamped", zap.Float64("raw", raw), zap.Float64("clamped", delta))
	}
	if r.cfg.Deadband > 0 && math.Abs(delta) <= r.cfg.Deadband {
		return model.GestureEvent{}, false
	}

	return model.GestureEvent{
		Kind:      model.GestureZoomDelta,
		HandIDs:   []string{pair[0], pair[1]},
		Magnitude: delta,
		Timestamp: now,
	}, true
}

// Reset forgets the previous distance.
func (r *Relation) Reset() {
	r.havePrev = false
	r.prevDist = 0
	r.prevPair = [2]string{}
}
