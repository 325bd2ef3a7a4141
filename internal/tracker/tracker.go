// Package tracker keeps a short rolling landmark history per hand identity.
package tracker

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
)

// Config holds tracker tuning.
type Config struct {
	// BufferSize is the number of samples kept per hand.
	BufferSize int `toml:"buffer_size" validate:"gte=2,lte=120"`
	// GraceWindow is how long a hand may go unseen before its state is dropped.
	GraceWindow time.Duration `toml:"grace_window" validate:"gt=0"`
	// MatchRadius is the largest wrist movement between sightings that still
	// counts as the same hand.
	MatchRadius float64 `toml:"match_radius" validate:"gt=0"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		BufferSize:  10,
		GraceWindow: 300 * time.Millisecond,
		MatchRadius: 0.2,
	}
}

// Tracker resolves per-frame hand samples to stable session identities.
// It is not safe for concurrent use; the pipeline drives it from one goroutine.
type Tracker struct {
	cfg    Config
	states []*State // creation order
	nextID int
	log    *zap.Logger
}

// New creates a Tracker. A nil logger disables logging.
func New(cfg Config, log *zap.Logger) *Tracker {
	if cfg.BufferSize < 2 {
		cfg.BufferSize = DefaultConfig().BufferSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Tracker{
		cfg: cfg,
		log: log.Named("tracker"),
	}
}

// Observe evicts expired hands, assigns this tick's samples to hand states
// (creating new ones as needed) and returns the updated states in sample
// order together with the IDs evicted this tick. Buffered samples carry the
// resolved identity in HandID.
func (t *Tracker) Observe(samples []model.HandSample, now time.Duration) (updated []*State, evicted []string) {
	evicted = t.expire(now)

	assigned := t.assign(samples)
	updated = make([]*State, len(samples))
	for i, sample := range samples {
		st := assigned[i]
		if st == nil {
			st = t.create(sample.HandID)
		}
		if sample.Timestamp == 0 {
			sample.Timestamp = now
		}
		sample.HandID = st.ID
		st.push(sample)
		st.LastSeen = now
		updated[i] = st
	}

	return updated, evicted
}

// expire drops states that have not been seen for longer than the grace window.
func (t *Tracker) expire(now time.Duration) []string {
	var evicted []string
	kept := t.states[:0]
	for _, st := range t.states {
		if now-st.LastSeen > t.cfg.GraceWindow {
			evicted = append(evicted, st.ID)
			t.log.Debug("hand evicted",
				zap.String("hand", st.ID),
				zap.Duration("unseen", now-st.LastSeen),
			)
			continue
		}
		kept = append(kept, st)
	}
	for i := len(kept); i < len(t.states); i++ {
		t.states[i] = nil
	}
	t.states = kept
	return evicted
}

type candidate struct {
	sample int
	state  int
	dist   float64
}

// assign matches samples to existing states. Provider identity hints win;
// the rest are matched greedily by smallest wrist distance within MatchRadius.
func (t *Tracker) assign(samples []model.HandSample) []*State {
	assigned := make([]*State, len(samples))
	claimed := make([]bool, len(t.states))

	for i, sample := range samples {
		if sample.HandID == "" {
			continue
		}
		for j, st := range t.states {
			if !claimed[j] && st.ID == sample.HandID {
				assigned[i] = st
				claimed[j] = true
				break
			}
		}
	}

	var candidates []candidate
	for i, sample := range samples {
		if sample.HandID != "" {
			continue
		}
		for j, st := range t.states {
			if claimed[j] {
				continue
			}
			latest := st.Latest()
			if latest == nil {
				continue
			}
			d := model.Distance(latest.Landmarks[model.Wrist], sample.Landmarks[model.Wrist])
			if d <= t.cfg.MatchRadius {
				candidates = append(candidates, candidate{sample: i, state: j, dist: d})
			}
		}
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].dist < candidates[b].dist
	})

	for _, c := range candidates {
		if assigned[c.sample] != nil || claimed[c.state] {
			continue
		}
		assigned[c.sample] = t.states[c.state]
		claimed[c.state] = true
	}

	return assigned
}

func (t *Tracker) create(hint string) *State {
	id := hint
	for id == "" || t.Get(id) != nil {
		t.nextID++
		id = fmt.Sprintf("hand-%d", t.nextID)
	}
	st := newState(id, t.cfg.BufferSize)
	t.states = append(t.states, st)
	t.log.Debug("hand acquired", zap.String("hand", id))
	return st
}

// Get returns the state for id, or nil.
func (t *Tracker) Get(id string) *State {
	for _, st := range t.states {
		if st.ID == id {
			return st
		}
	}
	return nil
}

// States returns the live hand states in creation order.
func (t *Tracker) States() []*State {
	out := make([]*State, len(t.states))
	copy(out, t.states)
	return out
}

// Len returns the number of live hand states.
func (t *Tracker) Len() int {
	return len(t.states)
}

// Reset forgets every hand.
func (t *Tracker) Reset() {
	t.states = nil
	t.nextID = 0
}
