package tracker

import (
	"time"

	"github.com/ayusman/handscene/internal/model"
)

// Memory is the per-hand classifier bookkeeping. It lives on the State so
// that evicting a hand discards any half-finished gesture and cooldown with it.
type Memory struct {
	PinchPhase model.PinchPhase
	// PinchRun counts consecutive samples below the pinch threshold.
	PinchRun int
	// PinchHeld is set when a pinch fires and cleared once the distance is
	// back at or above the threshold. A held pinch cannot fire again.
	PinchHeld bool

	// Swiped reports whether LastSwipe is set. Samples at or before
	// LastSwipe never take part in a later swipe window.
	Swiped    bool
	LastSwipe time.Duration

	CooldownUntil map[model.GestureKind]time.Duration
}

// CoolingDown reports whether kind is still suppressed at now.
func (m *Memory) CoolingDown(kind model.GestureKind, now time.Duration) bool {
	until, ok := m.CooldownUntil[kind]
	return ok && now < until
}

// SetCooldown suppresses kind until the given media time.
func (m *Memory) SetCooldown(kind model.GestureKind, until time.Duration) {
	if m.CooldownUntil == nil {
		m.CooldownUntil = make(map[model.GestureKind]time.Duration)
	}
	m.CooldownUntil[kind] = until
}

// State is the rolling history of one tracked hand identity.
type State struct {
	ID       string
	LastSeen time.Duration
	Memory   Memory

	samples  []model.HandSample
	capacity int
}

func newState(id string, capacity int) *State {
	return &State{
		ID:       id,
		samples:  make([]model.HandSample, 0, capacity),
		capacity: capacity,
	}
}

// push appends a sample, dropping the oldest when the buffer is full.
func (s *State) push(sample model.HandSample) {
	if len(s.samples) >= s.capacity {
		copy(s.samples, s.samples[1:])
		s.samples = s.samples[:s.capacity-1]
	}
	s.samples = append(s.samples, sample)
}

// Len returns the number of buffered samples.
func (s *State) Len() int {
	return len(s.samples)
}

// Latest returns the newest sample, or nil if the buffer is empty.
func (s *State) Latest() *model.HandSample {
	if len(s.samples) == 0 {
		return nil
	}
	return &s.samples[len(s.samples)-1]
}

// Window returns up to the last n samples, oldest first. The slice aliases
// the buffer and is only valid until the next Observe.
func (s *State) Window(n int) []model.HandSample {
	if n <= 0 {
		return nil
	}
	if n > len(s.samples) {
		n = len(s.samples)
	}
	return s.samples[len(s.samples)-n:]
}

// PinchDistance is the thumb-index distance of the newest sample.
func (s *State) PinchDistance() float64 {
	latest := s.Latest()
	if latest == nil {
		return 0
	}
	return latest.PinchDistance()
}

// PalmCenter is the palm center of the newest sample.
func (s *State) PalmCenter() model.Point3D {
	latest := s.Latest()
	if latest == nil {
		return model.Point3D{}
	}
	return latest.PalmCenter()
}

// PalmVelocity is the palm-center displacement between the last two samples
// divided by their elapsed time, in normalized units per second.
func (s *State) PalmVelocity() model.Point3D {
	if len(s.samples) < 2 {
		return model.Point3D{}
	}
	return Velocity(&s.samples[len(s.samples)-2], &s.samples[len(s.samples)-1])
}

// Velocity is the palm-center velocity from prev to last. It is zero when
// no time separates them.
func Velocity(prev, last *model.HandSample) model.Point3D {
	dt := (last.Timestamp - prev.Timestamp).Seconds()
	if dt <= 0 {
		return model.Point3D{}
	}

	a, b := prev.PalmCenter(), last.PalmCenter()
	return model.Point3D{
		X: (b.X - a.X) / dt,
		Y: (b.Y - a.Y) / dt,
		Z: (b.Z - a.Z) / dt,
	}
}
