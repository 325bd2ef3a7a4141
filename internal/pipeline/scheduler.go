package pipeline

import "time"

// Scheduler lets a tick through only when the frame timestamp has advanced
// since the last processed tick.
type Scheduler struct {
	last time.Duration
	seen bool
}

// Tick reports whether a frame stamped ts should be processed, and if so
// records ts as the last processed timestamp.
func (s *Scheduler) Tick(ts time.Duration) bool {
	if s.seen && ts == s.last {
		return false
	}
	s.last = ts
	s.seen = true
	return true
}

// Last returns the last processed timestamp.
func (s *Scheduler) Last() (time.Duration, bool) {
	return s.last, s.seen
}

// Reset forgets the last processed timestamp.
func (s *Scheduler) Reset() {
	*s = Scheduler{}
}
