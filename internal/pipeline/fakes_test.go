package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/handscene/internal/model"
)

type fakeFrame struct {
	ts time.Duration
}

func (f fakeFrame) Timestamp() time.Duration { return f.ts }
func (f fakeFrame) Close() error             { return nil }

// fakeSource hands out frames 10ms of media time apart, or the same frame
// forever when frozen.
type fakeSource struct {
	openErr error
	frozen  bool

	mu     sync.Mutex
	ts     time.Duration
	opens  int
	closes int
}

func (s *fakeSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	return s.openErr
}

func (s *fakeSource) ReadFrame() (model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.frozen {
		s.ts += 10 * time.Millisecond
	}
	return fakeFrame{ts: s.ts}, nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// fakeProvider returns scripted hands per timestamp, or a fixed error.
type fakeProvider struct {
	hands   map[time.Duration][]model.HandSample
	err     error
	openErr error
	delay   time.Duration

	calls       atomic.Int64
	inFlight    atomic.Int64
	maxInFlight atomic.Int64
	closes      atomic.Int64
}

func (p *fakeProvider) Open() error { return p.openErr }

func (p *fakeProvider) Detect(ctx context.Context, frame model.Frame) ([]model.HandSample, error) {
	p.calls.Add(1)
	n := p.inFlight.Add(1)
	defer p.inFlight.Add(-1)
	for {
		m := p.maxInFlight.Load()
		if n <= m || p.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.err != nil {
		return nil, p.err
	}
	return p.hands[frame.Timestamp()], nil
}

func (p *fakeProvider) Close() error {
	p.closes.Add(1)
	return nil
}

var errModel = errors.New("model crashed")
