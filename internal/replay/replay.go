// Package replay feeds recorded hand samples back through a pipeline.
package replay

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/internal/pipeline"
)

// Tick is one recorded frame and the hands seen in it.
type Tick struct {
	Timestamp time.Duration      `json:"timestamp"`
	Hands     []model.HandSample `json:"hands"`
}

// Frame is a recorded frame; it carries only its timestamp.
type Frame struct {
	ts time.Duration
}

// NewFrame returns a Frame stamped ts.
func NewFrame(ts time.Duration) Frame {
	return Frame{ts: ts}
}

// Timestamp returns the recorded media time.
func (f Frame) Timestamp() time.Duration { return f.ts }

// Close is a no-op.
func (f Frame) Close() error { return nil }

// Source plays recorded ticks as frames, one per ReadFrame.
type Source struct {
	mu    sync.Mutex
	ticks []Tick
	next  int
	open  bool
}

// NewSource creates a Source over ticks.
func NewSource(ticks []Tick) *Source {
	return &Source{ticks: ticks}
}

func (s *Source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = true
	s.next = 0
	return nil
}

// ReadFrame returns the next recorded frame, or io.EOF when exhausted.
func (s *Source) ReadFrame() (model.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return nil, fmt.Errorf("replay source not open")
	}
	if s.next >= len(s.ticks) {
		return nil, io.EOF
	}
	f := NewFrame(s.ticks[s.next].Timestamp)
	s.next++
	return f, nil
}

func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	return nil
}

// Provider answers detections from the recording, keyed by timestamp.
type Provider struct {
	hands map[time.Duration][]model.HandSample
}

// NewProvider indexes ticks by timestamp. Later ticks win on duplicates.
func NewProvider(ticks []Tick) *Provider {
	p := &Provider{hands: make(map[time.Duration][]model.HandSample, len(ticks))}
	for _, t := range ticks {
		p.hands[t.Timestamp] = t.Hands
	}
	return p
}

// Detect returns a copy of the recorded hands for frame.
func (p *Provider) Detect(_ context.Context, frame model.Frame) ([]model.HandSample, error) {
	src := p.hands[frame.Timestamp()]
	out := make([]model.HandSample, len(src))
	copy(out, src)
	return out, nil
}

// Close is a no-op.
func (p *Provider) Close() error { return nil }

// Run steps p through ticks in order and returns the processed results.
// p must be idle; build it with NewSource and NewProvider over the same ticks.
func Run(ctx context.Context, p *pipeline.Pipeline, ticks []Tick) ([]pipeline.TickResult, error) {
	if s := p.State(); s != pipeline.StateIdle {
		return nil, fmt.Errorf("replay: pipeline is %s", s)
	}

	results := make([]pipeline.TickResult, 0, len(ticks))
	for _, t := range ticks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if res, ok := p.Step(ctx, NewFrame(t.Timestamp)); ok {
			results = append(results, res)
		}
	}
	return results, nil
}
