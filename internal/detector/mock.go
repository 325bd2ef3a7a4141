package detector

import (
	"context"
	"sync"
	"time"

	"github.com/ayusman/handscene/internal/model"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu     sync.Mutex
	hands  []model.HandSample
	script map[time.Duration][]model.HandSample
	err    error
	calls  int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{
		script: make(map[time.Duration][]model.HandSample),
	}
}

// SetHands sets the hands returned for frames without a scripted answer.
func (m *MockDetector) SetHands(hands []model.HandSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// Script sets the hands returned for the frame stamped ts.
func (m *MockDetector) Script(ts time.Duration, hands []model.HandSample) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[ts] = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect ran.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the configured hands stamped with the frame timestamp.
func (m *MockDetector) Detect(_ context.Context, frame model.Frame) ([]model.HandSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}

	ts := frame.Timestamp()
	src, ok := m.script[ts]
	if !ok {
		src = m.hands
	}

	out := make([]model.HandSample, len(src))
	for i, h := range src {
		h.Timestamp = ts
		out[i] = h
	}
	return out, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}
