package capture

import (
	"context"
	"errors"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handscene/internal/model"
)

func blackFrame(ts time.Duration) *MatFrame {
	return NewMatFrame(gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3), ts)
}

func whiteFrame(ts time.Duration) *MatFrame {
	m := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	m.SetTo(gocv.NewScalar(255, 255, 255, 0))
	return NewMatFrame(m, ts)
}

type stamped time.Duration

func (s stamped) Timestamp() time.Duration { return time.Duration(s) }
func (s stamped) Close() error             { return nil }

type countingProvider struct {
	calls int
	err   error
}

func (p *countingProvider) Detect(_ context.Context, frame model.Frame) ([]model.HandSample, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []model.HandSample{{HandID: "hand-1", Score: 0.9, Timestamp: frame.Timestamp()}}, nil
}

func (p *countingProvider) Close() error { return nil }

func TestMotionDetector_Changed(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1.0)
	defer md.Close()

	f1, f2, f3 := blackFrame(0), blackFrame(time.Millisecond), whiteFrame(2*time.Millisecond)
	defer f1.Close()
	defer f2.Close()
	defer f3.Close()

	if changed, _ := md.Changed(f1); !changed {
		t.Error("first frame should count as changed")
	}
	if changed, pct := md.Changed(f2); changed {
		t.Errorf("identical frames should not count as changed, changePercent = %f", pct)
	}
	changed, pct := md.Changed(f3)
	if !changed {
		t.Errorf("black to white should count as changed, changePercent = %f", pct)
	}
	if pct < 50.0 {
		t.Errorf("changePercent = %f, expected > 50%% for black to white transition", pct)
	}

	md.Reset()
	if changed, _ := md.Changed(f3); !changed {
		t.Error("first frame after Reset should count as changed")
	}
}

func TestMotionDetector_ImagelessFrames(t *testing.T) {
	md := NewMotionDetector(1.0)
	defer md.Close()

	for i := 0; i < 3; i++ {
		if changed, _ := md.Changed(stamped(i)); !changed {
			t.Fatalf("frame %d without image should count as changed", i)
		}
	}
}

func TestMotionDetector_Close_Multiple(t *testing.T) {
	md := NewMotionDetector(1.0)
	md.Close()
	md.Close()
}

func TestMotionGate_ReusesStillFrames(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	inner := &countingProvider{}
	gate := NewMotionGate(inner, 1.0, nil)
	defer gate.Close()
	ctx := context.Background()

	frames := []*MatFrame{blackFrame(0), blackFrame(33 * time.Millisecond), whiteFrame(66 * time.Millisecond)}
	for _, f := range frames {
		defer f.Close()
	}

	if _, err := gate.Detect(ctx, frames[0]); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	hands, err := gate.Detect(ctx, frames[1])
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("still frame should not be detected, calls = %d", inner.calls)
	}
	if len(hands) != 1 || hands[0].Timestamp != 33*time.Millisecond {
		t.Errorf("cached hands = %+v, want one hand restamped to 33ms", hands)
	}
	if gate.Skipped() != 1 {
		t.Errorf("Skipped() = %d, want 1", gate.Skipped())
	}

	if _, err := gate.Detect(ctx, frames[2]); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("changed frame should be detected, calls = %d", inner.calls)
	}
}

func TestMotionGate_FailureClearsCache(t *testing.T) {
	inner := &countingProvider{err: errors.New("model crashed")}
	gate := NewMotionGate(inner, 1.0, nil)
	defer gate.Close()

	if _, err := gate.Detect(context.Background(), stamped(0)); err == nil {
		t.Fatal("expected detection error")
	}
	inner.err = nil
	if _, err := gate.Detect(context.Background(), stamped(1)); err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if inner.calls != 2 {
		t.Errorf("calls = %d, want 2", inner.calls)
	}
}
