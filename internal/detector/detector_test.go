package detector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/handscene/internal/model"
	"github.com/ayusman/handscene/testdata"
)

type stubFrame time.Duration

func (f stubFrame) Timestamp() time.Duration { return time.Duration(f) }
func (f stubFrame) Close() error             { return nil }

func TestMockDetector(t *testing.T) {
	ctx := context.Background()
	m := NewMockDetector()

	hands, err := m.Detect(ctx, stubFrame(time.Second))
	require.NoError(t, err)
	assert.Empty(t, hands)

	palm := testdata.Sample("", testdata.OpenPalm(0.5, 0.8), 0)
	m.SetHands([]model.HandSample{palm})
	m.Script(2*time.Second, nil)

	hands, err = m.Detect(ctx, stubFrame(3*time.Second))
	require.NoError(t, err)
	require.Len(t, hands, 1)
	assert.Equal(t, 3*time.Second, hands[0].Timestamp)
	assert.Zero(t, palm.Timestamp, "configured sample must not be mutated")

	hands, err = m.Detect(ctx, stubFrame(2*time.Second))
	require.NoError(t, err)
	assert.Empty(t, hands)

	boom := errors.New("boom")
	m.SetError(boom)
	_, err = m.Detect(ctx, stubFrame(4*time.Second))
	assert.ErrorIs(t, err, boom)

	assert.Equal(t, 4, m.Calls())
	assert.NoError(t, m.Close())
}

func points(n int) []jsonPoint {
	pts := make([]jsonPoint, n)
	for i := range pts {
		pts[i] = jsonPoint{X: float64(i) / 100, Y: 0.5, Z: -0.01}
	}
	return pts
}

func TestToSamples(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name  string
		hands []jsonHand
		want  int
	}{
		{
			name:  "complete hand",
			hands: []jsonHand{{Points: points(21), Handedness: "Left", Score: 0.9}},
			want:  1,
		},
		{
			name:  "short hand dropped",
			hands: []jsonHand{{Points: points(20), Score: 0.9}},
			want:  0,
		},
		{
			name:  "low confidence dropped",
			hands: []jsonHand{{Points: points(21), Score: 0.2}},
			want:  0,
		},
		{
			name: "capped at max hands",
			hands: []jsonHand{
				{Points: points(21), Score: 0.9},
				{Points: points(21), Score: 0.8},
				{Points: points(21), Score: 0.7},
			},
			want: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := toSamples(tt.hands, 5*time.Second, cfg)
			assert.Len(t, got, tt.want)
			for _, s := range got {
				assert.Equal(t, 5*time.Second, s.Timestamp)
				assert.Empty(t, s.HandID)
			}
		})
	}

	got := toSamples([]jsonHand{{Points: points(21), Handedness: "Left", Score: 0.9}}, 0, cfg)
	require.Len(t, got, 1)
	assert.Equal(t, "Left", got[0].Handedness)
	assert.InDelta(t, 0.08, got[0].Landmarks[model.IndexTip].X, 1e-9)
}

func TestMediaPipe_RejectsForeignFrames(t *testing.T) {
	d := NewMediaPipeDetector(DefaultConfig(), nil)

	_, err := d.Detect(context.Background(), stubFrame(0))
	assert.ErrorIs(t, err, ErrUnsupportedFrame)
	assert.NoError(t, d.Close())
}

func TestMediaPipe_OpenMissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Script = filepath.Join(t.TempDir(), "missing.py")

	d := NewMediaPipeDetector(cfg, nil)
	err := d.Open()
	require.Error(t, err)
	assert.Contains(t, err.Error(), scriptName)
	assert.NoError(t, d.Close())
}

func TestNew_SelectsBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Backend = "mock"
	_, ok := New(cfg, nil).(*MockDetector)
	assert.True(t, ok)

	cfg.Backend = "mediapipe"
	mp, ok := New(cfg, nil).(*MediaPipeDetector)
	require.True(t, ok)
	assert.NoError(t, mp.Close())
}

type bufferCloser struct{ bytes.Buffer }

func (*bufferCloser) Close() error { return nil }

func TestService_ExchangeFraming(t *testing.T) {
	in := &bufferCloser{}
	svc := &service{
		stdin:  in,
		stdout: bufio.NewReader(strings.NewReader("{\"hands\":[]}\n{\"hands\":null}\n")),
	}

	line, err := svc.exchange([]byte("jpeg"))
	require.NoError(t, err)
	assert.Equal(t, "{\"hands\":[]}\n", string(line))
	assert.Equal(t, []byte{0, 0, 0, 4, 'j', 'p', 'e', 'g'}, in.Bytes())

	_, err = svc.exchange([]byte("x"))
	require.NoError(t, err)
	_, err = svc.exchange([]byte("y"))
	assert.Error(t, err, "service closed its output")
}

func TestLocateScript(t *testing.T) {
	script := filepath.Join(t.TempDir(), scriptName)
	require.NoError(t, os.WriteFile(script, []byte("# service\n"), 0o644))

	assert.Equal(t, script, locateScript(script))
	assert.Empty(t, locateScript(script+".missing"))
}
