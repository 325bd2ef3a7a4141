package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandSample_Features(t *testing.T) {
	var s HandSample
	s.Landmarks[ThumbTip] = Point3D{X: 0.40, Y: 0.50}
	s.Landmarks[IndexTip] = Point3D{X: 0.43, Y: 0.54}
	s.Landmarks[Wrist] = Point3D{X: 0.50, Y: 0.90}
	s.Landmarks[MiddleMCP] = Point3D{X: 0.50, Y: 0.70}

	assert.InDelta(t, 0.05, s.PinchDistance(), 1e-9)
	c := s.PalmCenter()
	assert.InDelta(t, 0.50, c.X, 1e-9)
	assert.InDelta(t, 0.80, c.Y, 1e-9)
}

func TestParseGestureKind(t *testing.T) {
	for _, k := range GestureKinds {
		got, err := ParseGestureKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}

	_, err := ParseGestureKind("wave")
	assert.Error(t, err)
}

func TestParseCommandType(t *testing.T) {
	tests := []struct {
		in      string
		want    CommandType
		wantErr bool
	}{
		{in: "pan", want: CommandPan},
		{in: "zoom", want: CommandZoom},
		{in: "select", want: CommandSelect},
		{in: "rotate", want: CommandRotate},
		{in: "none", want: CommandNone},
		{in: "fly", want: CommandNone, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommandType(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPinchPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PinchIdle.String())
	assert.Equal(t, "pinching", PinchPinching.String())
	assert.Equal(t, "cooldown", PinchCooldown.String())
	assert.Equal(t, "PinchPhase(9)", PinchPhase(9).String())
}
