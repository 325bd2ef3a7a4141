// Package testdata provides deterministic hand landmark fixtures for tests.
package testdata

import (
	"time"

	"github.com/ayusman/handscene/internal/model"
)

// openPalm holds an open right hand relative to its wrist. Y grows downward.
var openPalm = [model.NumLandmarks]model.Point3D{
	model.Wrist: {X: 0, Y: 0, Z: 0},

	model.ThumbCMC: {X: 0.05, Y: -0.05, Z: 0.02},
	model.ThumbMCP: {X: 0.12, Y: -0.10, Z: 0.03},
	model.ThumbIP:  {X: 0.18, Y: -0.15, Z: 0.03},
	model.ThumbTip: {X: 0.23, Y: -0.20, Z: 0.03},

	model.IndexMCP: {X: 0.05, Y: -0.12},
	model.IndexPIP: {X: 0.07, Y: -0.25},
	model.IndexDIP: {X: 0.08, Y: -0.35},
	model.IndexTip: {X: 0.08, Y: -0.45},

	model.MiddleMCP: {X: 0, Y: -0.14},
	model.MiddlePIP: {X: 0, Y: -0.28},
	model.MiddleDIP: {X: 0, Y: -0.40},
	model.MiddleTip: {X: 0, Y: -0.52},

	model.RingMCP: {X: -0.05, Y: -0.12},
	model.RingPIP: {X: -0.07, Y: -0.25},
	model.RingDIP: {X: -0.08, Y: -0.35},
	model.RingTip: {X: -0.08, Y: -0.45},

	model.PinkyMCP: {X: -0.10, Y: -0.10},
	model.PinkyPIP: {X: -0.13, Y: -0.20},
	model.PinkyDIP: {X: -0.15, Y: -0.30},
	model.PinkyTip: {X: -0.16, Y: -0.38},
}

// OpenPalm returns an open hand with its wrist at (x, y). The palm center
// shares the wrist's X coordinate.
func OpenPalm(x, y float64) [model.NumLandmarks]model.Point3D {
	var pts [model.NumLandmarks]model.Point3D
	for i, p := range openPalm {
		pts[i] = model.Point3D{X: p.X + x, Y: p.Y + y, Z: p.Z}
	}
	return pts
}

// Pinch returns an open hand at (x, y) whose thumb tip sits dist to the
// right of the index tip.
func Pinch(x, y, dist float64) [model.NumLandmarks]model.Point3D {
	pts := OpenPalm(x, y)
	tip := pts[model.IndexTip]
	pts[model.ThumbTip] = model.Point3D{X: tip.X + dist, Y: tip.Y, Z: tip.Z}
	return pts
}

// Sample wraps landmarks into a HandSample.
func Sample(id string, pts [model.NumLandmarks]model.Point3D, ts time.Duration) model.HandSample {
	return model.HandSample{
		HandID:     id,
		Handedness: "Right",
		Score:      0.95,
		Landmarks:  pts,
		Timestamp:  ts,
	}
}

// PinchSequence returns one sample per thumb-index distance, step apart,
// with the hand held still.
func PinchSequence(id string, dists []float64, step time.Duration) []model.HandSample {
	out := make([]model.HandSample, len(dists))
	for i, d := range dists {
		out[i] = Sample(id, Pinch(0.5, 0.8, d), time.Duration(i+1)*step)
	}
	return out
}

// SwipeSequence returns one open-palm sample per palm-center X, step apart.
func SwipeSequence(id string, xs []float64, step time.Duration) []model.HandSample {
	out := make([]model.HandSample, len(xs))
	for i, x := range xs {
		out[i] = Sample(id, OpenPalm(x, 0.8), time.Duration(i+1)*step)
	}
	return out
}

// SpreadSequence returns one tick per wrist-to-wrist distance. Each tick
// holds two open hands centered on x = 0.5 without identity hints.
func SpreadSequence(dists []float64, step time.Duration) [][]model.HandSample {
	out := make([][]model.HandSample, len(dists))
	for i, d := range dists {
		ts := time.Duration(i+1) * step
		left := Sample("", OpenPalm(0.5-d/2, 0.8), ts)
		left.Handedness = "Left"
		right := Sample("", OpenPalm(0.5+d/2, 0.8), ts)
		out[i] = []model.HandSample{left, right}
	}
	return out
}
