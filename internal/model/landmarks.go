// Package model holds the data types shared by every stage of the gesture pipeline.
package model

import (
	"math"
	"time"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// Point3D is a normalized landmark position. X and Y are in [0,1] relative
// to the frame, Z is depth relative to the wrist.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Distance returns the Euclidean distance between two points.
func Distance(a, b Point3D) float64 {
	dx := a.X - b.X
	dy := a.Y - b.Y
	dz := a.Z - b.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point3D) Point3D {
	return Point3D{
		X: (a.X + b.X) / 2,
		Y: (a.Y + b.Y) / 2,
		Z: (a.Z + b.Z) / 2,
	}
}

// HandSample is one hand reported by the landmark provider for one frame.
// The landmark array makes the 21-point invariant part of the type; a hand
// missing from a frame is simply absent from the slice, never a zero sample.
type HandSample struct {
	// HandID is an optional identity hint from the provider. The tracker
	// assigns its own session identity when it is empty.
	HandID     string                `json:"hand_id,omitempty"`
	Handedness string                `json:"handedness,omitempty"` // "Left" or "Right"
	Score      float64               `json:"score"`
	Landmarks  [NumLandmarks]Point3D `json:"landmarks"`
	Timestamp  time.Duration         `json:"timestamp"`
}

// PinchDistance is the thumb-tip to index-tip distance.
func (s *HandSample) PinchDistance() float64 {
	return Distance(s.Landmarks[ThumbTip], s.Landmarks[IndexTip])
}

// PalmCenter is the mean of the wrist and middle-finger MCP landmarks.
func (s *HandSample) PalmCenter() Point3D {
	return Midpoint(s.Landmarks[Wrist], s.Landmarks[MiddleMCP])
}

// Frame is an opaque captured video frame. The pipeline only ever reads its
// media timestamp; providers that need pixels type-assert to their own frame type.
type Frame interface {
	Timestamp() time.Duration
	Close() error
}
