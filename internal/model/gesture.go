package model

import (
	"fmt"
	"time"
)

// GestureKind identifies a recognized gesture.
type GestureKind string

const (
	GestureNone       GestureKind = "none"
	GesturePinch      GestureKind = "pinch"
	GestureSwipeLeft  GestureKind = "swipe_left"
	GestureSwipeRight GestureKind = "swipe_right"
	GestureZoomDelta  GestureKind = "zoom_delta"
)

// GestureKinds lists every kind that can produce a command.
var GestureKinds = []GestureKind{GesturePinch, GestureSwipeLeft, GestureSwipeRight, GestureZoomDelta}

// ParseGestureKind converts a string into a known GestureKind.
func ParseGestureKind(s string) (GestureKind, error) {
	switch k := GestureKind(s); k {
	case GestureNone, GesturePinch, GestureSwipeLeft, GestureSwipeRight, GestureZoomDelta:
		return k, nil
	}
	return GestureNone, fmt.Errorf("unknown gesture kind %q", s)
}

// GestureEvent is a classified gesture. Magnitude is gesture specific: the
// signed palm displacement for swipes, the scaled wrist distance change for
// zoom, and the pinch distance for pinches.
type GestureEvent struct {
	Kind      GestureKind   `json:"kind"`
	HandIDs   []string      `json:"hand_ids"`
	Magnitude float64       `json:"magnitude"`
	Timestamp time.Duration `json:"timestamp"`
}

// CommandType identifies a scene-control operation.
type CommandType string

const (
	CommandNone   CommandType = "none"
	CommandRotate CommandType = "rotate"
	CommandPan    CommandType = "pan"
	CommandZoom   CommandType = "zoom"
	CommandSelect CommandType = "select"
)

// ParseCommandType converts a string into a known CommandType.
func ParseCommandType(s string) (CommandType, error) {
	switch c := CommandType(s); c {
	case CommandNone, CommandRotate, CommandPan, CommandZoom, CommandSelect:
		return c, nil
	}
	return CommandNone, fmt.Errorf("unknown command type %q", s)
}

// CommandPayload carries either a numeric delta or a selection target.
type CommandPayload struct {
	Delta  float64 `json:"delta,omitempty"`
	Target string  `json:"target,omitempty"`
}

// ControlCommand is what the scene-control sink receives.
type ControlCommand struct {
	Type      CommandType    `json:"type"`
	Payload   CommandPayload `json:"payload"`
	Source    GestureKind    `json:"source"`
	Timestamp time.Duration  `json:"timestamp"`
}

// PinchPhase is the per-hand pinch state machine position.
type PinchPhase int

const (
	PinchIdle PinchPhase = iota
	PinchPinching
	PinchCooldown
)

func (p PinchPhase) String() string {
	switch p {
	case PinchIdle:
		return "idle"
	case PinchPinching:
		return "pinching"
	case PinchCooldown:
		return "cooldown"
	}
	return fmt.Sprintf("PinchPhase(%d)", int(p))
}
