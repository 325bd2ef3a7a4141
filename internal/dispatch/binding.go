package dispatch

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/handscene/internal/model"
)

// ErrInvalidBinding is returned when a binding names an unknown gesture or command.
var ErrInvalidBinding = errors.New("invalid binding")

// Binding maps one gesture kind to a scene command.
type Binding struct {
	Kind    model.GestureKind `toml:"kind" json:"kind" validate:"required"`
	Command model.CommandType `toml:"command" json:"command" validate:"required"`
	// Scale multiplies the gesture magnitude into the command delta.
	Scale float64 `toml:"scale" json:"scale"`
	// Cooldown is the minimum media time between two commands for this kind.
	Cooldown time.Duration `toml:"cooldown" json:"cooldown" validate:"gte=0"`
	Enabled  bool          `toml:"enabled" json:"enabled"`
}

// Validate checks that the binding names a real gesture and command.
func (b Binding) Validate() error {
	if _, err := model.ParseGestureKind(string(b.Kind)); err != nil || b.Kind == model.GestureNone {
		return fmt.Errorf("%w: gesture %q", ErrInvalidBinding, b.Kind)
	}
	if _, err := model.ParseCommandType(string(b.Command)); err != nil {
		return fmt.Errorf("%w: command %q", ErrInvalidBinding, b.Command)
	}
	if b.Cooldown < 0 {
		return fmt.Errorf("%w: negative cooldown", ErrInvalidBinding)
	}
	return nil
}

// DefaultBindings returns the stock gesture table: pinch selects, swipes
// pan and two-hand spread zooms.
func DefaultBindings() []Binding {
	return []Binding{
		{Kind: model.GesturePinch, Command: model.CommandSelect, Scale: 1, Cooldown: 250 * time.Millisecond, Enabled: true},
		{Kind: model.GestureSwipeLeft, Command: model.CommandPan, Scale: 1, Cooldown: 250 * time.Millisecond, Enabled: true},
		{Kind: model.GestureSwipeRight, Command: model.CommandPan, Scale: 1, Cooldown: 250 * time.Millisecond, Enabled: true},
		{Kind: model.GestureZoomDelta, Command: model.CommandZoom, Scale: 1, Enabled: true},
	}
}

// noop reports whether ev would produce a movement of zero.
func (b Binding) noop(ev model.GestureEvent) bool {
	return b.Command != model.CommandSelect && ev.Magnitude*b.Scale == 0
}

// command builds the ControlCommand for ev under b.
func (b Binding) command(ev model.GestureEvent) model.ControlCommand {
	cmd := model.ControlCommand{
		Type:      b.Command,
		Source:    ev.Kind,
		Timestamp: ev.Timestamp,
	}
	switch b.Command {
	case model.CommandSelect:
		if len(ev.HandIDs) > 0 {
			cmd.Payload.Target = ev.HandIDs[0]
		}
	default:
		cmd.Payload.Delta = ev.Magnitude * b.Scale
	}
	return cmd
}
