// Package sink delivers control commands to scene-control collaborators.
package sink

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/dispatch"
	"github.com/ayusman/handscene/internal/model"
)

// Config selects and configures the sinks commands are delivered to.
type Config struct {
	// Kinds lists the sinks to fan out to: "log", "plugin" and "nats".
	Kinds []string `toml:"kinds" validate:"dive,oneof=log plugin nats"`

	// Plugin names the scene-control plugin for the "plugin" sink.
	Plugin string `toml:"plugin"`

	NATSURL     string `toml:"nats_url"`
	NATSSubject string `toml:"nats_subject"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Kinds:       []string{"log"},
		Plugin:      "keyboard",
		NATSURL:     "nats://localhost:4222",
		NATSSubject: "handscene.commands",
	}
}

// LogSink writes every command to the log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a LogSink. A nil logger disables logging.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log.Named("scene")}
}

// Deliver logs cmds in order.
func (s *LogSink) Deliver(_ context.Context, cmds []model.ControlCommand) error {
	for _, cmd := range cmds {
		s.log.Info("command",
			zap.String("type", string(cmd.Type)),
			zap.String("source", string(cmd.Source)),
			zap.Float64("delta", cmd.Payload.Delta),
			zap.String("target", cmd.Payload.Target),
			zap.Duration("at", cmd.Timestamp),
		)
	}
	return nil
}

// Multi delivers each batch to every sink in turn. A failing sink does not
// stop delivery to the rest.
type Multi []dispatch.Sink

// Deliver forwards cmds to each sink and joins their errors.
func (m Multi) Deliver(ctx context.Context, cmds []model.ControlCommand) error {
	var errs []error
	for _, s := range m {
		if err := s.Deliver(ctx, cmds); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
