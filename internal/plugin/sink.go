package plugin

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
)

// Sink delivers command batches to a named plugin, one execution per batch.
type Sink struct {
	manager  *Manager
	executor *Executor
	name     string
	config   json.RawMessage
	log      *zap.Logger
}

// NewSink creates a Sink for the plugin called name. The plugin is resolved
// on every delivery so a rediscovery takes effect without a restart.
func NewSink(manager *Manager, executor *Executor, name string, config json.RawMessage, log *zap.Logger) *Sink {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sink{
		manager:  manager,
		executor: executor,
		name:     name,
		config:   config,
		log:      log.Named("plugin").With(zap.String("plugin", name)),
	}
}

// Deliver sends the commands the plugin accepts, keeping their order.
func (s *Sink) Deliver(ctx context.Context, cmds []model.ControlCommand) error {
	p, err := s.manager.Get(s.name)
	if err != nil {
		return fmt.Errorf("plugin %q: %w", s.name, err)
	}

	batch := make([]model.ControlCommand, 0, len(cmds))
	for _, cmd := range cmds {
		if p.Manifest.Accepts(cmd.Type) {
			batch = append(batch, cmd)
		}
	}
	if len(batch) == 0 {
		return nil
	}

	resp, err := s.executor.Execute(ctx, p, &Request{Commands: batch, Config: s.config})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("plugin %q rejected commands: %s", s.name, resp.Error)
	}

	s.log.Debug("commands delivered", zap.Int("count", len(batch)))
	return nil
}
