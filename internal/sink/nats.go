package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ayusman/handscene/internal/model"
)

// publisher is the part of *nats.Conn the sink uses.
type publisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink publishes each command as JSON on "<subject>.<type>", so a remote
// scene can subscribe to all commands or only some types.
type NATSSink struct {
	nc      *nats.Conn
	pub     publisher
	subject string
	log     *zap.Logger
}

// NewNATSSink connects to url and publishes under subject.
func NewNATSSink(url, subject string, log *zap.Logger) (*NATSSink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("nats")

	nc, err := nats.Connect(url,
		nats.Name("handscene"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	s := newNATSSink(nc, subject, log)
	s.nc = nc
	return s, nil
}

func newNATSSink(pub publisher, subject string, log *zap.Logger) *NATSSink {
	if subject == "" {
		subject = DefaultConfig().NATSSubject
	}
	return &NATSSink{pub: pub, subject: subject, log: log}
}

// Deliver publishes cmds in order. NATS preserves order per connection.
func (s *NATSSink) Deliver(ctx context.Context, cmds []model.ControlCommand) error {
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return err
		}

		data, err := json.Marshal(cmd)
		if err != nil {
			return fmt.Errorf("failed to marshal command: %w", err)
		}

		subject := s.subject + "." + string(cmd.Type)
		if err := s.pub.Publish(subject, data); err != nil {
			return fmt.Errorf("failed to publish command to subject %s: %w", subject, err)
		}
	}
	return nil
}

// Close drains and closes the NATS connection.
func (s *NATSSink) Close() error {
	if s.nc == nil {
		return nil
	}
	if err := s.nc.Drain(); err != nil {
		s.nc.Close()
		return err
	}
	return nil
}
