package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/handscene/internal/capture"
	"github.com/ayusman/handscene/internal/model"
)

// MediaPipeDetector finds hands by sending JPEG-encoded camera frames to a
// Python MediaPipe service.
type MediaPipeDetector struct {
	config Config
	log    *zap.Logger

	mu   sync.Mutex
	svc  *service
	idle *time.Timer
}

// NewMediaPipeDetector creates a detector. The service is started by Open,
// or lazily by the first Detect after an idle shutdown.
func NewMediaPipeDetector(config Config, log *zap.Logger) *MediaPipeDetector {
	if log == nil {
		log = zap.NewNop()
	}
	return &MediaPipeDetector{
		config: config,
		log:    log.Named("mediapipe"),
	}
}

// Open starts the service so that a missing script or interpreter fails
// pipeline start instead of every tick.
func (d *MediaPipeDetector) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.running()
	return err
}

// Detect sends one frame to the service. When ctx ends first the service
// is killed, because its reply stream is out of step, and restarted on the
// next call.
func (d *MediaPipeDetector) Detect(ctx context.Context, frame model.Frame) ([]model.HandSample, error) {
	mf, ok := frame.(*capture.MatFrame)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedFrame, frame)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	jpeg, err := encodeJPEG(mf.Mat)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	svc, err := d.running()
	if err != nil {
		return nil, err
	}

	type reply struct {
		line []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		line, err := svc.exchange(jpeg)
		done <- reply{line, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		d.log.Warn("detection abandoned, restarting service", zap.Error(ctx.Err()))
		d.stop(true)
		return nil, ctx.Err()
	}
	if r.err != nil {
		d.stop(true)
		return nil, r.err
	}

	var resp struct {
		Hands []jsonHand `json:"hands"`
	}
	if err := json.Unmarshal(r.line, &resp); err != nil {
		return nil, fmt.Errorf("parse service reply: %w", err)
	}

	d.armIdle()
	return toSamples(resp.Hands, mf.Timestamp(), d.config), nil
}

func encodeJPEG(m gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, m)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()
	return append([]byte(nil), buf.GetBytes()...), nil
}

// Close shuts the service down.
func (d *MediaPipeDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stop(false)
}

// running returns the live service, starting one if needed. Callers hold mu.
func (d *MediaPipeDetector) running() (*service, error) {
	if d.svc != nil {
		return d.svc, nil
	}
	svc, err := startService(d.config, d.log)
	if err != nil {
		return nil, err
	}
	d.svc = svc
	return svc, nil
}

// stop ends the service if one is running. Callers hold mu.
func (d *MediaPipeDetector) stop(kill bool) error {
	if d.idle != nil {
		d.idle.Stop()
		d.idle = nil
	}
	if d.svc == nil {
		return nil
	}
	err := d.svc.stop(kill)
	d.svc = nil
	d.log.Debug("mediapipe service stopped", zap.Bool("killed", kill))
	if kill {
		return nil
	}
	return err
}

// armIdle restarts the idle countdown. Callers hold mu.
func (d *MediaPipeDetector) armIdle() {
	if d.config.IdleTimeout <= 0 {
		return
	}
	if d.idle != nil {
		d.idle.Stop()
	}
	d.idle = time.AfterFunc(d.config.IdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.log.Info("mediapipe service idle, stopping")
		d.stop(false)
	})
}

// jsonHand is one hand in a service reply.
type jsonHand struct {
	Points     []jsonPoint `json:"points"`
	Handedness string      `json:"handedness"`
	Score      float64     `json:"score"`
}

type jsonPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// toSamples converts service hands into samples. Hands without exactly 21
// points or below the confidence floor are dropped, and at most MaxHands
// are kept.
func toSamples(hands []jsonHand, ts time.Duration, cfg Config) []model.HandSample {
	out := make([]model.HandSample, 0, len(hands))
	for _, h := range hands {
		if len(h.Points) != model.NumLandmarks || h.Score < cfg.MinConfidence {
			continue
		}
		if cfg.MaxHands > 0 && len(out) >= cfg.MaxHands {
			break
		}

		s := model.HandSample{
			Handedness: h.Handedness,
			Score:      h.Score,
			Timestamp:  ts,
		}
		for i, p := range h.Points {
			s.Landmarks[i] = model.Point3D{X: p.X, Y: p.Y, Z: p.Z}
		}
		out = append(out, s)
	}
	return out
}
