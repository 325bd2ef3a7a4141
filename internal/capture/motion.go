package capture

import (
	"context"
	"image"
	"sync"
	"time"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/ayusman/handscene/internal/model"
)

// Motion detection constants
const (
	// GaussianBlurSize is the kernel size for Gaussian blur (21x21)
	GaussianBlurSize = 21
	// DiffThreshold is the binary threshold for difference detection
	DiffThreshold = 25
)

// MotionDetector compares consecutive camera frames using frame
// differencing with Gaussian blur for noise reduction.
type MotionDetector struct {
	threshold   float64
	prevGray    gocv.Mat
	initialized bool
	mu          sync.Mutex
}

// NewMotionDetector creates a MotionDetector. threshold is the percentage
// of pixels that must change, so 1.0 means 1%.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prevGray:  gocv.NewMat(),
	}
}

// Changed reports whether frame differs from the previous one by more than
// the threshold, and by how much. Frames that carry no image always count
// as changed, as does the first frame after a reset.
func (m *MotionDetector) Changed(frame model.Frame) (bool, float64) {
	mf, ok := frame.(*MatFrame)
	if !ok || mf.Mat.Empty() {
		return true, 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	gray := gocv.NewMat()
	defer gray.Close()
	if mf.Mat.Channels() > 1 {
		gocv.CvtColor(mf.Mat, &gray, gocv.ColorBGRToGray)
	} else {
		mf.Mat.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: GaussianBlurSize, Y: GaussianBlurSize}, 0, 0, gocv.BorderDefault)

	if !m.initialized || blurred.Rows() != m.prevGray.Rows() || blurred.Cols() != m.prevGray.Cols() {
		blurred.CopyTo(&m.prevGray)
		m.initialized = true
		return true, 100
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(blurred, m.prevGray, &diff)

	thresh := gocv.NewMat()
	defer thresh.Close()
	gocv.Threshold(diff, &thresh, DiffThreshold, 255, gocv.ThresholdBinary)

	changePercent := float64(gocv.CountNonZero(thresh)) / float64(thresh.Rows()*thresh.Cols()) * 100.0
	blurred.CopyTo(&m.prevGray)

	return changePercent > m.threshold, changePercent
}

// Reset forgets the baseline frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.prevGray.Empty() {
		m.prevGray.Close()
		m.prevGray = gocv.NewMat()
	}
	m.initialized = false
}

// Close releases resources used by the motion detector.
func (m *MotionDetector) Close() {
	m.Reset()
}

// landmarkProvider matches pipeline.LandmarkProvider.
type landmarkProvider interface {
	Detect(ctx context.Context, frame model.Frame) ([]model.HandSample, error)
	Close() error
}

// MotionGate skips landmark detection while the camera image is still and
// answers with the last detected hands, restamped to the new frame.
type MotionGate struct {
	inner  landmarkProvider
	motion *MotionDetector
	log    *zap.Logger

	mu      sync.Mutex
	last    []model.HandSample
	have    bool
	skipped uint64
}

// NewMotionGate wraps inner. threshold is the changed-pixel percentage
// below which a frame counts as still.
func NewMotionGate(inner landmarkProvider, threshold float64, log *zap.Logger) *MotionGate {
	if log == nil {
		log = zap.NewNop()
	}
	return &MotionGate{
		inner:  inner,
		motion: NewMotionDetector(threshold),
		log:    log.Named("motion"),
	}
}

// Open opens the wrapped provider if it needs opening.
func (g *MotionGate) Open() error {
	if o, ok := g.inner.(interface{ Open() error }); ok {
		return o.Open()
	}
	return nil
}

// Detect returns the previous result for still frames and delegates
// otherwise. A failed detection clears the cache so the next frame is
// always detected.
func (g *MotionGate) Detect(ctx context.Context, frame model.Frame) ([]model.HandSample, error) {
	changed, pct := g.motion.Changed(frame)

	g.mu.Lock()
	if !changed && g.have {
		g.skipped++
		out := restamp(g.last, frame.Timestamp())
		g.mu.Unlock()
		return out, nil
	}
	g.mu.Unlock()

	hands, err := g.inner.Detect(ctx, frame)

	g.mu.Lock()
	defer g.mu.Unlock()
	if err != nil {
		g.have = false
		g.last = nil
		return nil, err
	}
	g.last = restamp(hands, frame.Timestamp())
	g.have = true
	g.log.Debug("detected", zap.Float64("change_pct", pct), zap.Int("hands", len(hands)))
	return hands, nil
}

// Skipped returns how many detections were answered from the cache.
func (g *MotionGate) Skipped() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.skipped
}

// Close releases the motion detector and the wrapped provider.
func (g *MotionGate) Close() error {
	g.motion.Close()
	return g.inner.Close()
}

func restamp(hands []model.HandSample, ts time.Duration) []model.HandSample {
	out := make([]model.HandSample, len(hands))
	for i, h := range hands {
		h.Timestamp = ts
		out[i] = h
	}
	return out
}
