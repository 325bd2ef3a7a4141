// Package capture reads timestamped video frames with GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handscene/internal/model"
)

// Default camera settings
const (
	DefaultFPS    = 30
	DefaultWidth  = 640
	DefaultHeight = 480
)

// ErrCameraNotOpen is returned when trying to read from a camera that is not open.
var ErrCameraNotOpen = errors.New("camera is not open")

// MatFrame is a captured image stamped with its media time.
type MatFrame struct {
	Mat gocv.Mat
	ts  time.Duration
}

// NewMatFrame wraps mat. The frame takes ownership of mat.
func NewMatFrame(mat gocv.Mat, ts time.Duration) *MatFrame {
	return &MatFrame{Mat: mat, ts: ts}
}

// Timestamp returns the media time of the frame.
func (f *MatFrame) Timestamp() time.Duration {
	return f.ts
}

// Close releases the underlying Mat.
func (f *MatFrame) Close() error {
	return f.Mat.Close()
}

// Config selects and sizes the capture device.
type Config struct {
	// DeviceID is the camera index used when File is empty.
	DeviceID int `toml:"device" validate:"gte=0"`
	// File plays a video file instead of a live camera.
	File   string `toml:"file"`
	Width  int    `toml:"width" validate:"gte=0"`
	Height int    `toml:"height" validate:"gte=0"`
	FPS    int    `toml:"fps" validate:"gte=0,lte=240"`
	// MotionGate is the changed-pixel percentage below which a frame is
	// treated as still and detection is skipped. Zero detects every frame.
	MotionGate float64 `toml:"motion_gate" validate:"gte=0,lte=100"`
	// Synthetic feeds blank frames instead of opening a device.
	Synthetic bool `toml:"synthetic"`
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		Width:  DefaultWidth,
		Height: DefaultHeight,
		FPS:    DefaultFPS,
	}
}

// Camera captures frames from a device or video file. Frames are stamped
// with the capture position when the backend reports one, and with the time
// since Open otherwise.
type Camera struct {
	cfg     Config
	capture *gocv.VideoCapture
	mu      sync.Mutex
	running bool
	opened  time.Time
	last    time.Duration
}

// NewCamera creates a Camera. Nothing is opened until Open.
func NewCamera(cfg Config) *Camera {
	if cfg.FPS <= 0 {
		cfg.FPS = DefaultFPS
	}
	return &Camera{cfg: cfg}
}

func (c *Camera) source() any {
	if c.cfg.File != "" {
		return c.cfg.File
	}
	return c.cfg.DeviceID
}

// Open opens the device or file.
func (c *Camera) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	capture, err := gocv.OpenVideoCapture(c.source())
	if err != nil {
		return fmt.Errorf("open capture %v: %w", c.source(), err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return fmt.Errorf("open capture %v: device unavailable", c.source())
	}

	if c.cfg.File == "" {
		if c.cfg.Width > 0 && c.cfg.Height > 0 {
			capture.Set(gocv.VideoCaptureFrameWidth, float64(c.cfg.Width))
			capture.Set(gocv.VideoCaptureFrameHeight, float64(c.cfg.Height))
		}
		capture.Set(gocv.VideoCaptureFPS, float64(c.cfg.FPS))
	}

	c.capture = capture
	c.running = true
	c.opened = time.Now()
	c.last = 0

	return nil
}

// Close closes the camera and releases resources.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		c.running = false
		return nil
	}

	err := c.capture.Close()
	c.capture = nil
	c.running = false

	return err
}

// ReadFrame reads a single frame. The caller must Close the returned frame.
func (c *Camera) ReadFrame() (model.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || c.capture == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := c.capture.Read(&mat); !ok {
		mat.Close()
		return nil, errors.New("failed to read frame from camera")
	}

	if mat.Empty() {
		mat.Close()
		return nil, errors.New("captured frame is empty")
	}

	ts := time.Duration(c.capture.Get(gocv.VideoCapturePosMsec) * float64(time.Millisecond))
	if ts <= 0 {
		ts = time.Since(c.opened)
	}
	c.last = clampMonotonic(c.last, ts)

	return NewMatFrame(mat, c.last), nil
}

// clampMonotonic keeps timestamps non-decreasing when a backend jumps back.
func clampMonotonic(last, ts time.Duration) time.Duration {
	if ts < last {
		return last
	}
	return ts
}

// SetFPS sets the capture rate. Values less than or equal to 0 are ignored.
func (c *Camera) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cfg.FPS = fps

	if c.capture != nil {
		c.capture.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

// FPS returns the current frames per second setting.
func (c *Camera) FPS() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.cfg.FPS
}

// IsOpen returns true if the camera is currently open.
func (c *Camera) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.running
}
