package capture

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/handscene/internal/model"
)

// ErrClipEnded is returned by a non-looping Clip after its last frame.
var ErrClipEnded = errors.New("clip ended")

// Clip serves a fixed set of images as a frame source, spaced step apart in
// media time. Timestamps keep growing when the clip loops.
type Clip struct {
	images []gocv.Mat
	step   time.Duration
	loop   bool
	owned  bool

	mu     sync.Mutex
	open   bool
	served int
}

// NewClip plays images in order. The caller keeps ownership of images.
// A non-positive step defaults to one frame at DefaultFPS.
func NewClip(images []gocv.Mat, step time.Duration, loop bool) *Clip {
	if step <= 0 {
		step = time.Second / DefaultFPS
	}
	return &Clip{images: images, step: step, loop: loop}
}

// NewSynthetic returns an endless clip of blank frames sized and paced by
// cfg, for running the pipeline without a camera.
func NewSynthetic(cfg Config) *Clip {
	w, h, fps := cfg.Width, cfg.Height, cfg.FPS
	if w <= 0 {
		w = DefaultWidth
	}
	if h <= 0 {
		h = DefaultHeight
	}
	if fps <= 0 {
		fps = DefaultFPS
	}
	blank := gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
	c := NewClip([]gocv.Mat{blank}, time.Second/time.Duration(fps), true)
	c.owned = true
	return c
}

// Open rewinds the clip.
func (c *Clip) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.served = 0
	return nil
}

// ReadFrame returns a copy of the next image. The first frame is stamped
// one step after zero.
func (c *Clip) ReadFrame() (model.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.open {
		return nil, ErrCameraNotOpen
	}
	if len(c.images) == 0 {
		return nil, ErrClipEnded
	}
	if !c.loop && c.served >= len(c.images) {
		return nil, ErrClipEnded
	}

	img := c.images[c.served%len(c.images)].Clone()
	c.served++
	return NewMatFrame(img, time.Duration(c.served)*c.step), nil
}

// Close stops playback. Images created by NewSynthetic are released.
func (c *Clip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	if c.owned {
		for i := range c.images {
			c.images[i].Close()
		}
		c.images = nil
		c.owned = false
	}
	return nil
}
