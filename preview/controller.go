// Package preview animates image files selected in the explorer. A
// Controller is driven from a single goroutine: Show, Cancel and every
// scheduled step must run on the same event loop.
package preview

import (
	"errors"
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"
)

// State is the controller's lifecycle position.
type State int

const (
	Idle State = iota
	Loaded
	Animating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Animating:
		return "animating"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Timer is a pending step.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d. The callback must be delivered on the
// goroutine that owns the Controller.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// FileReader reads whole files out of a mounted image.
type FileReader interface {
	ReadFile(p string) ([]byte, error)
}

// Controller shows one animation at a time through a render callback.
// render receives nil when the preview is cleared.
type Controller struct {
	sched    Scheduler
	render   func(image.Image)
	decode   DecodeFunc
	interval time.Duration
	size     int
	exts     []string
	log      *zap.Logger

	state State
	name  string
	dec   Decoder
	index int
	timer Timer
	gen   uint64
}

// Option configures a Controller.
type Option func(*Controller)

func WithInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

func WithSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.size = n
		}
	}
}

// WithExtensions replaces the previewable extensions. Matching ignores case.
func WithExtensions(exts []string) Option {
	return func(c *Controller) {
		if len(exts) > 0 {
			c.exts = append([]string(nil), exts...)
		}
	}
}

func WithDecoder(fn DecodeFunc) Option {
	return func(c *Controller) {
		if fn != nil {
			c.decode = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// NewController returns an idle controller.
func NewController(sched Scheduler, render func(image.Image), opts ...Option) *Controller {
	c := &Controller{
		sched:    sched,
		render:   render,
		decode:   DecodeGIF,
		interval: 100 * time.Millisecond,
		size:     128,
		exts:     []string{".gif"},
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller) State() State { return c.state }

// Name returns the file being shown, or "".
func (c *Controller) Name() string { return c.name }

// Size returns the edge length of rendered frames.
func (c *Controller) Size() int { return c.size }

// Previewable reports whether p has a previewable extension.
func (c *Controller) Previewable(p string) bool {
	ext := path.Ext(p)
	for _, e := range c.exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// Open reads p through fs and shows it.
func (c *Controller) Open(fs FileReader, p string) error {
	c.Cancel()
	data, err := fs.ReadFile(p)
	if err != nil {
		return fmt.Errorf("preview %s: %w", p, err)
	}
	return c.Show(p, data)
}

// Show replaces whatever is showing with the animation in data. On a decode
// failure the controller is left Idle and the error is returned.
func (c *Controller) Show(name string, data []byte) error {
	c.Cancel()
	dec, err := c.decode(data, c.size)
	if err != nil {
		c.log.Debug("preview decode failed", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("preview %s: %w", name, err)
	}
	c.dec = dec
	c.name = name
	c.index = 0
	c.state = Loaded
	if err := c.advance(); err != nil {
		c.Cancel()
		return fmt.Errorf("preview %s: %w", name, err)
	}
	c.log.Debug("preview started", zap.String("name", name), zap.Int("frames", dec.Frames()))
	return nil
}

// Cancel stops the animation, releases the decoder and clears the preview.
// It is safe to call at any time, any number of times.
func (c *Controller) Cancel() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.state == Idle {
		return
	}
	if c.dec != nil {
		_ = c.dec.Close()
		c.dec = nil
	}
	c.name = ""
	c.index = 0
	c.state = Idle
	c.render(nil)
}

func (c *Controller) step(gen uint64) {
	if gen != c.gen || c.dec == nil {
		return
	}
	c.timer = nil
	if err := c.advance(); err != nil {
		c.log.Warn("preview stopped", zap.String("name", c.name), zap.Error(err))
		c.Cancel()
	}
}

// advance draws the current frame and schedules the next step. Running off
// the end of the sequence rewinds to frame 0 without drawing.
func (c *Controller) advance() error {
	err := c.dec.Seek(c.index)
	switch {
	case errors.Is(err, io.EOF):
		c.index = 0
	case err != nil:
		return err
	default:
		c.render(c.dec.Frame())
		if n := c.dec.Frames(); n > 0 {
			c.index = (c.index + 1) % n
		} else {
			c.index++
		}
	}
	gen := c.gen
	c.timer = c.sched.AfterFunc(c.interval, func() { c.step(gen) })
	c.state = Animating
	return nil
}
