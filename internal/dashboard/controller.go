package dashboard

import (
	"sync"

	"github.com/AsHfIEXE/SigVoid/internal/models"
)

// Frame is what a sink draws: the six view-models plus the style of the
// theme they should be drawn in.
type Frame struct {
	Theme    Theme            `json:"theme"`
	Style    Style            `json:"style"`
	View     models.View      `json:"view"`
	Snapshot *models.Snapshot `json:"snapshot,omitempty"`
}

// Sink renders a frame. Every call redraws from scratch.
type Sink interface {
	Render(Frame)
}

type SinkFunc func(Frame)

func (f SinkFunc) Render(fr Frame) { f(fr) }

// Controller owns the most recently rendered frame and the sinks that draw
// it. Render replaces the frame wholesale; a theme change redraws the last
// frame in the new style. Frames are built, stored and handed to sinks under
// one lock, so sinks see them in the order they became current. Sinks must
// not call back into the controller.
type Controller struct {
	theme *ThemeState

	mu    sync.Mutex
	last  Frame
	have  bool
	sinks []Sink
}

func NewController(theme *ThemeState) *Controller {
	c := &Controller{theme: theme}
	c.last = Frame{Theme: theme.Current(), Style: StyleFor(theme.Current()), View: models.EmptyView()}
	theme.Subscribe(c.restyle)
	return c
}

func (c *Controller) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

func (c *Controller) Theme() *ThemeState { return c.theme }

func (c *Controller) Render(view models.View, snap *models.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.theme.Current()
	c.publishLocked(Frame{Theme: t, Style: StyleFor(t), View: view, Snapshot: snap})
}

// Last returns the most recent frame and whether anything was rendered yet.
func (c *Controller) Last() (Frame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last, c.have
}

// restyle ignores t and reads the current theme under the lock, so a stale
// notification cannot undo a newer change.
func (c *Controller) restyle(Theme) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fr := c.last
	fr.Theme = c.theme.Current()
	fr.Style = StyleFor(fr.Theme)
	c.publishLocked(fr)
}

func (c *Controller) publishLocked(fr Frame) {
	c.last = fr
	c.have = true
	for _, s := range c.sinks {
		s.Render(fr)
	}
}
