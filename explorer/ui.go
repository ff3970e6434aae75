// Package explorer is the fullscreen terminal browser for a flash image. It
// runs a single event loop: key handling, filesystem batches, tree rebuilds
// and preview steps all happen on the goroutine that calls Run.
package explorer

import (
	"fmt"
	"image"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/preview"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/session"
	"github.com/EclipseFox25/ANDnXOR-DC33-Badge-Tool/treesync"
)

// Opener opens an image file into a session.
type Opener func(path string) (*session.Session, error)

type row struct {
	node  *treesync.Node
	depth int
}

// prompt is the active input line. Confirmation prompts take a single key.
type prompt struct {
	label   string
	input   []rune
	confirm bool
	submit  func(string)
}

// UI is the explorer. Create it with New and drive it with Run.
type UI struct {
	s        tcell.Screen
	term     io.Writer
	stopChan chan struct{}
	once     sync.Once

	open    Opener
	sess    *session.Session
	preview *preview.Controller
	frame   image.Image
	log     *zap.Logger

	rows     []row
	cursor   int
	top      int
	selected map[string]bool
	status   string
	prompt   *prompt
}

type options struct {
	sched   preview.Scheduler
	preview []preview.Option
	log     *zap.Logger
}

// Option configures New.
type Option func(*options)

// WithScheduler replaces the timer source for preview steps.
func WithScheduler(s preview.Scheduler) Option {
	return func(o *options) { o.sched = s }
}

func WithPreviewOptions(opts ...preview.Option) Option {
	return func(o *options) { o.preview = append(o.preview, opts...) }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// New wraps an initialised screen.
func New(s tcell.Screen, open Opener, opts ...Option) *UI {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sched == nil {
		o.sched = screenScheduler{s: s}
	}
	u := &UI{
		s:        s,
		term:     os.Stdout,
		stopChan: make(chan struct{}),
		open:     open,
		log:      o.log,
		selected: make(map[string]bool),
		status:   "Press o to open an image.",
	}
	if _, sim := s.(tcell.SimulationScreen); sim {
		u.term = nil
	}
	popts := append([]preview.Option{preview.WithLogger(o.log)}, o.preview...)
	u.preview = preview.NewController(o.sched, func(img image.Image) { u.frame = img }, popts...)
	return u
}

// NewScreen creates and initialises the terminal screen.
func NewScreen() (tcell.Screen, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, err
	}
	if err := s.Init(); err != nil {
		return nil, err
	}
	s.DisableMouse()
	return s, nil
}

// Close stops the preview, unmounts the session and restores the terminal.
func (u *UI) Close() {
	u.preview.Cancel()
	if u.sess != nil {
		_ = u.sess.Close()
		u.sess = nil
	}
	if u.s == nil {
		return
	}
	u.s.Fini()
	u.s = nil
	if u.term != nil {
		fmt.Fprint(u.term, "\033[?1049l\033[?25h")
	}
}

// RequestStop ends Run after the current event. It can be called multiple
// times safely.
func (u *UI) RequestStop() {
	u.once.Do(func() {
		close(u.stopChan)
		if u.s != nil {
			_ = u.s.PostEvent(tcell.NewEventInterrupt(nil))
		}
	})
}

// IsStopped returns true once a stop has been requested.
func (u *UI) IsStopped() bool {
	select {
	case <-u.stopChan:
		return true
	default:
		return false
	}
}

// Session returns the open session, or nil.
func (u *UI) Session() *session.Session { return u.sess }

// Status returns the status line text.
func (u *UI) Status() string { return u.status }

// Run draws and handles events until a stop is requested.
func (u *UI) Run() {
	for !u.IsStopped() {
		u.LayoutAndDraw()
		ev := u.s.PollEvent()
		if ev == nil {
			return
		}
		u.HandleEvent(ev)
	}
}

// HandleEvent processes one event.
func (u *UI) HandleEvent(ev tcell.Event) {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		u.handleKey(ev)
	case *tcell.EventResize:
		u.s.Sync()
	case *tcell.EventInterrupt:
		if step, ok := ev.Data().(func()); ok {
			step()
		}
	}
}

func (u *UI) handleKey(ev *tcell.EventKey) {
	if ev.Key() == tcell.KeyCtrlC {
		u.RequestStop()
		return
	}
	if u.prompt != nil {
		u.handlePromptKey(ev)
		return
	}

	switch ev.Key() {
	case tcell.KeyUp:
		u.move(-1)
	case tcell.KeyDown:
		u.move(1)
	case tcell.KeyPgUp:
		u.move(-u.listHeight())
	case tcell.KeyPgDn:
		u.move(u.listHeight())
	case tcell.KeyHome:
		u.move(-len(u.rows))
	case tcell.KeyEnd:
		u.move(len(u.rows))
	case tcell.KeyCtrlA:
		u.selectTopLevel()
	case tcell.KeyEscape:
		u.selected = make(map[string]bool)
		u.updatePreview()
	case tcell.KeyDelete:
		u.startDelete()
	case tcell.KeyRune:
		switch ev.Rune() {
		case ' ':
			u.toggle()
		case 'o', 'O':
			u.startOpen()
		case 'a', 'A':
			u.startAdd()
		case 'd', 'D':
			u.startDelete()
		case 'x', 'X':
			u.startExtract()
		case 's', 'S':
			u.startSave()
		case 'm', 'M':
			u.startMkdir()
		case 'r', 'R':
			u.reload()
		case 'q', 'Q':
			u.startQuit()
		}
	}
}

func (u *UI) handlePromptKey(ev *tcell.EventKey) {
	p := u.prompt
	if p.confirm {
		u.prompt = nil
		if ev.Key() == tcell.KeyRune && (ev.Rune() == 'y' || ev.Rune() == 'Y') {
			p.submit("y")
			return
		}
		u.status = "Cancelled."
		return
	}
	switch ev.Key() {
	case tcell.KeyEnter:
		u.prompt = nil
		p.submit(strings.TrimSpace(string(p.input)))
	case tcell.KeyEscape:
		u.prompt = nil
		u.status = "Cancelled."
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		if len(p.input) > 0 {
			p.input = p.input[:len(p.input)-1]
		}
	case tcell.KeyRune:
		p.input = append(p.input, ev.Rune())
	}
}

func (u *UI) ask(label, initial string, submit func(string)) {
	u.prompt = &prompt{label: label, input: []rune(initial), submit: submit}
}

func (u *UI) confirm(label string, yes func()) {
	u.prompt = &prompt{label: label + " (y/N)", confirm: true, submit: func(string) { yes() }}
}

func (u *UI) move(delta int) {
	if len(u.rows) == 0 {
		return
	}
	u.cursor += delta
	if u.cursor < 0 {
		u.cursor = 0
	}
	if u.cursor >= len(u.rows) {
		u.cursor = len(u.rows) - 1
	}
	u.updatePreview()
}

func (u *UI) toggle() {
	if len(u.rows) == 0 {
		return
	}
	p := u.rows[u.cursor].node.Path
	if u.selected[p] {
		delete(u.selected, p)
	} else {
		u.selected[p] = true
	}
	u.updatePreview()
}

func (u *UI) selectTopLevel() {
	if u.sess == nil {
		return
	}
	u.selected = make(map[string]bool)
	for _, p := range u.sess.Tree().Root().Children {
		u.selected[p] = true
	}
	u.updatePreview()
}

// selection returns the marked paths in display order, or the row under the
// cursor when nothing is marked.
func (u *UI) selection() []string {
	var paths []string
	for _, r := range u.rows {
		if u.selected[r.node.Path] {
			paths = append(paths, r.node.Path)
		}
	}
	if len(paths) == 0 && len(u.rows) > 0 {
		paths = []string{u.rows[u.cursor].node.Path}
	}
	return paths
}

// updatePreview animates a single selected previewable file and cancels the
// preview for anything else.
func (u *UI) updatePreview() {
	sel := u.selection()
	if u.sess == nil || len(sel) != 1 || !u.preview.Previewable(sel[0]) {
		u.preview.Cancel()
		return
	}
	if n := u.sess.Tree().Node(sel[0]); n == nil || n.IsDir() {
		u.preview.Cancel()
		return
	}
	if u.preview.Name() == sel[0] {
		return
	}
	if err := u.preview.Open(u.sess, sel[0]); err != nil {
		u.status = err.Error()
	}
}

// refresh flattens the current tree into rows, keeping the cursor on the
// same path when it still exists.
func (u *UI) refresh() {
	var current string
	if u.cursor < len(u.rows) {
		current = u.rows[u.cursor].node.Path
	}
	u.rows = u.rows[:0]
	if u.sess != nil {
		_ = u.sess.Tree().Walk(func(n *treesync.Node, depth int) error {
			u.rows = append(u.rows, row{node: n, depth: depth})
			return nil
		})
	}
	keep := make(map[string]bool, len(u.selected))
	u.cursor = 0
	for i, r := range u.rows {
		if u.selected[r.node.Path] {
			keep[r.node.Path] = true
		}
		if r.node.Path == current {
			u.cursor = i
		}
	}
	u.selected = keep
	u.updatePreview()
}
