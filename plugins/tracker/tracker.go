// Package tracker provides a plugin that records push/undo/redo/clear
// operations, with optional de-duplication of identical bursts.
package tracker

import (
	"sync"
	"time"

	"github.com/dshills/rewind/plugin"
)

// DefaultWindow is the default de-duplication window for identical
// (type, label) events.
const DefaultWindow = 500 * time.Millisecond

// defaultCap bounds the recorded event list.
const defaultCap = 1000

// Record is one observed history operation.
type Record struct {
	Type  string
	Label string
	At    time.Time
}

// Option configures the tracker.
type Option func(*Plugin)

// WithWindow sets the de-duplication window. Zero disables de-duplication.
func WithWindow(d time.Duration) Option {
	return func(p *Plugin) {
		p.window = d
	}
}

// WithCap sets the maximum number of retained records.
func WithCap(n int) Option {
	return func(p *Plugin) {
		if n > 0 {
			p.cap = n
		}
	}
}

// withClock overrides the time source. Test hook.
func withClock(clock func() time.Time) Option {
	return func(p *Plugin) {
		p.clock = clock
	}
}

// Plugin records history operations.
type Plugin struct {
	mu     sync.Mutex
	window time.Duration
	cap    int
	events []Record
	clock  func() time.Time
}

// New creates an action tracker.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		window: DefaultWindow,
		cap:    defaultCap,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "action-tracker" }

// OnActionPush implements plugin.PushHandler.
func (p *Plugin) OnActionPush(ev plugin.PushEvent) error {
	p.record("push", ev.Action.Label)
	return nil
}

// OnUndo implements plugin.UndoHandler.
func (p *Plugin) OnUndo(ev plugin.UndoEvent) error {
	p.record("undo", ev.Action.Label)
	return nil
}

// OnRedo implements plugin.RedoHandler.
func (p *Plugin) OnRedo(ev plugin.RedoEvent) error {
	p.record("redo", ev.Action.Label)
	return nil
}

// OnClear implements plugin.ClearHandler.
func (p *Plugin) OnClear(plugin.ClearEvent) error {
	p.record("clear", "")
	return nil
}

// record appends an event unless it duplicates the previous one inside the
// de-duplication window.
func (p *Plugin) record(typ, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	if p.window > 0 && len(p.events) > 0 {
		last := p.events[len(p.events)-1]
		if last.Type == typ && last.Label == label && now.Sub(last.At) < p.window {
			return
		}
	}

	p.events = append(p.events, Record{Type: typ, Label: label, At: now})
	if len(p.events) > p.cap {
		p.events = p.events[len(p.events)-p.cap:]
	}
}

// Events returns a copy of the recorded events, oldest first.
func (p *Plugin) Events() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Record(nil), p.events...)
}

// Reset drops all recorded events.
func (p *Plugin) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = nil
}
