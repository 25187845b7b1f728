package tracker

import (
	"fmt"
	"testing"
	"time"

	"github.com/dshills/rewind/action"
	"github.com/dshills/rewind/plugin"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) time() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTracker(opts ...Option) (*Plugin, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	opts = append(opts, withClock(clock.time))
	return New(opts...), clock
}

func push(label string) plugin.PushEvent {
	return plugin.PushEvent{Action: &action.Action{Label: label}}
}

func TestRecordsOperations(t *testing.T) {
	p, clock := newTestTracker()

	p.OnActionPush(push("insert"))
	clock.advance(time.Second)
	p.OnUndo(plugin.UndoEvent{Action: &action.Action{Label: "insert"}})
	clock.advance(time.Second)
	p.OnRedo(plugin.RedoEvent{Action: &action.Action{Label: "insert"}})
	clock.advance(time.Second)
	p.OnClear(plugin.ClearEvent{})

	events := p.Events()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	wantTypes := []string{"push", "undo", "redo", "clear"}
	for i, typ := range wantTypes {
		if events[i].Type != typ {
			t.Errorf("event %d type = %q, want %q", i, events[i].Type, typ)
		}
	}
}

func TestDeduplicatesBursts(t *testing.T) {
	p, clock := newTestTracker()

	p.OnActionPush(push("type char"))
	clock.advance(100 * time.Millisecond)
	p.OnActionPush(push("type char"))
	clock.advance(100 * time.Millisecond)
	p.OnActionPush(push("type char"))

	if got := len(p.Events()); got != 1 {
		t.Errorf("events = %d, want burst collapsed to 1", got)
	}

	clock.advance(time.Second)
	p.OnActionPush(push("type char"))
	if got := len(p.Events()); got != 2 {
		t.Errorf("events = %d, want 2 after window elapsed", got)
	}
}

func TestDifferentLabelsNotDeduplicated(t *testing.T) {
	p, clock := newTestTracker()

	p.OnActionPush(push("a"))
	clock.advance(time.Millisecond)
	p.OnActionPush(push("b"))

	if got := len(p.Events()); got != 2 {
		t.Errorf("events = %d, want 2", got)
	}
}

func TestZeroWindowDisablesDedup(t *testing.T) {
	p, _ := newTestTracker(WithWindow(0))

	p.OnActionPush(push("x"))
	p.OnActionPush(push("x"))

	if got := len(p.Events()); got != 2 {
		t.Errorf("events = %d, want 2 with dedup off", got)
	}
}

func TestCapBoundsHistory(t *testing.T) {
	p, clock := newTestTracker(WithCap(3), WithWindow(0))

	for i := 0; i < 10; i++ {
		p.OnActionPush(push(fmt.Sprintf("op-%d", i)))
		clock.advance(time.Second)
	}

	events := p.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want capped at 3", len(events))
	}
	if events[0].Label != "op-7" {
		t.Errorf("oldest kept = %q, want op-7", events[0].Label)
	}
}

func TestReset(t *testing.T) {
	p, _ := newTestTracker()
	p.OnActionPush(push("x"))
	p.Reset()
	if got := len(p.Events()); got != 0 {
		t.Errorf("events = %d after reset, want 0", got)
	}
}

func TestEventsReturnsCopy(t *testing.T) {
	p, _ := newTestTracker()
	p.OnActionPush(push("x"))

	events := p.Events()
	events[0].Label = "mutated"
	if p.Events()[0].Label != "x" {
		t.Error("Events should return a copy")
	}
}
