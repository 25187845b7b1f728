// Package plugin dispatches history lifecycle events to optional observers.
//
// A plugin implements Plugin plus any of the per-event handler interfaces it
// cares about. Registration order does not matter: plugins run in dependency
// order for initialization and in descending priority for everything else.
// A failing or panicking handler is isolated; it is logged, routed to that
// plugin's own OnError if implemented, and never blocks sibling plugins or
// the core operation.
package plugin

import (
	"github.com/dshills/rewind/action"
)

// Plugin is the minimal contract for a history observer.
type Plugin interface {
	// Name returns the unique plugin name.
	Name() string
}

// Prioritizer is implemented by plugins that want dispatch ordering.
// Higher priority runs first. Plugins without it have priority 0.
type Prioritizer interface {
	Priority() int
}

// Depender is implemented by plugins that must initialize after others.
type Depender interface {
	// Dependencies returns the names of plugins this one depends on.
	Dependencies() []string
}

// DebugReporter is implemented by plugins that expose internal state for
// diagnostics.
type DebugReporter interface {
	DebugInfo() map[string]any
}

// Event payloads, one per lifecycle event.

// PushEvent fires after an action is executed and recorded.
type PushEvent struct {
	Action *action.Action
	State  any
}

// UndoEvent fires after an action is undone.
type UndoEvent struct {
	Action *action.Action
	State  any
}

// RedoEvent fires after an action is redone.
type RedoEvent struct {
	Action *action.Action
	State  any
}

// ClearEvent fires when the history is cleared.
type ClearEvent struct{}

// GCEvent fires after a garbage-collection pass.
type GCEvent struct {
	FreedBytes int
}

// StateChangeEvent fires whenever the current state changes.
type StateChangeEvent struct {
	State any
}

// ErrorEvent describes a failure routed to a plugin.
type ErrorEvent struct {
	// Op is the operation that failed ("push", "undo", a plugin event name).
	Op  string
	Err error
}

// MemoryWarningEvent fires when history memory crosses the warning threshold.
type MemoryWarningEvent struct {
	EstimatedBytes int
}

// Per-event handler interfaces. A plugin implements only the ones it needs.

// InitHandler receives the initial state, in dependency order.
type InitHandler interface {
	OnInit(state any) error
}

// PushHandler observes pushes.
type PushHandler interface {
	OnActionPush(ev PushEvent) error
}

// UndoHandler observes undos.
type UndoHandler interface {
	OnUndo(ev UndoEvent) error
}

// RedoHandler observes redos.
type RedoHandler interface {
	OnRedo(ev RedoEvent) error
}

// ClearHandler observes history clears.
type ClearHandler interface {
	OnClear(ev ClearEvent) error
}

// GCHandler observes garbage-collection passes.
type GCHandler interface {
	OnGC(ev GCEvent) error
}

// StateChangeHandler observes state changes.
type StateChangeHandler interface {
	OnStateChange(ev StateChangeEvent) error
}

// ErrorHandler receives failures from this plugin's own handlers and core
// operation errors. It must not fail; returned state is its own business.
type ErrorHandler interface {
	OnError(ev ErrorEvent)
}

// MemoryWarningHandler observes memory threshold crossings.
type MemoryWarningHandler interface {
	OnMemoryWarning(ev MemoryWarningEvent) error
}
