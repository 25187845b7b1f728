package plugin

import (
	"fmt"
	"runtime/debug"
	"sort"

	"github.com/dshills/rewind/logging"
)

// Event names used in logs and error routing.
const (
	eventInit          = "init"
	eventPush          = "actionPush"
	eventUndo          = "undo"
	eventRedo          = "redo"
	eventClear         = "clear"
	eventGC            = "gc"
	eventStateChange   = "stateChange"
	eventMemoryWarning = "memoryWarning"
)

// Pipeline dispatches lifecycle events to a fixed set of plugins.
// Construction validates dependencies and fails on cycles; dispatch never
// fails.
type Pipeline struct {
	log     *logging.Logger
	ordered []Plugin // dependency order, used for init

	// Per-event dispatch lists, priority order, precomputed so emitting an
	// event nobody listens to costs one nil check.
	push      []PushHandler
	undo      []UndoHandler
	redo      []RedoHandler
	clear     []ClearHandler
	gc        []GCHandler
	state     []StateChangeHandler
	memory    []MemoryWarningHandler
	reporters []DebugReporter
}

// NewPipeline builds a pipeline from the given plugins.
// Missing dependencies are logged as warnings; a dependency cycle returns a
// *CycleError.
func NewPipeline(plugins []Plugin, log *logging.Logger) (*Pipeline, error) {
	if log == nil {
		log = logging.NullLogger
	}
	log = log.WithComponent("plugin")

	ValidateDependencies(plugins, log)

	ordered, err := SortByDependencies(plugins)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{log: log, ordered: ordered}
	p.buildEventLists()
	return p, nil
}

// ValidateDependencies warns about declared dependencies that are not among
// the registered plugins. Missing dependencies are non-fatal.
func ValidateDependencies(plugins []Plugin, log *logging.Logger) {
	names := make(map[string]bool, len(plugins))
	for _, pl := range plugins {
		names[pl.Name()] = true
	}
	for _, pl := range plugins {
		dep, ok := pl.(Depender)
		if !ok {
			continue
		}
		for _, d := range dep.Dependencies() {
			if !names[d] {
				log.Warn("plugin %q depends on unregistered plugin %q", pl.Name(), d)
			}
		}
	}
}

// SortByDependencies orders plugins so dependencies come before dependents.
// Returns a *CycleError if the declared dependencies form a cycle.
func SortByDependencies(plugins []Plugin) ([]Plugin, error) {
	byName := make(map[string]Plugin, len(plugins))
	for _, pl := range plugins {
		byName[pl.Name()] = pl
	}

	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(plugins))
	ordered := make([]Plugin, 0, len(plugins))

	var visit func(pl Plugin, chain []string) error
	visit = func(pl Plugin, chain []string) error {
		name := pl.Name()
		switch state[name] {
		case visited:
			return nil
		case visiting:
			return &CycleError{Chain: append(chain, name)}
		}
		state[name] = visiting
		chain = append(chain, name)

		if dep, ok := pl.(Depender); ok {
			for _, d := range dep.Dependencies() {
				target, ok := byName[d]
				if !ok {
					continue // missing deps already warned about
				}
				if err := visit(target, chain); err != nil {
					return err
				}
			}
		}

		state[name] = visited
		ordered = append(ordered, pl)
		return nil
	}

	for _, pl := range plugins {
		if err := visit(pl, nil); err != nil {
			return nil, err
		}
	}
	return ordered, nil
}

// buildEventLists precomputes per-event handler lists in priority order.
func (p *Pipeline) buildEventLists() {
	byPriority := append([]Plugin(nil), p.ordered...)
	sort.SliceStable(byPriority, func(i, j int) bool {
		return priorityOf(byPriority[i]) > priorityOf(byPriority[j])
	})

	for _, pl := range byPriority {
		if h, ok := pl.(PushHandler); ok {
			p.push = append(p.push, h)
		}
		if h, ok := pl.(UndoHandler); ok {
			p.undo = append(p.undo, h)
		}
		if h, ok := pl.(RedoHandler); ok {
			p.redo = append(p.redo, h)
		}
		if h, ok := pl.(ClearHandler); ok {
			p.clear = append(p.clear, h)
		}
		if h, ok := pl.(GCHandler); ok {
			p.gc = append(p.gc, h)
		}
		if h, ok := pl.(StateChangeHandler); ok {
			p.state = append(p.state, h)
		}
		if h, ok := pl.(MemoryWarningHandler); ok {
			p.memory = append(p.memory, h)
		}
		if h, ok := pl.(DebugReporter); ok {
			p.reporters = append(p.reporters, h)
		}
	}
}

func priorityOf(pl Plugin) int {
	if pr, ok := pl.(Prioritizer); ok {
		return pr.Priority()
	}
	return 0
}

// Plugins returns the plugins in dependency order.
func (p *Pipeline) Plugins() []Plugin {
	return append([]Plugin(nil), p.ordered...)
}

// EmitInit notifies plugins of the initial state, in dependency order: a
// plugin always initializes after everything it depends on.
func (p *Pipeline) EmitInit(state any) {
	for _, pl := range p.ordered {
		h, ok := pl.(InitHandler)
		if !ok {
			continue
		}
		p.invoke(pl, eventInit, func() error { return h.OnInit(state) })
	}
}

// EmitPush notifies push handlers.
func (p *Pipeline) EmitPush(ev PushEvent) {
	for _, h := range p.push {
		p.invoke(h.(Plugin), eventPush, func() error { return h.OnActionPush(ev) })
	}
}

// EmitUndo notifies undo handlers.
func (p *Pipeline) EmitUndo(ev UndoEvent) {
	for _, h := range p.undo {
		p.invoke(h.(Plugin), eventUndo, func() error { return h.OnUndo(ev) })
	}
}

// EmitRedo notifies redo handlers.
func (p *Pipeline) EmitRedo(ev RedoEvent) {
	for _, h := range p.redo {
		p.invoke(h.(Plugin), eventRedo, func() error { return h.OnRedo(ev) })
	}
}

// EmitClear notifies clear handlers.
func (p *Pipeline) EmitClear(ev ClearEvent) {
	for _, h := range p.clear {
		p.invoke(h.(Plugin), eventClear, func() error { return h.OnClear(ev) })
	}
}

// EmitGC notifies GC handlers.
func (p *Pipeline) EmitGC(ev GCEvent) {
	for _, h := range p.gc {
		p.invoke(h.(Plugin), eventGC, func() error { return h.OnGC(ev) })
	}
}

// EmitStateChange notifies state-change handlers.
func (p *Pipeline) EmitStateChange(ev StateChangeEvent) {
	for _, h := range p.state {
		p.invoke(h.(Plugin), eventStateChange, func() error { return h.OnStateChange(ev) })
	}
}

// EmitMemoryWarning notifies memory-warning handlers.
func (p *Pipeline) EmitMemoryWarning(ev MemoryWarningEvent) {
	for _, h := range p.memory {
		p.invoke(h.(Plugin), eventMemoryWarning, func() error { return h.OnMemoryWarning(ev) })
	}
}

// EmitError routes a core operation failure to every error handler.
func (p *Pipeline) EmitError(ev ErrorEvent) {
	for _, pl := range p.ordered {
		h, ok := pl.(ErrorHandler)
		if !ok {
			continue
		}
		p.guardedOnError(pl, h, ev)
	}
}

// DebugInfo aggregates debug state from all reporting plugins.
func (p *Pipeline) DebugInfo() map[string]any {
	if len(p.reporters) == 0 {
		return nil
	}
	out := make(map[string]any, len(p.reporters))
	for _, r := range p.reporters {
		out[r.(Plugin).Name()] = r.DebugInfo()
	}
	return out
}

// invoke runs a single handler with panic recovery. A failure is wrapped in
// *HandlerError, logged, and routed to the plugin's own OnError; it never
// propagates.
func (p *Pipeline) invoke(pl Plugin, event string, fn func() error) {
	err := p.run(pl, event, fn)
	if err == nil {
		return
	}
	p.log.Warn("%v", err)

	if h, ok := pl.(ErrorHandler); ok {
		p.guardedOnError(pl, h, ErrorEvent{Op: event, Err: err})
	}
}

func (p *Pipeline) run(pl Plugin, event string, fn func() error) (herr *HandlerError) {
	defer func() {
		if r := recover(); r != nil {
			herr = &HandlerError{
				Plugin:   pl.Name(),
				Event:    event,
				Err:      fmt.Errorf("%v", r),
				Panicked: true,
			}
			p.log.Error("plugin %q panic in %s: %v\n%s", pl.Name(), event, r, debug.Stack())
		}
	}()

	if err := fn(); err != nil {
		return &HandlerError{Plugin: pl.Name(), Event: event, Err: err}
	}
	return nil
}

// guardedOnError calls OnError with its own recovery; a broken error handler
// must not take anything else down.
func (p *Pipeline) guardedOnError(pl Plugin, h ErrorHandler, ev ErrorEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("plugin %q panic in error handler: %v", pl.Name(), r)
		}
	}()
	h.OnError(ev)
}
