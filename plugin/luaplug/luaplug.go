// Package luaplug adapts Lua scripts into history plugins.
//
// A script may declare a numeric `priority` global, a `dependencies` table of
// plugin names, and any of the event functions:
//
//	on_init(state)
//	on_action_push(info, state)
//	on_undo(info, state)
//	on_redo(info, state)
//	on_clear()
//	on_gc(freed_bytes)
//	on_state_change(state)
//	on_error(op, message)
//	on_memory_warning(bytes)
//
// Missing functions are no-ops. A Lua error surfaces as a handler error and
// is isolated by the pipeline like any other plugin failure.
package luaplug

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/rewind/plugin"
)

// Plugin wraps a Lua state as a history plugin. Calls into the script are
// serialized; a Lua state is not safe for concurrent use.
type Plugin struct {
	name     string
	priority int
	deps     []string

	mu sync.Mutex
	L  *lua.LState
}

// Load compiles and runs a Lua chunk and wraps it as a plugin.
func Load(name, source string) (*Plugin, error) {
	L := lua.NewState()
	if err := L.DoString(source); err != nil {
		L.Close()
		return nil, fmt.Errorf("loading lua plugin %q: %w", name, err)
	}

	p := &Plugin{name: name, L: L}

	if n, ok := L.GetGlobal("priority").(lua.LNumber); ok {
		p.priority = int(n)
	}
	if t, ok := L.GetGlobal("dependencies").(*lua.LTable); ok {
		t.ForEach(func(_, v lua.LValue) {
			if s, ok := v.(lua.LString); ok {
				p.deps = append(p.deps, string(s))
			}
		})
	}
	return p, nil
}

// Close releases the Lua state.
func (p *Plugin) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.L.Close()
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.name }

// Priority returns the script-declared priority.
func (p *Plugin) Priority() int { return p.priority }

// Dependencies returns the script-declared dependencies.
func (p *Plugin) Dependencies() []string {
	return append([]string(nil), p.deps...)
}

// call invokes a global Lua function if the script defines it.
func (p *Plugin) call(fn string, args ...any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	f, ok := p.L.GetGlobal(fn).(*lua.LFunction)
	if !ok {
		return nil
	}

	lvs := make([]lua.LValue, len(args))
	for i, arg := range args {
		lvs[i] = toLua(p.L, arg)
	}
	if err := p.L.CallByParam(lua.P{Fn: f, NRet: 0, Protect: true}, lvs...); err != nil {
		return fmt.Errorf("lua %s: %w", fn, err)
	}
	return nil
}

// Get reads a global from the script, converted to a Go value. Useful for
// inspecting script state in tests and diagnostics.
func (p *Plugin) Get(name string) any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fromLua(p.L.GetGlobal(name))
}

// actionInfo builds the table passed to push/undo/redo handlers.
func actionInfo(ev any) map[string]any {
	switch e := ev.(type) {
	case plugin.PushEvent:
		return map[string]any{
			"label": e.Action.Label,
			"paths": e.Action.TargetPaths,
			"size":  e.Action.Size,
		}
	case plugin.UndoEvent:
		return map[string]any{"label": e.Action.Label, "paths": e.Action.TargetPaths}
	case plugin.RedoEvent:
		return map[string]any{"label": e.Action.Label, "paths": e.Action.TargetPaths}
	default:
		return nil
	}
}

// OnInit implements plugin.InitHandler.
func (p *Plugin) OnInit(state any) error {
	return p.call("on_init", state)
}

// OnActionPush implements plugin.PushHandler.
func (p *Plugin) OnActionPush(ev plugin.PushEvent) error {
	return p.call("on_action_push", actionInfo(ev), ev.State)
}

// OnUndo implements plugin.UndoHandler.
func (p *Plugin) OnUndo(ev plugin.UndoEvent) error {
	return p.call("on_undo", actionInfo(ev), ev.State)
}

// OnRedo implements plugin.RedoHandler.
func (p *Plugin) OnRedo(ev plugin.RedoEvent) error {
	return p.call("on_redo", actionInfo(ev), ev.State)
}

// OnClear implements plugin.ClearHandler.
func (p *Plugin) OnClear(plugin.ClearEvent) error {
	return p.call("on_clear")
}

// OnGC implements plugin.GCHandler.
func (p *Plugin) OnGC(ev plugin.GCEvent) error {
	return p.call("on_gc", ev.FreedBytes)
}

// OnStateChange implements plugin.StateChangeHandler.
func (p *Plugin) OnStateChange(ev plugin.StateChangeEvent) error {
	return p.call("on_state_change", ev.State)
}

// OnError implements plugin.ErrorHandler.
func (p *Plugin) OnError(ev plugin.ErrorEvent) {
	_ = p.call("on_error", ev.Op, ev.Err.Error())
}

// OnMemoryWarning implements plugin.MemoryWarningHandler.
func (p *Plugin) OnMemoryWarning(ev plugin.MemoryWarningEvent) error {
	return p.call("on_memory_warning", ev.EstimatedBytes)
}
