// Package rewind implements a differential undo/redo history engine.
//
// A Stack records reversible state transitions as actions, keeps them within
// a configurable memory budget, and lets callers travel backward and forward
// through history. State is expected to be acyclic, structurally clonable
// data (maps, slices, scalars).
//
// Execution is single-threaded and cooperative: every operation runs
// synchronously on the caller's goroutine. The busy phase is a reentrancy
// guard that blocks undo/redo issued from inside a running do or undo
// function; it is not a cross-goroutine lock. Stacks are independent
// instances with no shared global state.
//
// States returned by Push, Undo, Redo, and Current are shared, not copied;
// callers must treat them as immutable.
package rewind

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/rewind/action"
	"github.com/dshills/rewind/diff"
	"github.com/dshills/rewind/logging"
	"github.com/dshills/rewind/memory"
	"github.com/dshills/rewind/plugin"
	"github.com/dshills/rewind/sched"
)

// phase is the stack's two-state execution machine.
type phase int

const (
	phaseIdle phase = iota
	phaseBusy
)

// Stack owns the past and future action lists and coordinates the action
// factory, memory manager, and plugin pipeline.
type Stack struct {
	id   string
	opts Options
	log  *logging.Logger

	mu      sync.Mutex
	phase   phase
	past    []*action.Action
	future  []*action.Action
	current any
	lastOp  string
	records []OperationRecord
	warned  bool

	mem      *memory.Manager
	pipeline *plugin.Pipeline
	sched    *sched.Scheduler
}

// New creates a history stack around the initial state.
// It fails only when the configured plugins declare a dependency cycle.
func New(initial any, opts Options) (*Stack, error) {
	opts = opts.withDefaults()

	pipeline, err := plugin.NewPipeline(opts.Plugins, opts.Logger)
	if err != nil {
		return nil, err
	}

	s := &Stack{
		id:       uuid.NewString(),
		opts:     opts,
		log:      opts.Logger.WithComponent("history"),
		current:  initial,
		mem:      memory.NewManager(opts.Logger),
		pipeline: pipeline,
	}
	if opts.GCInterval > 0 {
		s.sched = sched.NewScheduler()
	}

	pipeline.EmitInit(initial)
	return s, nil
}

// ID returns the unique identifier of this stack instance.
func (s *Stack) ID() string {
	return s.id
}

// Push creates an action from the do/undo functions and executes it.
// The args are deep-cloned at capture; see action.New.
func (s *Stack) Push(do, undo action.Fn, label string, args ...any) (any, error) {
	return s.PushAction(action.New(do, undo, label, args...))
}

// PushDiff records the transition from prev to next as a diff-based action
// and executes it. See action.NewDiff for the fallback behavior.
func (s *Stack) PushDiff(prev, next any, label string) (any, error) {
	return s.PushAction(action.NewDiff(prev, next, label))
}

// PushAction executes the action's do function synchronously and records it.
// A successful push clears the future list, enforces memory and count
// limits, and schedules garbage collection. A failing do function
// propagates as *ExecError and records nothing.
func (s *Stack) PushAction(a *action.Action) (any, error) {
	if a == nil {
		return s.Current(), nil
	}

	s.mu.Lock()
	if s.phase == phaseBusy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	s.phase = phaseBusy
	s.mu.Unlock()

	tok := sched.StartTimer()
	out, err := a.Do()

	s.mu.Lock()
	s.phase = phaseIdle
	if err != nil {
		s.mu.Unlock()
		s.pipeline.EmitError(plugin.ErrorEvent{Op: "push", Err: err})
		return nil, &ExecError{Op: "push", Label: a.Label, Err: err}
	}

	s.current = out
	if s.opts.Compress && a.Label != "" && len(s.past) > 0 && s.past[len(s.past)-1].Label == a.Label {
		s.compressLocked(a)
	} else {
		s.past = append(s.past, a)
	}
	s.future = nil
	warn := s.enforceLimitsLocked()
	s.recordLocked(OpPush, a.Label, s.mem.EstimateSize(a), sched.EndTimer(tok))
	s.mu.Unlock()

	s.pipeline.EmitPush(plugin.PushEvent{Action: a, State: out})
	s.pipeline.EmitStateChange(plugin.StateChangeEvent{State: out})
	if warn > 0 {
		s.pipeline.EmitMemoryWarning(plugin.MemoryWarningEvent{EstimatedBytes: warn})
	}
	s.scheduleGC()
	return out, nil
}

// compressLocked collapses the new action into the last past entry: the
// merged entry applies the new do but keeps the oldest undo, so a single
// undo steps back over the whole run of same-label pushes.
func (s *Stack) compressLocked(a *action.Action) {
	prev := s.past[len(s.past)-1]
	merged := &action.Action{
		DoFn:        a.DoFn,
		UndoFn:      prev.UndoFn,
		Label:       a.Label,
		Args:        a.Args,
		IsMutation:  a.IsMutation,
		TargetPaths: a.TargetPaths,
		Meta:        a.Meta,
	}
	merged.Meta.Compressed = true
	s.past[len(s.past)-1] = merged
}

// Undo reverses the most recent past action and moves it to the future list.
// Returns ErrNothingToUndo on an empty past list and ErrBusy when called
// from inside a running do/undo. A failing undo function propagates as
// *ExecError with the entry restored.
func (s *Stack) Undo() (any, error) {
	s.mu.Lock()
	if s.phase == phaseBusy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if len(s.past) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingToUndo
	}
	entry := s.past[len(s.past)-1]
	s.past = s.past[:len(s.past)-1]
	s.phase = phaseBusy
	s.mu.Unlock()

	tok := sched.StartTimer()
	out, err := entry.Undo()

	s.mu.Lock()
	s.phase = phaseIdle
	if err != nil {
		// Restore entry on failure
		s.past = append(s.past, entry)
		s.mu.Unlock()
		s.pipeline.EmitError(plugin.ErrorEvent{Op: "undo", Err: err})
		return nil, &ExecError{Op: "undo", Label: entry.Label, Err: err}
	}
	s.current = out
	s.future = append([]*action.Action{entry}, s.future...)
	s.recordLocked(OpUndo, entry.Label, s.mem.EstimateSize(entry), sched.EndTimer(tok))
	s.mu.Unlock()

	s.pipeline.EmitUndo(plugin.UndoEvent{Action: entry, State: out})
	s.pipeline.EmitStateChange(plugin.StateChangeEvent{State: out})
	return out, nil
}

// Redo reapplies the first future action and moves it back to the past list.
// Symmetric to Undo; limits are re-enforced after the move.
func (s *Stack) Redo() (any, error) {
	s.mu.Lock()
	if s.phase == phaseBusy {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	if len(s.future) == 0 {
		s.mu.Unlock()
		return nil, ErrNothingToRedo
	}
	entry := s.future[0]
	s.future = s.future[1:]
	s.phase = phaseBusy
	s.mu.Unlock()

	tok := sched.StartTimer()
	out, err := entry.Do()

	s.mu.Lock()
	s.phase = phaseIdle
	if err != nil {
		s.future = append([]*action.Action{entry}, s.future...)
		s.mu.Unlock()
		s.pipeline.EmitError(plugin.ErrorEvent{Op: "redo", Err: err})
		return nil, &ExecError{Op: "redo", Label: entry.Label, Err: err}
	}
	s.current = out
	s.past = append(s.past, entry)
	warn := s.enforceLimitsLocked()
	s.recordLocked(OpRedo, entry.Label, s.mem.EstimateSize(entry), sched.EndTimer(tok))
	s.mu.Unlock()

	s.pipeline.EmitRedo(plugin.RedoEvent{Action: entry, State: out})
	s.pipeline.EmitStateChange(plugin.StateChangeEvent{State: out})
	if warn > 0 {
		s.pipeline.EmitMemoryWarning(plugin.MemoryWarningEvent{EstimatedBytes: warn})
	}
	return out, nil
}

// Batch composes the actions into one history entry whose undo reverses all
// children in strict reverse order.
func (s *Stack) Batch(actions []*action.Action, label string) (any, error) {
	if len(actions) == 0 {
		return s.Current(), nil
	}
	return s.PushAction(action.Batch(actions, label))
}

// Clear severs references held by history entries, empties both lists, and
// triggers one garbage-collection pass. Calling it repeatedly is harmless.
func (s *Stack) Clear() {
	s.mu.Lock()
	for _, a := range s.past {
		a.Args = nil
	}
	for _, a := range s.future {
		a.Args = nil
	}
	s.past, s.future = nil, nil
	s.warned = false
	s.recordLocked(OpClear, "", 0, 0)
	s.mu.Unlock()

	s.pipeline.EmitClear(plugin.ClearEvent{})
	s.runGC()
}

// Close stops the scheduler. The stack remains usable; GC falls back to
// running inline.
func (s *Stack) Close() {
	if s.sched != nil {
		s.sched.Stop()
	}
}

// enforceLimitsLocked trims the past list to the configured budget and
// reports the total byte estimate when it first crosses the warning
// threshold (zero otherwise). After enforcement the combined estimate fits
// the budget unless only one past entry remains.
func (s *Stack) enforceLimitsLocked() int {
	if s.opts.MemoryBasedLimit {
		futureBytes := 0
		for _, a := range s.future {
			futureBytes += s.mem.EstimateSize(a)
		}
		s.past, _ = s.mem.TrimByMemory(s.past, s.opts.maxMemoryBytes()-futureBytes)
	} else if len(s.past) > s.opts.MaxHistory {
		s.past, _ = s.mem.TrimByCount(s.past, s.opts.MaxHistory)
	}

	total := s.mem.Total(s.past, s.future).EstimatedBytes
	threshold := int(float64(s.opts.maxMemoryBytes()) * s.opts.MemoryThreshold)
	if total > threshold {
		if !s.warned {
			s.warned = true
			return total
		}
	} else {
		s.warned = false
	}
	return 0
}

// recordLocked appends an operation record, keeping the ring capped.
func (s *Stack) recordLocked(t OpType, label string, size int, d time.Duration) {
	s.lastOp = string(t)
	s.records = append(s.records, OperationRecord{
		ID:          uuid.NewString(),
		Type:        t,
		Timestamp:   time.Now(),
		Duration:    d,
		MemoryBytes: s.mem.Total(s.past, s.future).EstimatedBytes,
		Label:       label,
		ActionSize:  size,
	})
	if len(s.records) > maxRecords {
		s.records = s.records[len(s.records)-maxRecords:]
	}
}

// scheduleGC schedules a garbage-collection pass at the adaptive interval.
// Re-scheduling debounces: a pending pass for this stack is replaced.
// Without a scheduler the pass runs inline.
func (s *Stack) scheduleGC() {
	if s.sched == nil {
		s.runGC()
		return
	}
	s.mu.Lock()
	n := len(s.past)
	s.mu.Unlock()
	s.sched.Schedule("gc", s.runGC, memory.AdjustedInterval(n, s.opts.GCInterval))
}

func (s *Stack) runGC() {
	s.mu.Lock()
	res := s.mem.GC(s.past, s.future, memory.GCOptions{
		MemoryBasedLimit: s.opts.MemoryBasedLimit,
		MaxMemoryBytes:   s.opts.maxMemoryBytes(),
		MaxHistory:       s.opts.MaxHistory,
		LargeActionKB:    s.opts.LargeActionThreshold,
	})
	s.past, s.future = res.Past, res.Future
	s.mu.Unlock()

	s.pipeline.EmitGC(plugin.GCEvent{FreedBytes: res.FreedBytes})
	if res.FreedBytes > 0 {
		s.log.Debug("gc freed %d bytes", res.FreedBytes)
	}
}

// Current returns the current state. The value is shared, not copied;
// treat it as immutable.
func (s *Stack) Current() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Snapshot returns a copy of the current state. Without configured
// SelectivePaths the whole state is deep-cloned and the result is the
// caller's to mutate. With SelectivePaths only those subtrees are cloned and
// repeated snapshots of an unchanged state return the same memoized value;
// treat selective snapshots as immutable, like the states returned by Push,
// Undo, and Redo.
func (s *Stack) Snapshot() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.opts.SelectivePaths) > 0 {
		return s.mem.SelectiveClone(s.current, s.opts.SelectivePaths)
	}
	return diff.Clone(s.current)
}

// State returns a summary of the stack.
func (s *Stack) State() HistoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	idle := s.phase == phaseIdle
	return HistoryState{
		PastCount:     len(s.past),
		FutureCount:   len(s.future),
		CanUndo:       len(s.past) > 0 && idle,
		CanRedo:       len(s.future) > 0 && idle,
		LastOperation: s.lastOp,
	}
}

// History returns a copy of the past entries' metadata, oldest first.
func (s *Stack) History() []ActionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ActionInfo, len(s.past))
	for i, a := range s.past {
		out[i] = ActionInfo{
			Label:       a.Label,
			Timestamp:   a.Meta.Timestamp,
			Size:        s.mem.EstimateSize(a),
			Compressed:  a.Meta.Compressed,
			IsMutation:  a.IsMutation,
			TargetPaths: append([]string(nil), a.TargetPaths...),
		}
	}
	return out
}

// Records returns a copy of the recent operation records, oldest first.
func (s *Stack) Records() []OperationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]OperationRecord(nil), s.records...)
}

// Memory reports the estimated memory footprint of the history.
func (s *Stack) Memory() memory.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mem.Total(s.past, s.future)
}

// DebugInfo aggregates debug state from reporting plugins.
func (s *Stack) DebugInfo() map[string]any {
	return s.pipeline.DebugInfo()
}
