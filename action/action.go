// Package action builds reversible state transitions for the history stack.
//
// An Action pairs a do function with an undo function. Actions are created
// either from explicit closures (New) or from a diff between two snapshots
// (NewDiff). Captured arguments are deep-cloned at creation so later external
// mutation cannot alter replay.
package action

import (
	"fmt"
	"time"

	"github.com/dshills/rewind/diff"
)

// Fn is a do or undo function. It receives the action's captured arguments
// and returns the resulting state.
type Fn func(args ...any) (any, error)

// Meta holds bookkeeping recorded on every action.
type Meta struct {
	// Timestamp is when the action was created.
	Timestamp time.Time
	// Compressed marks an entry produced by collapsing consecutive
	// same-label pushes.
	Compressed bool
	// Hash is the content hash recorded when arguments are replaced by
	// reference stubs during storage optimization.
	Hash string
}

// Action is a reversible state transition.
type Action struct {
	// DoFn applies the transition and returns the new state.
	DoFn func() (any, error)
	// UndoFn reverses the transition and returns the prior state.
	UndoFn func() (any, error)
	// Label names the action for compression, seeking, and diagnostics.
	Label string
	// Args are the captured arguments, deep-cloned at creation. The memory
	// manager may replace them with lightweight stubs; the closures keep
	// their own references and are unaffected.
	Args []any
	// IsMutation is true for diff-based actions.
	IsMutation bool
	// TargetPaths lists the changed paths for diff-based actions.
	TargetPaths []string
	// Size is the cached byte estimate. Zero means not yet estimated.
	Size int
	// Meta carries creation time, compression, and hash bookkeeping.
	Meta Meta
}

// Do applies the action and returns the resulting state.
func (a *Action) Do() (any, error) {
	if a.DoFn == nil {
		return nil, nil
	}
	return a.DoFn()
}

// Undo reverses the action and returns the prior state.
func (a *Action) Undo() (any, error) {
	if a.UndoFn == nil {
		return nil, nil
	}
	return a.UndoFn()
}

// New creates an action from explicit do/undo functions.
// The args are deep-cloned before capture; both closures receive the clones.
func New(do, undo Fn, label string, args ...any) *Action {
	cloned := make([]any, len(args))
	for i, arg := range args {
		cloned[i] = diff.Clone(arg)
	}

	a := &Action{
		Label: label,
		Args:  cloned,
		Meta:  Meta{Timestamp: time.Now()},
	}
	a.DoFn = func() (any, error) {
		return do(cloned...)
	}
	a.UndoFn = func() (any, error) {
		return undo(cloned...)
	}
	return a
}

// NewDiff creates an action from the differences between two snapshots.
//
// Zero changed paths yield a no-op action labeled "(no changes)". A diff
// failure (unsupported or cyclic state) falls back to a whole-snapshot action
// labeled "(full state)"; it never surfaces to the caller. Otherwise the
// action applies the forward patch on do and returns the prior snapshot on
// undo, with TargetPaths set to the changed paths.
func NewDiff(prev, next any, label string) *Action {
	d, err := diff.Analyze(prev, next)
	if err != nil {
		return newSnapshotAction(prev, next, label)
	}

	if len(d.Paths) == 0 {
		cur := diff.Clone(next)
		a := &Action{
			Label: label + " (no changes)",
			Meta:  Meta{Timestamp: time.Now()},
		}
		a.DoFn = func() (any, error) { return cur, nil }
		a.UndoFn = func() (any, error) { return cur, nil }
		return a
	}

	base := diff.Clone(prev)
	a := &Action{
		Label:       label,
		Args:        []any{d.Forward, d.Reverse},
		IsMutation:  true,
		TargetPaths: append([]string(nil), d.Paths...),
		Meta:        Meta{Timestamp: time.Now()},
	}
	a.DoFn = func() (any, error) {
		return diff.Apply(base, d.Forward), nil
	}
	a.UndoFn = func() (any, error) {
		return base, nil
	}
	return a
}

// newSnapshotAction captures both snapshots whole. Used when diffing fails.
func newSnapshotAction(prev, next any, label string) *Action {
	prevC := diff.Clone(prev)
	nextC := diff.Clone(next)
	a := &Action{
		Label: label + " (full state)",
		Meta:  Meta{Timestamp: time.Now()},
	}
	a.DoFn = func() (any, error) { return nextC, nil }
	a.UndoFn = func() (any, error) { return prevC, nil }
	return a
}

// Batch composes child actions into a single action. Its do replays the
// children in order; its undo reverses them in strict reverse order. A
// failing child aborts the remainder and surfaces the error; already-applied
// children are not rolled back.
func Batch(children []*Action, label string) *Action {
	kids := append([]*Action(nil), children...)
	a := &Action{
		Label: label,
		Meta:  Meta{Timestamp: time.Now()},
	}
	a.DoFn = func() (any, error) {
		var out any
		for i, child := range kids {
			var err error
			out, err = child.Do()
			if err != nil {
				return nil, fmt.Errorf("batch %q step %d (%s): %w", label, i, child.Label, err)
			}
		}
		return out, nil
	}
	a.UndoFn = func() (any, error) {
		var out any
		for i := len(kids) - 1; i >= 0; i-- {
			var err error
			out, err = kids[i].Undo()
			if err != nil {
				return nil, fmt.Errorf("undo batch %q step %d (%s): %w", label, i, kids[i].Label, err)
			}
		}
		return out, nil
	}
	return a
}
