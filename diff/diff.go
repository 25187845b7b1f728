// Package diff computes and applies path-level patches between two state
// snapshots.
//
// State is expected to be built from plain composable values: map[string]any,
// []any, and scalars. The values must be acyclic; a cyclic graph trips the
// depth guard and is reported as an unsupported value. Map keys must not
// contain '.' since paths are dot-separated.
package diff

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Common errors for diff operations.
var (
	// ErrUnsupportedValue indicates a value that cannot be diffed or cloned,
	// such as a function, channel, or a structure deeper than the cycle guard
	// allows.
	ErrUnsupportedValue = errors.New("unsupported value")
)

// maxDepth bounds recursion. Plain state never gets close; a cyclic graph
// does, and is reported instead of looping forever.
const maxDepth = 128

// Op is a single patch operation: set a value at a path, or delete the key at
// a path. An empty path addresses the whole state.
type Op struct {
	Path   string
	Value  any
	Delete bool
}

// Patch is an ordered list of operations transforming one snapshot into
// another.
type Patch struct {
	Ops []Op
}

// IsEmpty returns true if the patch contains no operations.
func (p Patch) IsEmpty() bool {
	return len(p.Ops) == 0
}

// Diff describes the differences between two snapshots.
// Forward transforms prev into next; Reverse transforms next back into prev.
type Diff struct {
	Paths   []string
	Forward Patch
	Reverse Patch
}

// Analyze computes the path-level differences between prev and next.
// It is deterministic: identical input pairs always yield identical path
// sets, because map keys are visited in sorted order.
func Analyze(prev, next any) (Diff, error) {
	var d Diff
	if err := analyzeValue("", prev, next, &d, 0); err != nil {
		return Diff{}, err
	}
	return d, nil
}

func analyzeValue(path string, prev, next any, d *Diff, depth int) error {
	if depth > maxDepth {
		return fmt.Errorf("%w: depth limit exceeded at %q (cyclic state?)", ErrUnsupportedValue, path)
	}
	if err := checkSupported(prev); err != nil {
		return fmt.Errorf("%s: %w", pathLabel(path), err)
	}
	if err := checkSupported(next); err != nil {
		return fmt.Errorf("%s: %w", pathLabel(path), err)
	}

	pm, pIsMap := prev.(map[string]any)
	nm, nIsMap := next.(map[string]any)
	if pIsMap && nIsMap {
		return analyzeMaps(path, pm, nm, d, depth)
	}

	ps, pIsSlice := prev.([]any)
	ns, nIsSlice := next.([]any)
	if pIsSlice && nIsSlice && len(ps) == len(ns) {
		for i := range ps {
			if err := analyzeValue(joinPath(path, strconv.Itoa(i)), ps[i], ns[i], d, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	// Scalars, mismatched kinds, or slices of different length: treat the
	// whole subtree at this path as replaced.
	if !reflect.DeepEqual(prev, next) {
		d.record(path,
			Op{Path: path, Value: next},
			Op{Path: path, Value: prev})
	}
	return nil
}

func analyzeMaps(path string, prev, next map[string]any, d *Diff, depth int) error {
	keys := make([]string, 0, len(prev)+len(next))
	seen := make(map[string]bool, len(prev)+len(next))
	for k := range prev {
		keys = append(keys, k)
		seen[k] = true
	}
	for k := range next {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		child := joinPath(path, k)
		pv, inPrev := prev[k]
		nv, inNext := next[k]
		switch {
		case !inPrev:
			// Added: forward sets it, reverse removes it.
			d.record(child,
				Op{Path: child, Value: nv},
				Op{Path: child, Delete: true})
		case !inNext:
			// Removed: forward removes it, reverse restores it.
			d.record(child,
				Op{Path: child, Delete: true},
				Op{Path: child, Value: pv})
		default:
			if err := analyzeValue(child, pv, nv, d, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d *Diff) record(path string, forward, reverse Op) {
	d.Paths = append(d.Paths, path)
	d.Forward.Ops = append(d.Forward.Ops, forward)
	d.Reverse.Ops = append(d.Reverse.Ops, reverse)
}

// Apply applies a patch to a state snapshot and returns the new state.
// The input state is never mutated; containers along each op path are copied,
// everything else is shared with the input.
func Apply(state any, p Patch) any {
	out := state
	for _, op := range p.Ops {
		out = applyOp(out, splitPath(op.Path), op)
	}
	return out
}

func applyOp(cur any, parts []string, op Op) any {
	if len(parts) == 0 {
		if op.Delete {
			return nil
		}
		return Clone(op.Value)
	}

	head := parts[0]
	switch c := cur.(type) {
	case map[string]any:
		cp := make(map[string]any, len(c))
		for k, v := range c {
			cp[k] = v
		}
		if len(parts) == 1 && op.Delete {
			delete(cp, head)
			return cp
		}
		cp[head] = applyOp(cp[head], parts[1:], op)
		return cp

	case []any:
		idx, err := strconv.Atoi(head)
		if err != nil || idx < 0 || idx >= len(c) {
			return cur
		}
		cp := make([]any, len(c))
		copy(cp, c)
		cp[idx] = applyOp(cp[idx], parts[1:], op)
		return cp

	default:
		if op.Delete {
			return cur
		}
		// Path descends into a missing container: build it.
		cp := make(map[string]any, 1)
		cp[head] = applyOp(nil, parts[1:], op)
		return cp
	}
}

// checkSupported rejects values that cannot be diffed, cloned, or serialized.
func checkSupported(v any) error {
	if v == nil {
		return nil
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
	return nil
}

func joinPath(base, key string) string {
	if base == "" {
		return key
	}
	return base + "." + key
}

func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

func pathLabel(path string) string {
	if path == "" {
		return "root"
	}
	return path
}
