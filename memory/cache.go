package memory

import (
	"reflect"
	"strings"

	"github.com/dshills/rewind/diff"
)

// cloneCache is a single-slot memo for selective clones. It remembers the
// last input (by underlying pointer identity) and path set, so repeated
// selective clones of the same snapshot are free.
type cloneCache struct {
	inputPtr uintptr
	paths    string
	output   any
	valid    bool
}

// SelectiveClone clones only the subtrees addressed by paths, consulting the
// single-slot cache first. Only map and slice roots are cacheable; other
// inputs bypass the cache.
func (m *Manager) SelectiveClone(v any, paths []string) any {
	key := strings.Join(paths, "\x00")
	ptr, ok := pointerOf(v)
	if ok && m.cache.valid && m.cache.inputPtr == ptr && m.cache.paths == key {
		return m.cache.output
	}

	out := diff.SelectiveClone(v, paths)

	if ok {
		m.cache = cloneCache{
			inputPtr: ptr,
			paths:    key,
			output:   out,
			valid:    true,
		}
	}
	return out
}

// InvalidateCache drops the memoized clone.
func (m *Manager) InvalidateCache() {
	m.cache = cloneCache{}
}

// pointerOf returns the underlying data pointer for maps and slices.
func pointerOf(v any) (uintptr, bool) {
	if v == nil {
		return 0, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Pointer:
		return rv.Pointer(), true
	default:
		return 0, false
	}
}
