package memory

import (
	"reflect"
	"testing"
)

func samePointer(a, b any) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

func TestSelectiveCloneCacheHit(t *testing.T) {
	m := NewManager(nil)
	state := map[string]any{"hot": map[string]any{"v": 1}, "cold": "x"}
	paths := []string{"hot"}

	first := m.SelectiveClone(state, paths)
	second := m.SelectiveClone(state, paths)
	if !samePointer(first, second) {
		t.Error("repeated clone of same input and paths should hit the cache")
	}
}

func TestSelectiveCloneCacheMissOnPaths(t *testing.T) {
	m := NewManager(nil)
	state := map[string]any{"a": map[string]any{"v": 1}, "b": map[string]any{"v": 2}}

	first := m.SelectiveClone(state, []string{"a"})
	second := m.SelectiveClone(state, []string{"b"})
	if samePointer(first, second) {
		t.Error("different path sets should miss the cache")
	}
}

func TestSelectiveCloneCacheMissOnInput(t *testing.T) {
	m := NewManager(nil)
	paths := []string{"a"}
	s1 := map[string]any{"a": map[string]any{"v": 1}}
	s2 := map[string]any{"a": map[string]any{"v": 1}}

	first := m.SelectiveClone(s1, paths)
	second := m.SelectiveClone(s2, paths)
	if samePointer(first, second) {
		t.Error("different inputs should miss the cache")
	}
}

func TestInvalidateCache(t *testing.T) {
	m := NewManager(nil)
	state := map[string]any{"a": map[string]any{"v": 1}}
	paths := []string{"a"}

	first := m.SelectiveClone(state, paths)
	m.InvalidateCache()
	second := m.SelectiveClone(state, paths)
	if samePointer(first, second) {
		t.Error("invalidation should force a fresh clone")
	}
}

func TestSelectiveCloneUncacheableInput(t *testing.T) {
	m := NewManager(nil)
	if got := m.SelectiveClone("scalar", []string{"a"}); got != "scalar" {
		t.Errorf("got %v, want input unchanged", got)
	}
}
