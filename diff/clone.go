package diff

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
)

// Clone creates a deep copy of a state snapshot.
// Maps and slices are copied recursively; scalars are copied by value.
// Values beyond the depth guard (cyclic state) are replaced with nil.
func Clone(v any) any {
	return cloneValue(v, 0)
}

func cloneValue(v any, depth int) any {
	if depth > maxDepth {
		return nil
	}

	switch val := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(val))
		for k, item := range val {
			cp[k] = cloneValue(item, depth+1)
		}
		return cp
	case []any:
		cp := make([]any, len(val))
		for i, item := range val {
			cp[i] = cloneValue(item, depth+1)
		}
		return cp
	case []string:
		cp := make([]string, len(val))
		copy(cp, val)
		return cp
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return cp
	default:
		return v
	}
}

// SelectiveClone deep-clones only the subtrees addressed by the given paths,
// sharing every other part of the state with the input. An empty path list
// returns the input unchanged.
func SelectiveClone(v any, paths []string) any {
	out := v
	for _, p := range paths {
		out = clonePath(out, splitPath(p))
	}
	return out
}

func clonePath(cur any, parts []string) any {
	if len(parts) == 0 {
		return Clone(cur)
	}

	head := parts[0]
	switch c := cur.(type) {
	case map[string]any:
		child, ok := c[head]
		if !ok {
			return cur
		}
		cp := make(map[string]any, len(c))
		for k, v := range c {
			cp[k] = v
		}
		cp[head] = clonePath(child, parts[1:])
		return cp
	case []any:
		idx, err := parseIndex(head, len(c))
		if err != nil {
			return cur
		}
		cp := make([]any, len(c))
		copy(cp, c)
		cp[idx] = clonePath(cp[idx], parts[1:])
		return cp
	default:
		return cur
	}
}

func parseIndex(s string, length int) (int, error) {
	idx := 0
	if _, err := fmt.Sscanf(s, "%d", &idx); err != nil {
		return 0, err
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("index %d out of range", idx)
	}
	return idx, nil
}

// Hash computes a content hash of a state snapshot.
// It is stable across calls for structurally equal values: map keys are
// serialized in sorted order by encoding/json.
func Hash(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		data = []byte(fmt.Sprintf("%#v", v))
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}
