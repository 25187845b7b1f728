// Package memory estimates action sizes and enforces memory and count budgets
// for the history stack through trimming and garbage collection.
package memory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dshills/rewind/action"
	"github.com/dshills/rewind/diff"
	"github.com/dshills/rewind/logging"
)

// closureOverhead is the fixed cost charged per captured closure.
const closureOverhead = 256

// unknownArgCost is charged for an argument that cannot be serialized.
const unknownArgCost = 64

const (
	// longTermThreshold is the past length beyond which entries are split
	// into long-term and recent tiers during GC.
	longTermThreshold = 50
	// recentWindow is how many trailing entries stay in the recent tier.
	recentWindow = 20
	// minFreedBytes is the GC yield below which fallback eviction kicks in.
	minFreedBytes = 100 * 1024
	// fallbackLength is the past length required for fallback eviction.
	fallbackLength = 100
	// aggressiveArgCap caps the argument count for long-term entries.
	aggressiveArgCap = 2
)

// Usage reports the estimated memory footprint of the history stacks.
type Usage struct {
	PastSize          int
	FutureSize        int
	EstimatedBytes    int
	ActionCount       int
	AverageActionSize int
	LargestSize       int
	LargestLabel      string
}

// GCOptions configures a garbage-collection pass.
type GCOptions struct {
	// MemoryBasedLimit selects trimming by byte budget instead of count.
	MemoryBasedLimit bool
	// MaxMemoryBytes is the byte budget for the past list when
	// MemoryBasedLimit is set.
	MaxMemoryBytes int
	// MaxHistory is the flat count cap used otherwise.
	MaxHistory int
	// LargeActionKB is the threshold above which actions are optimized for
	// storage.
	LargeActionKB int
}

// GCResult is the outcome of a garbage-collection pass.
type GCResult struct {
	Past       []*action.Action
	Future     []*action.Action
	FreedBytes int
}

// Manager owns size estimation and the single-slot selective-clone cache.
// It is not safe for concurrent use; the history stack serializes access.
type Manager struct {
	log   *logging.Logger
	cache cloneCache
}

// NewManager creates a memory manager.
func NewManager(log *logging.Logger) *Manager {
	if log == nil {
		log = logging.NullLogger
	}
	return &Manager{log: log.WithComponent("memory")}
}

// EstimateSize approximates the byte cost of an action: serialized args plus
// label and path lengths at two bytes per character, plus a fixed overhead
// for the captured closures. The result is cached on the action.
func (m *Manager) EstimateSize(a *action.Action) int {
	if a.Size > 0 {
		return a.Size
	}

	n := 2 * closureOverhead
	for _, arg := range a.Args {
		if data, err := json.Marshal(arg); err == nil {
			n += len(data)
		} else {
			n += unknownArgCost
		}
	}
	n += 2 * len(a.Label)
	for _, p := range a.TargetPaths {
		n += 2 * len(p)
	}

	a.Size = n
	return n
}

// Total sums the estimated sizes of both lists and reports the single
// largest action for diagnostics.
func (m *Manager) Total(past, future []*action.Action) Usage {
	u := Usage{
		PastSize:   len(past),
		FutureSize: len(future),
	}
	for _, lst := range [][]*action.Action{past, future} {
		for _, a := range lst {
			size := m.EstimateSize(a)
			u.EstimatedBytes += size
			u.ActionCount++
			if size > u.LargestSize {
				u.LargestSize = size
				u.LargestLabel = a.Label
			}
		}
	}
	if u.ActionCount > 0 {
		u.AverageActionSize = u.EstimatedBytes / u.ActionCount
	}
	return u
}

// TrimByMemory evicts the oldest entries until the list fits the byte budget
// or exactly one entry remains. It returns the trimmed list and the number
// of bytes freed.
func (m *Manager) TrimByMemory(entries []*action.Action, budgetBytes int) ([]*action.Action, int) {
	total := 0
	for _, a := range entries {
		total += m.EstimateSize(a)
	}

	freed := 0
	for len(entries) > 1 && total > budgetBytes {
		size := m.EstimateSize(entries[0])
		total -= size
		freed += size
		entries = entries[1:]
	}
	return entries, freed
}

// TrimByCount evicts the oldest entries beyond the count cap.
func (m *Manager) TrimByCount(entries []*action.Action, max int) ([]*action.Action, int) {
	if max <= 0 || len(entries) <= max {
		return entries, 0
	}
	freed := 0
	excess := len(entries) - max
	for _, a := range entries[:excess] {
		freed += m.EstimateSize(a)
	}
	return entries[excess:], freed
}

// OptimizeForStorage replaces the arguments of actions above the threshold
// with lightweight reference stubs and records a content hash. The do/undo
// closures keep their own captures, so runtime behavior is unchanged; only
// the accounted footprint shrinks.
func (m *Manager) OptimizeForStorage(a *action.Action, thresholdKB int) {
	if thresholdKB <= 0 || len(a.Args) == 0 {
		return
	}
	if m.EstimateSize(a) <= thresholdKB*1024 {
		return
	}
	m.stubArgs(a, len(a.Args))
}

// stubArgs replaces up to keep arguments with reference stubs and drops the
// rest, then invalidates the cached size. An argument already smaller than
// its stub is kept as is, so stubbing never grows the accounted size.
func (m *Manager) stubArgs(a *action.Action, keep int) {
	if a.Meta.Hash == "" {
		a.Meta.Hash = diff.Hash(a.Args)
	}
	if keep > len(a.Args) {
		keep = len(a.Args)
	}
	stubs := make([]any, keep)
	for i := 0; i < keep; i++ {
		stub := map[string]any{
			"type": fmt.Sprintf("%T", a.Args[i]),
			"ref":  true,
		}
		if encodedLen(stub) >= encodedLen(a.Args[i]) {
			stubs[i] = a.Args[i]
			continue
		}
		stubs[i] = stub
	}
	a.Args = stubs
	a.Size = 0
}

// encodedLen is the serialized size an argument contributes to the estimate.
func encodedLen(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return unknownArgCost
	}
	return len(data)
}

// GC performs one garbage-collection pass over both lists.
//
// Future entries are always optimized for storage (low reuse probability).
// The past list is trimmed by byte budget or count cap, then long histories
// are split into a long-term tier (aggressively optimized, arguments
// truncated) and a recent tier (standard optimization). If the pass freed
// too little on a very long history, the oldest tenth is evicted outright.
func (m *Manager) GC(past, future []*action.Action, opts GCOptions) GCResult {
	before := m.Total(past, future).EstimatedBytes

	threshold := opts.LargeActionKB
	if threshold <= 0 {
		threshold = 1
	}
	for _, a := range future {
		m.OptimizeForStorage(a, threshold)
	}

	if opts.MemoryBasedLimit {
		past, _ = m.TrimByMemory(past, opts.MaxMemoryBytes)
	} else {
		past, _ = m.TrimByCount(past, opts.MaxHistory)
	}

	if len(past) > longTermThreshold {
		split := len(past) - recentWindow
		for _, a := range past[:split] {
			if len(a.Args) > 0 {
				m.stubArgs(a, aggressiveArgCap)
			}
		}
		for _, a := range past[split:] {
			m.OptimizeForStorage(a, threshold)
		}
	}

	after := m.Total(past, future).EstimatedBytes
	freed := before - after

	if freed < minFreedBytes && len(past) > fallbackLength {
		evict := len(past) / 10
		for _, a := range past[:evict] {
			freed += m.EstimateSize(a)
		}
		past = past[evict:]
		m.log.Debug("gc fallback evicted %d oldest entries", evict)
	}

	return GCResult{Past: past, Future: future, FreedBytes: freed}
}

// AdjustedInterval adapts the GC cadence to history pressure: long histories
// collect more often, short ones less.
func AdjustedInterval(length int, base time.Duration) time.Duration {
	switch {
	case length > 200:
		return base / 2
	case length > 100:
		return base * 3 / 4
	case length < 20:
		return base * 2
	default:
		return base
	}
}
