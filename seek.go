package rewind

import (
	"github.com/dshills/rewind/action"
	"github.com/dshills/rewind/plugin"
)

// UndoUntil undoes entries until the action whose label matches has been
// undone (inclusive), or the past list is exhausted. Returns the resulting
// state. An empty past list is a no-op.
func (s *Stack) UndoUntil(label string) (any, error) {
	out := s.Current()
	for {
		s.mu.Lock()
		if len(s.past) == 0 {
			s.mu.Unlock()
			return out, nil
		}
		next := s.past[len(s.past)-1].Label
		s.mu.Unlock()

		st, err := s.Undo()
		if err != nil {
			return out, err
		}
		out = st
		if next == label {
			return out, nil
		}
	}
}

// UndoTo undoes everything after the given past index, keeping entries
// [0..index]. An index at or beyond the end is a no-op.
func (s *Stack) UndoTo(index int) (any, error) {
	s.mu.Lock()
	k := len(s.past) - index - 1
	s.mu.Unlock()

	out := s.Current()
	for i := 0; i < k; i++ {
		st, err := s.Undo()
		if err != nil {
			return out, err
		}
		out = st
	}
	return out, nil
}

// Checkpoint marks the current history position for a later return.
type Checkpoint struct {
	depth int
}

// CreateCheckpoint records the current past depth.
func (s *Stack) CreateCheckpoint() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Checkpoint{depth: len(s.past)}
}

// UndoToCheckpoint undoes all operations pushed since the checkpoint.
func (s *Stack) UndoToCheckpoint(cp Checkpoint) (any, error) {
	out := s.Current()
	for {
		s.mu.Lock()
		depth := len(s.past)
		s.mu.Unlock()
		if depth <= cp.depth {
			return out, nil
		}
		st, err := s.Undo()
		if err != nil {
			return out, err
		}
		out = st
	}
}

// Rebuild resets the stack to the initial state and replays the recorded
// history through the supplied state setter. A replay failure is logged and
// that action is skipped; one bad action never aborts the whole rebuild.
// The saved future list is restored verbatim.
func (s *Stack) Rebuild(initial any, set func(any)) error {
	s.mu.Lock()
	if s.phase == phaseBusy {
		s.mu.Unlock()
		return ErrBusy
	}
	// Replayed do functions are reentrancy-guarded exactly like a push.
	s.phase = phaseBusy
	savedPast := s.past
	savedFuture := s.future
	s.past, s.future = nil, nil
	s.current = initial
	s.mu.Unlock()

	if set != nil {
		set(initial)
	}

	for _, a := range savedPast {
		out, err := a.Do()
		if err != nil {
			s.log.Warn("rebuild: skipping action %q: %v", a.Label, err)
			continue
		}
		s.mu.Lock()
		s.past = append(s.past, a)
		s.current = out
		s.mu.Unlock()
		if set != nil {
			set(out)
		}
	}

	s.mu.Lock()
	s.phase = phaseIdle
	s.future = savedFuture
	cur := s.current
	s.mu.Unlock()

	s.pipeline.EmitStateChange(plugin.StateChangeEvent{State: cur})
	return nil
}

// pastActions returns a copy of the past list. Test hook for invariants.
func (s *Stack) pastActions() []*action.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*action.Action(nil), s.past...)
}
