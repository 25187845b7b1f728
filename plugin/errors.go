package plugin

import (
	"fmt"
	"strings"
)

// CycleError reports a dependency cycle among registered plugins. It is
// returned at pipeline construction; a cycle is a configuration bug, not a
// runtime condition.
type CycleError struct {
	Chain []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("plugin dependency cycle: %s", strings.Join(e.Chain, " -> "))
}

// HandlerError wraps a failure from a single plugin handler.
type HandlerError struct {
	Plugin   string
	Event    string
	Err      error
	Panicked bool
}

func (e *HandlerError) Error() string {
	if e.Panicked {
		return fmt.Sprintf("plugin %q panicked handling %s: %v", e.Plugin, e.Event, e.Err)
	}
	return fmt.Sprintf("plugin %q failed handling %s: %v", e.Plugin, e.Event, e.Err)
}

func (e *HandlerError) Unwrap() error {
	return e.Err
}
