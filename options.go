package rewind

import (
	"time"

	"github.com/dshills/rewind/logging"
	"github.com/dshills/rewind/plugin"
)

// Options configures a history stack.
type Options struct {
	// MaxHistory caps the past list by count when MemoryBasedLimit is off.
	MaxHistory int
	// Compress collapses consecutive pushes sharing the same label into one
	// past entry.
	Compress bool
	// MemoryBasedLimit switches eviction to the byte budget below.
	MemoryBasedLimit bool
	// MaxMemorySize is the history byte budget in megabytes.
	MaxMemorySize int
	// GCInterval is the base cadence for scheduled garbage collection.
	// Zero or negative disables scheduling; GC then runs inline on push.
	GCInterval time.Duration
	// MemoryThreshold is the fraction of the byte budget (0..1) at which a
	// memory warning is emitted.
	MemoryThreshold float64
	// SelectivePaths limits deep cloning to the given paths where the stack
	// clones state internally. Empty means full clones.
	SelectivePaths []string
	// LargeActionThreshold is the size in KB above which actions are
	// optimized for storage during GC.
	LargeActionThreshold int
	// Plugins are the observers attached to the stack.
	Plugins []plugin.Plugin
	// Logger receives diagnostics. Defaults to the null logger.
	Logger *logging.Logger
}

// DefaultOptions returns the default stack configuration.
func DefaultOptions() Options {
	return Options{
		MaxHistory:           100,
		Compress:             false,
		MemoryBasedLimit:     false,
		MaxMemorySize:        50,
		GCInterval:           30 * time.Second,
		MemoryThreshold:      0.8,
		LargeActionThreshold: 64,
	}
}

// withDefaults fills zero fields with defaults.
func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxHistory <= 0 {
		o.MaxHistory = def.MaxHistory
	}
	if o.MaxMemorySize <= 0 {
		o.MaxMemorySize = def.MaxMemorySize
	}
	if o.MemoryThreshold <= 0 || o.MemoryThreshold > 1 {
		o.MemoryThreshold = def.MemoryThreshold
	}
	if o.LargeActionThreshold <= 0 {
		o.LargeActionThreshold = def.LargeActionThreshold
	}
	if o.Logger == nil {
		o.Logger = logging.NullLogger
	}
	return o
}

// maxMemoryBytes converts the megabyte budget to bytes.
func (o Options) maxMemoryBytes() int {
	return o.MaxMemorySize * 1024 * 1024
}
