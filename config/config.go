// Package config loads history stack options from TOML files and watches
// them for changes.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	rewind "github.com/dshills/rewind"
)

// File mirrors the TOML layout of an options file. Zero values fall back to
// the engine defaults.
type File struct {
	MaxHistory       int      `toml:"max_history"`
	Compress         bool     `toml:"compress"`
	MemoryBasedLimit bool     `toml:"memory_based_limit"`
	MaxMemorySizeMB  int      `toml:"max_memory_size_mb"`
	GCIntervalMS     int      `toml:"gc_interval_ms"`
	MemoryThreshold  float64  `toml:"memory_threshold"`
	SelectivePaths   []string `toml:"selective_paths"`
	LargeActionKB    int      `toml:"large_action_kb"`
}

// Load reads options from a TOML file. A missing file is not an error; the
// defaults are returned.
func Load(path string) (rewind.Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rewind.DefaultOptions(), nil
		}
		return rewind.Options{}, fmt.Errorf("reading options file %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes TOML option data, overlaying the engine defaults.
func Parse(data []byte) (rewind.Options, error) {
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return rewind.Options{}, fmt.Errorf("parsing options: %w", err)
	}

	opts := rewind.DefaultOptions()
	if f.MaxHistory > 0 {
		opts.MaxHistory = f.MaxHistory
	}
	opts.Compress = f.Compress
	opts.MemoryBasedLimit = f.MemoryBasedLimit
	if f.MaxMemorySizeMB > 0 {
		opts.MaxMemorySize = f.MaxMemorySizeMB
	}
	if f.GCIntervalMS > 0 {
		opts.GCInterval = time.Duration(f.GCIntervalMS) * time.Millisecond
	}
	if f.MemoryThreshold > 0 && f.MemoryThreshold <= 1 {
		opts.MemoryThreshold = f.MemoryThreshold
	}
	if len(f.SelectivePaths) > 0 {
		opts.SelectivePaths = append([]string(nil), f.SelectivePaths...)
	}
	if f.LargeActionKB > 0 {
		opts.LargeActionThreshold = f.LargeActionKB
	}
	return opts, nil
}
