// Package stats provides a debug plugin that aggregates operation counts,
// tracks the most frequent action label, and samples process memory on a
// schedule.
package stats

import (
	"sync"
	"time"

	"github.com/dshills/rewind/plugin"
	"github.com/dshills/rewind/sched"
)

// defaultSampleEvery is the default memory sampling cadence.
const defaultSampleEvery = 10 * time.Second

// maxSamples bounds the retained memory samples.
const maxSamples = 120

// Option configures the stats plugin.
type Option func(*Plugin)

// WithSampleInterval sets the memory sampling cadence. Zero disables
// sampling.
func WithSampleInterval(d time.Duration) Option {
	return func(p *Plugin) {
		p.sampleEvery = d
	}
}

// Plugin aggregates history diagnostics.
type Plugin struct {
	mu          sync.Mutex
	counts      map[string]int
	labels      map[string]int
	samples     []uint64
	sampleEvery time.Duration
	scheduler   *sched.Scheduler
}

// New creates a stats plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{
		counts:      make(map[string]int),
		labels:      make(map[string]int),
		sampleEvery: defaultSampleEvery,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "debug-stats" }

// OnInit starts the memory sampler.
func (p *Plugin) OnInit(any) error {
	if p.sampleEvery <= 0 {
		return nil
	}
	p.mu.Lock()
	if p.scheduler == nil {
		p.scheduler = sched.NewScheduler()
	}
	p.mu.Unlock()
	p.scheduleSample()
	return nil
}

func (p *Plugin) scheduleSample() {
	p.mu.Lock()
	sc := p.scheduler
	p.mu.Unlock()
	if sc == nil {
		return
	}
	sc.Schedule("sample", func() {
		p.mu.Lock()
		p.samples = append(p.samples, sched.MemoryUsage())
		if len(p.samples) > maxSamples {
			p.samples = p.samples[len(p.samples)-maxSamples:]
		}
		p.mu.Unlock()
		p.scheduleSample()
	}, p.sampleEvery)
}

// Stop halts memory sampling.
func (p *Plugin) Stop() {
	p.mu.Lock()
	sc := p.scheduler
	p.scheduler = nil
	p.mu.Unlock()
	if sc != nil {
		sc.Stop()
	}
}

// OnActionPush implements plugin.PushHandler.
func (p *Plugin) OnActionPush(ev plugin.PushEvent) error {
	p.count("push", ev.Action.Label)
	return nil
}

// OnUndo implements plugin.UndoHandler.
func (p *Plugin) OnUndo(ev plugin.UndoEvent) error {
	p.count("undo", ev.Action.Label)
	return nil
}

// OnRedo implements plugin.RedoHandler.
func (p *Plugin) OnRedo(ev plugin.RedoEvent) error {
	p.count("redo", ev.Action.Label)
	return nil
}

// OnClear implements plugin.ClearHandler.
func (p *Plugin) OnClear(plugin.ClearEvent) error {
	p.count("clear", "")
	return nil
}

// OnGC implements plugin.GCHandler.
func (p *Plugin) OnGC(plugin.GCEvent) error {
	p.count("gc", "")
	return nil
}

func (p *Plugin) count(op, label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counts[op]++
	if label != "" {
		p.labels[label]++
	}
}

// TopLabel returns the most frequent action label and its count.
func (p *Plugin) TopLabel() (string, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.topLabelLocked()
}

func (p *Plugin) topLabelLocked() (string, int) {
	best := ""
	n := 0
	for label, c := range p.labels {
		if c > n || (c == n && label < best) {
			best = label
			n = c
		}
	}
	return best, n
}

// DebugInfo implements plugin.DebugReporter.
func (p *Plugin) DebugInfo() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	counts := make(map[string]int, len(p.counts))
	for k, v := range p.counts {
		counts[k] = v
	}
	label, n := p.topLabelLocked()

	info := map[string]any{
		"counts":          counts,
		"top_label":       label,
		"top_label_count": n,
		"memory_samples":  len(p.samples),
	}
	if len(p.samples) > 0 {
		info["last_memory_bytes"] = p.samples[len(p.samples)-1]
	}
	return info
}
