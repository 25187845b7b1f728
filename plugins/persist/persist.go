// Package persist provides a plugin that snapshots the current state to a
// key-value store on push and state change.
//
// Writes are throttled to at most one per configured interval, snapshots are
// wrapped in a JSON envelope carrying a save timestamp and content hash, and
// a minimal emergency record is written on memory warnings. Store failures
// are logged and swallowed; they never reach the core stack.
package persist

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/rewind/diff"
	"github.com/dshills/rewind/logging"
	"github.com/dshills/rewind/plugin"
)

// DefaultInterval is the default minimum time between snapshot writes.
const DefaultInterval = 2 * time.Second

// emergencySuffix extends the snapshot key for emergency backups.
const emergencySuffix = ".emergency"

// Option configures the plugin.
type Option func(*Plugin)

// WithInterval sets the write throttle interval. Zero disables throttling.
func WithInterval(d time.Duration) Option {
	return func(p *Plugin) {
		p.interval = d
	}
}

// WithLogger sets the plugin's logger.
func WithLogger(log *logging.Logger) Option {
	return func(p *Plugin) {
		p.log = log.WithComponent("persist")
	}
}

// withClock overrides the time source. Test hook.
func withClock(clock func() time.Time) Option {
	return func(p *Plugin) {
		p.clock = clock
	}
}

// Plugin persists state snapshots to a Store.
type Plugin struct {
	store    Store
	key      string
	interval time.Duration
	last     time.Time
	log      *logging.Logger
	clock    func() time.Time
}

// New creates a persistence plugin writing snapshots under the given key.
func New(store Store, key string, opts ...Option) *Plugin {
	p := &Plugin{
		store:    store,
		key:      key,
		interval: DefaultInterval,
		log:      logging.NullLogger,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements plugin.Plugin.
func (p *Plugin) Name() string { return "persistence" }

// Priority runs persistence after most observers.
func (p *Plugin) Priority() int { return -10 }

// OnActionPush implements plugin.PushHandler.
func (p *Plugin) OnActionPush(ev plugin.PushEvent) error {
	p.save(ev.State)
	return nil
}

// OnStateChange implements plugin.StateChangeHandler.
func (p *Plugin) OnStateChange(ev plugin.StateChangeEvent) error {
	p.save(ev.State)
	return nil
}

// OnMemoryWarning writes an emergency minimal backup, bypassing the
// throttle: under memory pressure the next regular write may never come.
func (p *Plugin) OnMemoryWarning(ev plugin.MemoryWarningEvent) error {
	env, _ := sjson.Set("{}", "saved_at", p.clock().Format(time.RFC3339Nano))
	env, _ = sjson.Set(env, "emergency", true)
	env, _ = sjson.Set(env, "estimated_bytes", ev.EstimatedBytes)
	if err := p.store.Set(p.key+emergencySuffix, env); err != nil {
		p.log.Warn("emergency backup failed: %v", err)
	}
	return nil
}

// save writes a snapshot envelope unless throttled.
func (p *Plugin) save(state any) {
	now := p.clock()
	if p.interval > 0 && now.Sub(p.last) < p.interval {
		return
	}

	body, err := json.Marshal(state)
	if err != nil {
		p.log.Warn("snapshot marshal failed: %v", err)
		return
	}

	env, err := sjson.SetRaw("{}", "state", string(body))
	if err != nil {
		p.log.Warn("snapshot envelope failed: %v", err)
		return
	}
	env, _ = sjson.Set(env, "saved_at", now.Format(time.RFC3339Nano))
	env, _ = sjson.Set(env, "hash", diff.Hash(state))

	if err := p.store.Set(p.key, env); err != nil {
		p.log.Warn("snapshot write failed: %v", err)
		return
	}
	p.last = now
}

// Restore loads the last snapshot. The second return is false when no
// snapshot exists.
func (p *Plugin) Restore() (any, bool, error) {
	raw, ok, err := p.store.Get(p.key)
	if err != nil {
		return nil, false, fmt.Errorf("reading snapshot: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	body := gjson.Get(raw, "state")
	if !body.Exists() {
		return nil, false, fmt.Errorf("snapshot envelope missing state")
	}

	var state any
	if err := json.Unmarshal([]byte(body.Raw), &state); err != nil {
		return nil, false, fmt.Errorf("decoding snapshot: %w", err)
	}
	return state, true, nil
}

// SavedAt returns the timestamp of the last stored snapshot, if any.
func (p *Plugin) SavedAt() (time.Time, bool) {
	raw, ok, err := p.store.Get(p.key)
	if err != nil || !ok {
		return time.Time{}, false
	}
	ts := gjson.Get(raw, "saved_at")
	if !ts.Exists() {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, ts.String())
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
