package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	rewind "github.com/dshills/rewind"
	"github.com/dshills/rewind/logging"
)

// debounceDelay coalesces bursts of file events into one reload.
const debounceDelay = 100 * time.Millisecond

// Watcher reloads an options file when it changes on disk.
type Watcher struct {
	path     string
	onChange func(rewind.Options)
	log      *logging.Logger

	fw   *fsnotify.Watcher
	mu   sync.Mutex
	t    *time.Timer
	done chan struct{}
}

// Watch starts watching path and invokes onChange with the reloaded options
// after each change. The watch covers the containing directory so editors
// that replace the file atomically are still observed.
func Watch(path string, onChange func(rewind.Options), log *logging.Logger) (*Watcher, error) {
	if log == nil {
		log = logging.NullLogger
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		log:      log.WithComponent("config"),
		fw:       fw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error: %v", err)
		}
	}
}

// scheduleReload debounces reloads; only the last event in a burst fires.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.t != nil {
		w.t.Stop()
	}
	w.t = time.AfterFunc(debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	opts, err := Load(w.path)
	if err != nil {
		w.log.Warn("reload failed: %v", err)
		return
	}
	w.onChange(opts)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.t != nil {
		w.t.Stop()
	}
	w.mu.Unlock()
	close(w.done)
	return w.fw.Close()
}
