package rewind

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/dshills/rewind/plugin"
	"github.com/dshills/rewind/plugin/luaplug"
	"github.com/dshills/rewind/plugins/persist"
	"github.com/dshills/rewind/plugins/stats"
	"github.com/dshills/rewind/plugins/tracker"
)

func TestTrackerObservesStack(t *testing.T) {
	tr := tracker.New(tracker.WithWindow(0))
	s := counterStack(t, Options{Plugins: []plugin.Plugin{tr}})

	pushAdd(t, s, 1, "edit")
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if _, err := s.Redo(); err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	s.Clear()

	events := tr.Events()
	if len(events) != 4 {
		t.Fatalf("events = %d, want 4", len(events))
	}
	wantTypes := []string{"push", "undo", "redo", "clear"}
	for i, w := range wantTypes {
		if events[i].Type != w {
			t.Errorf("event %d = %q, want %q", i, events[i].Type, w)
		}
	}
}

func TestStatsReportThroughStack(t *testing.T) {
	st := stats.New(stats.WithSampleInterval(0))
	s := counterStack(t, Options{Plugins: []plugin.Plugin{st}})

	pushAdd(t, s, 1, "edit")
	pushAdd(t, s, 1, "edit")
	pushAdd(t, s, 1, "save")

	info := s.DebugInfo()
	report, ok := info["debug-stats"].(map[string]any)
	if !ok {
		t.Fatalf("debug info = %v", info)
	}
	if report["top_label"] != "edit" {
		t.Errorf("top label = %v, want edit", report["top_label"])
	}
	counts := report["counts"].(map[string]int)
	if counts["push"] != 3 {
		t.Errorf("push count = %d, want 3", counts["push"])
	}
}

func TestPersistenceThroughStack(t *testing.T) {
	store := persist.NewMemStore()
	pg := persist.New(store, "session", persist.WithInterval(0))
	initial := map[string]any{"text": "draft"}

	s, err := New(initial, Options{Plugins: []plugin.Plugin{pg}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	defer s.Close()

	next := map[string]any{"text": "draft, edited"}
	if _, err := s.PushDiff(initial, next, "edit"); err != nil {
		t.Fatalf("PushDiff failed: %v", err)
	}

	got, ok, err := pg.Restore()
	if err != nil || !ok {
		t.Fatalf("Restore = (ok=%v, err=%v)", ok, err)
	}
	if !reflect.DeepEqual(got, map[string]any{"text": "draft, edited"}) {
		t.Errorf("restored = %v", got)
	}
}

func TestLuaPluginThroughStack(t *testing.T) {
	lp, err := luaplug.Load("audit", `
pushes = 0
undos = 0
last_label = ""
function on_action_push(info, state)
  pushes = pushes + 1
  last_label = info.label
end
function on_undo(info, state)
  undos = undos + 1
end
`)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer lp.Close()

	s := counterStack(t, Options{Plugins: []plugin.Plugin{lp}})

	pushAdd(t, s, 1, "insert")
	pushAdd(t, s, 2, "delete")
	if _, err := s.Undo(); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}

	if got := lp.Get("pushes"); got != int64(2) {
		t.Errorf("pushes = %v, want 2", got)
	}
	if got := lp.Get("undos"); got != int64(1) {
		t.Errorf("undos = %v, want 1", got)
	}
	if got := lp.Get("last_label"); got != "delete" {
		t.Errorf("last_label = %v", got)
	}
}

// failingPlugin breaks on every push but must not break the stack.
type failingPlugin struct{}

func (failingPlugin) Name() string { return "unstable" }

func (failingPlugin) OnActionPush(plugin.PushEvent) error {
	return errors.New("observer failure")
}

func TestPluginFailureDoesNotBlockStack(t *testing.T) {
	tr := tracker.New(tracker.WithWindow(0))
	s := counterStack(t, Options{Plugins: []plugin.Plugin{failingPlugin{}, tr}})

	got := pushAdd(t, s, 1, "edit")
	if got != 1 {
		t.Errorf("state = %v, want push to succeed despite plugin failure", got)
	}
	if len(tr.Events()) == 0 {
		t.Error("sibling plugin should still observe the push")
	}
}

// errorSink collects core operation errors.
type errorSink struct {
	errs []plugin.ErrorEvent
}

func (e *errorSink) Name() string { return "error-sink" }

func (e *errorSink) OnError(ev plugin.ErrorEvent) { e.errs = append(e.errs, ev) }

func TestCoreErrorsRoutedToPlugins(t *testing.T) {
	sink := &errorSink{}
	s := counterStack(t, Options{Plugins: []plugin.Plugin{sink}})

	boom := errors.New("boom")
	_, err := s.Push(
		func(args ...any) (any, error) { return nil, boom },
		func(args ...any) (any, error) { return nil, nil },
		"doomed")
	if err == nil {
		t.Fatal("push should fail")
	}

	if len(sink.errs) != 1 {
		t.Fatalf("errs = %d, want 1", len(sink.errs))
	}
	if sink.errs[0].Op != "push" || !errors.Is(sink.errs[0].Err, boom) {
		t.Errorf("routed error = %+v", sink.errs[0])
	}
}

// warnSink records memory warnings.
type warnSink struct {
	warned []int
}

func (w *warnSink) Name() string { return "warn-sink" }

func (w *warnSink) OnMemoryWarning(ev plugin.MemoryWarningEvent) error {
	w.warned = append(w.warned, ev.EstimatedBytes)
	return nil
}

func TestMemoryWarningEmittedOnce(t *testing.T) {
	sink := &warnSink{}
	s := counterStack(t, Options{
		MemoryBasedLimit: true,
		MaxMemorySize:    1,
		MemoryThreshold:  0.0001,
		Plugins:          []plugin.Plugin{sink},
	})

	pushAdd(t, s, 1, "a")
	pushAdd(t, s, 1, "b")

	// The threshold latch fires on the first crossing only.
	if len(sink.warned) != 1 {
		t.Errorf("warnings = %v, want exactly one", sink.warned)
	}
	if sink.warned[0] <= 0 {
		t.Errorf("warning bytes = %d", sink.warned[0])
	}
}

func TestGCEventEmitted(t *testing.T) {
	st := stats.New(stats.WithSampleInterval(0))
	s := counterStack(t, Options{
		GCInterval: 5 * time.Millisecond,
		Plugins:    []plugin.Plugin{st},
	})

	pushAdd(t, s, 1, "a")

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		report := s.DebugInfo()["debug-stats"].(map[string]any)
		if report["counts"].(map[string]int)["gc"] > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduled gc never ran")
}
