package plugin

import (
	"errors"
	"reflect"
	"testing"
)

// fake is a configurable test plugin implementing every handler interface.
type fake struct {
	name     string
	priority int
	deps     []string

	trace  *[]string
	failOn string
	panics bool

	errs []ErrorEvent
}

func (f *fake) Name() string           { return f.name }
func (f *fake) Priority() int          { return f.priority }
func (f *fake) Dependencies() []string { return f.deps }

func (f *fake) mark(event string) error {
	if f.trace != nil {
		*f.trace = append(*f.trace, f.name+":"+event)
	}
	if f.failOn == event {
		if f.panics {
			panic("broken " + event)
		}
		return errors.New("handler failed")
	}
	return nil
}

func (f *fake) OnInit(state any) error                  { return f.mark("init") }
func (f *fake) OnActionPush(ev PushEvent) error         { return f.mark("push") }
func (f *fake) OnUndo(ev UndoEvent) error               { return f.mark("undo") }
func (f *fake) OnRedo(ev RedoEvent) error               { return f.mark("redo") }
func (f *fake) OnClear(ev ClearEvent) error             { return f.mark("clear") }
func (f *fake) OnGC(ev GCEvent) error                   { return f.mark("gc") }
func (f *fake) OnStateChange(ev StateChangeEvent) error { return f.mark("state") }
func (f *fake) OnMemoryWarning(ev MemoryWarningEvent) error {
	return f.mark("memory")
}
func (f *fake) OnError(ev ErrorEvent)     { f.errs = append(f.errs, ev) }
func (f *fake) DebugInfo() map[string]any { return map[string]any{"ok": true} }

func TestInitRunsInDependencyOrder(t *testing.T) {
	var trace []string
	a := &fake{name: "a", trace: &trace}
	b := &fake{name: "b", deps: []string{"a"}, trace: &trace}
	c := &fake{name: "c", deps: []string{"b"}, trace: &trace}

	// Register in reverse to prove sorting does the work.
	p, err := NewPipeline([]Plugin{c, b, a}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	p.EmitInit(nil)

	want := []string{"a:init", "b:init", "c:init"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("init order = %v, want %v", trace, want)
	}
}

func TestCycleDetection(t *testing.T) {
	a := &fake{name: "a", deps: []string{"b"}}
	b := &fake{name: "b", deps: []string{"a"}}

	_, err := NewPipeline([]Plugin{a, b}, nil)
	var cyc *CycleError
	if !errors.As(err, &cyc) {
		t.Fatalf("err = %v, want *CycleError", err)
	}
	if len(cyc.Chain) < 2 {
		t.Errorf("chain = %v, want the cycle members", cyc.Chain)
	}
}

func TestSelfCycle(t *testing.T) {
	a := &fake{name: "a", deps: []string{"a"}}
	if _, err := NewPipeline([]Plugin{a}, nil); err == nil {
		t.Fatal("self-dependency should be a cycle")
	}
}

func TestMissingDependencyNonFatal(t *testing.T) {
	a := &fake{name: "a", deps: []string{"ghost"}}
	p, err := NewPipeline([]Plugin{a}, nil)
	if err != nil {
		t.Fatalf("missing dependency should not fail construction: %v", err)
	}
	if len(p.Plugins()) != 1 {
		t.Errorf("plugins = %d, want 1", len(p.Plugins()))
	}
}

func TestDispatchInPriorityOrder(t *testing.T) {
	var trace []string
	low := &fake{name: "low", priority: -5, trace: &trace}
	mid := &fake{name: "mid", priority: 0, trace: &trace}
	high := &fake{name: "high", priority: 10, trace: &trace}

	p, err := NewPipeline([]Plugin{low, mid, high}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	p.EmitPush(PushEvent{})

	want := []string{"high:push", "mid:push", "low:push"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("push order = %v, want %v", trace, want)
	}
}

func TestHandlerErrorIsolated(t *testing.T) {
	var trace []string
	bad := &fake{name: "bad", priority: 1, trace: &trace, failOn: "push"}
	good := &fake{name: "good", trace: &trace}

	p, err := NewPipeline([]Plugin{bad, good}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	p.EmitPush(PushEvent{})

	want := []string{"bad:push", "good:push"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want failing plugin not to block siblings", trace)
	}

	// The failure is routed to the failing plugin's own OnError.
	if len(bad.errs) != 1 {
		t.Fatalf("bad.errs = %d, want 1", len(bad.errs))
	}
	var herr *HandlerError
	if !errors.As(bad.errs[0].Err, &herr) {
		t.Fatalf("routed err = %v, want *HandlerError", bad.errs[0].Err)
	}
	if herr.Plugin != "bad" || herr.Panicked {
		t.Errorf("handler error = %+v", herr)
	}
	if len(good.errs) != 0 {
		t.Errorf("good.errs = %d, want 0", len(good.errs))
	}
}

func TestHandlerPanicIsolated(t *testing.T) {
	var trace []string
	bad := &fake{name: "bad", priority: 1, trace: &trace, failOn: "undo", panics: true}
	good := &fake{name: "good", trace: &trace}

	p, err := NewPipeline([]Plugin{bad, good}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	p.EmitUndo(UndoEvent{})

	want := []string{"bad:undo", "good:undo"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want panicking plugin not to block siblings", trace)
	}

	var herr *HandlerError
	if len(bad.errs) != 1 || !errors.As(bad.errs[0].Err, &herr) {
		t.Fatalf("errs = %+v, want one *HandlerError", bad.errs)
	}
	if !herr.Panicked {
		t.Error("handler error should record the panic")
	}
}

func TestEmitErrorReachesAllHandlers(t *testing.T) {
	a := &fake{name: "a"}
	b := &fake{name: "b"}

	p, err := NewPipeline([]Plugin{a, b}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	p.EmitError(ErrorEvent{Op: "push", Err: errors.New("exec failed")})

	if len(a.errs) != 1 || len(b.errs) != 1 {
		t.Errorf("errs = %d,%d, want 1,1", len(a.errs), len(b.errs))
	}
	if a.errs[0].Op != "push" {
		t.Errorf("op = %q, want push", a.errs[0].Op)
	}
}

func TestAllEventsDispatch(t *testing.T) {
	var trace []string
	a := &fake{name: "a", trace: &trace}
	p, err := NewPipeline([]Plugin{a}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	p.EmitInit(nil)
	p.EmitPush(PushEvent{})
	p.EmitUndo(UndoEvent{})
	p.EmitRedo(RedoEvent{})
	p.EmitClear(ClearEvent{})
	p.EmitGC(GCEvent{FreedBytes: 10})
	p.EmitStateChange(StateChangeEvent{})
	p.EmitMemoryWarning(MemoryWarningEvent{EstimatedBytes: 1})

	want := []string{"a:init", "a:push", "a:undo", "a:redo", "a:clear", "a:gc", "a:state", "a:memory"}
	if !reflect.DeepEqual(trace, want) {
		t.Errorf("trace = %v, want %v", trace, want)
	}
}

func TestDebugInfo(t *testing.T) {
	a := &fake{name: "a"}
	p, err := NewPipeline([]Plugin{a}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	info := p.DebugInfo()
	got, ok := info["a"].(map[string]any)
	if !ok || got["ok"] != true {
		t.Errorf("info = %v", info)
	}
}

// onlyPush implements just Plugin and PushHandler.
type onlyPush struct {
	pushed int
}

func (o *onlyPush) Name() string { return "only-push" }

func (o *onlyPush) OnActionPush(ev PushEvent) error { o.pushed++; return nil }

func TestPartialHandlerSet(t *testing.T) {
	o := &onlyPush{}
	p, err := NewPipeline([]Plugin{o}, nil)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}

	p.EmitInit(nil)
	p.EmitPush(PushEvent{})
	p.EmitUndo(UndoEvent{})

	if o.pushed != 1 {
		t.Errorf("pushed = %d, want 1", o.pushed)
	}
}
