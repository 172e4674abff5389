package testbed

import (
	stderrors "errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/delegate"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/event"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/iid"
	"github.com/wippyai/winrt-runtime/module"
	"github.com/wippyai/winrt-runtime/runtime"
)

func newRuntime(t *testing.T, w *world) *runtime.Runtime {
	t.Helper()
	rt, err := runtime.NewWithDefaults(w.p)
	if err != nil {
		t.Fatalf("create runtime: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestThermostat_CastsAreIndependent(t *testing.T) {
	w := newWorld(t)
	rt := newRuntime(t, w)

	inst, err := rt.Activate(thermostatClass)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	native := w.last().obj

	var casts []*abi.Object
	for i := range 6 {
		s := thermostatSchema
		if i%2 == 1 {
			s = closableSchema
		}
		c, err := inst.As(s.IID, s)
		if err != nil {
			t.Fatalf("cast %d: %v", i, err)
		}
		casts = append(casts, c)
	}
	if err := rt.Release(inst); err != nil {
		t.Fatalf("release instance: %v", err)
	}

	// Release every cast but the last; each remaining one stays usable.
	for i, c := range casts[:len(casts)-1] {
		if err := c.Release(); err != nil {
			t.Fatalf("release cast %d: %v", i, err)
		}
		for j, other := range casts[i+1:] {
			if _, err := other.RuntimeClassName(); err != nil {
				t.Errorf("cast %d unusable after releasing cast %d: %v", i+1+j, i, err)
			}
		}
		if native.Destroyed() {
			t.Fatalf("object destroyed with %d casts left", len(casts)-1-i)
		}
	}

	last := casts[len(casts)-1]
	if err := last.Call("Close"); err != nil {
		t.Errorf("Close: %v", err)
	}
	if err := last.Release(); err != nil {
		t.Fatal(err)
	}
	if !native.Destroyed() || native.OverReleased() != 0 {
		t.Errorf("destroyed %v, over-released %d", native.Destroyed(), native.OverReleased())
	}
}

func TestThermostat_AttachReleaseBalance(t *testing.T) {
	w := newWorld(t)
	rt := newRuntime(t, w)

	inst, err := rt.ActivateAs(thermostatClass, thermostatSchema)
	if err != nil {
		t.Fatalf("activate: %v", err)
	}
	native := w.last().obj
	before := native.Refs()

	native.AddRef()
	attached, err := abi.Attach(w.p, nil, inst.Addr(), thermostatSchema)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if err := attached.Release(); err != nil {
		t.Fatalf("release: %v", err)
	}
	if native.Refs() != before {
		t.Errorf("refs = %d, want %d", native.Refs(), before)
	}

	var fatal []*errors.Error
	prev := errors.SetFatalHandler(func(e *errors.Error) { fatal = append(fatal, e) })
	defer errors.SetFatalHandler(prev)

	if err := attached.Release(); !stderrors.Is(err, errors.ErrOverRelease) {
		t.Errorf("second release = %v, want over-release", err)
	}
	if len(fatal) != 1 || fatal[0].Kind != errors.KindOverRelease {
		t.Errorf("fatal reports = %v", fatal)
	}
	if native.Refs() != before || native.OverReleased() != 0 {
		t.Errorf("over-release reached native code: refs %d, over %d", native.Refs(), native.OverReleased())
	}
}

func TestThermostat_ConcurrentModuleLoad(t *testing.T) {
	w := newWorld(t)
	rt := newRuntime(t, w)

	const n = 24
	mods := make([]*module.Module, n)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			m, err := rt.Modules().Load(thermostatModule)
			if err != nil {
				t.Error(err)
				return
			}
			mods[i] = m
		}()
	}
	close(start)
	wg.Wait()

	if w.lib.Loads() != 1 {
		t.Fatalf("native loads = %d, want 1", w.lib.Loads())
	}
	if got := mods[0].Refs(); got != n {
		t.Errorf("refs = %d, want %d", got, n)
	}

	var released sync.WaitGroup
	for _, m := range mods {
		released.Add(1)
		go func() {
			defer released.Done()
			if err := m.Release(); err != nil {
				t.Error(err)
			}
		}()
	}
	released.Wait()

	if w.lib.Unloads() != 1 || w.lib.Loaded() {
		t.Errorf("unloads = %d, loaded = %v", w.lib.Unloads(), w.lib.Loaded())
	}
	if rt.Modules().Len() != 0 {
		t.Errorf("cache still holds %v", rt.Modules().Names())
	}
}

func TestThermostat_BrokerFallbackIsCached(t *testing.T) {
	w := newWorld(t)
	widget, err := w.p.NewFactory("A.B.C.Widget", w.activate)
	if err != nil {
		t.Fatal(err)
	}
	w.p.RegisterClass("A.B.C.Widget", widget)
	rt := newRuntime(t, w)

	f, err := rt.Resolve("A.B.C.Widget")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if f.Source() != "broker" {
		t.Errorf("source = %q, want broker", f.Source())
	}
	again, err := rt.Resolve("A.B.C.Widget")
	if err != nil {
		t.Fatal(err)
	}
	if again != f {
		t.Error("second resolve returned a different factory")
	}
	if rt.Resolver().Walks() != 1 || w.p.BrokerLookups() != 1 {
		t.Errorf("walks = %d, broker lookups = %d", rt.Resolver().Walks(), w.p.BrokerLookups())
	}
	for _, name := range []string{"A.B.C.dll", "A.B.dll", "A.dll"} {
		if rt.Modules().Loads(name) != 0 {
			t.Errorf("%s reported loaded", name)
		}
	}
}

const iidHelperEnv = "WINRT_TESTBED_IID_HELPER"

var stableTypes = []string{
	"IVector<Int32>",
	"IIterable<String>",
	"IMap<String, Object>",
	"TypedEventHandler<Object, IReference<Guid>>",
}

func TestIID_HelperProcess(t *testing.T) {
	if os.Getenv(iidHelperEnv) != "1" {
		t.Skip("helper process only")
	}
	for _, expr := range stableTypes {
		typ, err := iid.Parse(expr)
		if err != nil {
			t.Fatal(err)
		}
		id, err := iid.Of(typ)
		if err != nil {
			t.Fatal(err)
		}
		fmt.Printf("%s=%s\n", expr, id)
	}
}

func TestIID_StableAcrossRuns(t *testing.T) {
	if os.Getenv(iidHelperEnv) == "1" {
		t.Skip("inside helper process")
	}
	local := make(map[string]guid.GUID)
	for _, expr := range stableTypes {
		typ, err := iid.Parse(expr)
		if err != nil {
			t.Fatal(err)
		}
		first, err := iid.Of(typ)
		if err != nil {
			t.Fatal(err)
		}
		reparsed, _ := iid.Parse(expr)
		second, err := iid.Of(reparsed)
		if err != nil {
			t.Fatal(err)
		}
		if first != second {
			t.Errorf("%s: %s then %s", expr, first, second)
		}
		local[expr] = first
	}
	if got := local["IIterable<String>"].String(); got != "e2fcc7c1-3bfc-5a0b-b2b0-72e769d1cb7e" {
		t.Errorf("IIterable<String> = %s", got)
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestIID_HelperProcess$")
	cmd.Env = append(os.Environ(), iidHelperEnv+"=1")
	out, err := cmd.Output()
	if err != nil {
		t.Fatalf("helper process: %v", err)
	}
	seen := 0
	for _, line := range strings.Split(string(out), "\n") {
		expr, id, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		want, known := local[expr]
		if !known {
			continue
		}
		seen++
		if id != want.String() {
			t.Errorf("%s: %s in this process, %s in another", expr, want, id)
		}
	}
	if seen != len(stableTypes) {
		t.Errorf("helper reported %d of %d types:\n%s", seen, len(stableTypes), out)
	}
}

func TestThermostat_EventLifecycle(t *testing.T) {
	w := newWorld(t)
	rt := newRuntime(t, w)

	inst, err := rt.ActivateAs(thermostatClass, thermostatSchema)
	if err != nil {
		t.Fatal(err)
	}
	th := w.last()

	src, err := runtime.NewSource(rt, "TargetChanged", inst, targetChanged,
		event.Sent(event.Int32),
		event.Options{Add: "add_TargetChanged", Remove: "remove_TargetChanged", Sender: inst.Addr(), Bound: true})
	if err != nil {
		t.Fatalf("source: %v", err)
	}

	var calls atomic.Int32
	handler := func(v int32) error { calls.Add(1); return nil }

	first, err := src.Subscribe(handler)
	if err != nil {
		t.Fatal(err)
	}
	if !src.Subscribed() || th.changed.Adds() != 1 {
		t.Fatalf("subscribed %v, adds %d", src.Subscribed(), th.changed.Adds())
	}
	second, err := src.Subscribe(handler)
	if err != nil {
		t.Fatal(err)
	}
	if th.changed.Adds() != 1 {
		t.Errorf("second handler called add again: adds %d", th.changed.Adds())
	}

	if err := inst.Call("put_Target", 23); err != nil {
		t.Fatalf("put_Target: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("handlers ran %d times, want 2", calls.Load())
	}

	delegates := th.changed.Handlers()
	if len(delegates) != 1 {
		t.Fatalf("native holds %d delegates", len(delegates))
	}
	stale := delegates[0]

	if err := src.Unsubscribe(first); err != nil {
		t.Fatal(err)
	}
	if th.changed.Removes() != 0 {
		t.Error("remove called while a handler remains")
	}
	if err := src.Unsubscribe(second); err != nil {
		t.Fatal(err)
	}
	if src.Subscribed() || th.changed.Removes() != 1 {
		t.Errorf("subscribed %v, removes %d", src.Subscribed(), th.changed.Removes())
	}

	// A callback racing the remove must not reach any closure.
	before := calls.Load()
	if hr := w.p.Invoke(stale, inst.Addr(), 99); !hr.Failed() {
		t.Errorf("late invoke returned %s", hr)
	}
	if calls.Load() != before {
		t.Error("late callback dispatched to a handler")
	}
	if rt.Adapters().Live() != 0 {
		t.Errorf("%d bridges alive after the last unsubscribe", rt.Adapters().Live())
	}
}

func TestThermostat_ForeignSenderRejected(t *testing.T) {
	w := newWorld(t)
	rt := newRuntime(t, w)

	inst, err := rt.ActivateAs(thermostatClass, thermostatSchema)
	if err != nil {
		t.Fatal(err)
	}
	other, err := rt.ActivateAs(thermostatClass, thermostatSchema)
	if err != nil {
		t.Fatal(err)
	}
	th := w.thermostats[0]

	src, err := event.Typed("TargetChanged", inst, mustAdapter(t, rt), event.Int32, "add_TargetChanged", "remove_TargetChanged")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	defer src.Close()

	var calls atomic.Int32
	if _, err := src.Subscribe(func(int32) error { calls.Add(1); return nil }); err != nil {
		t.Fatal(err)
	}

	statuses := th.changed.Raise(other.Addr(), 5)
	if len(statuses) != 1 || statuses[0] != errors.EInvalidArg {
		t.Errorf("statuses = %v, want E_INVALIDARG", statuses)
	}
	if calls.Load() != 0 {
		t.Error("closure ran for a foreign sender")
	}

	if err := inst.Call("put_Target", 21); err != nil {
		t.Fatalf("put_Target from the bound sender: %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("bound sender dispatched %d times", calls.Load())
	}
}

func mustAdapter(t *testing.T, rt *runtime.Runtime) *delegate.Adapter {
	t.Helper()
	a, err := rt.Adapter(targetChanged, 2)
	if err != nil {
		t.Fatalf("adapter: %v", err)
	}
	return a
}
