package event_test

import (
	stderrors "errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/delegate"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/event"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/hstring"
	"github.com/wippyai/winrt-runtime/platform/emulated"
)

var (
	iidWidgetEvents = guid.MustParse("3b1f3a90-7c0e-4d4b-9a55-2f0c6d8e1a77")
	iidHandler      = guid.MustParse("9de1c535-6ae1-11e0-84e1-18a905bcc53f")

	widgetEvents = abi.Extend(abi.IInspectable, "IWidgetEvents", iidWidgetEvents,
		abi.Slot{Name: "add_Changed", Params: 2},
		abi.Slot{Name: "remove_Changed", Params: 1},
	)
)

type fixture struct {
	p       *emulated.Platform
	native  *emulated.Event
	widget  *emulated.Object
	obj     *abi.Object
	adapter *delegate.Adapter
}

func newFixture(t *testing.T, arity int) *fixture {
	t.Helper()
	p := emulated.New()
	ev := p.NewEvent()
	w, err := p.NewObject(emulated.Spec{
		ClassName:  "A.Widget",
		Interfaces: []emulated.Interface{{IID: iidWidgetEvents, Methods: ev.Methods()}},
	})
	if err != nil {
		t.Fatal(err)
	}
	w.AddRef()
	obj, err := abi.Attach(p, nil, w.PointerFor(iidWidgetEvents), widgetEvents)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = obj.Release() })
	a, err := delegate.NewAdapter(p, "EventHandler", iidHandler, arity)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{p: p, native: ev, widget: w, obj: obj, adapter: a}
}

var changed = event.Options{Add: "add_Changed", Remove: "remove_Changed"}

func TestLifecycle(t *testing.T) {
	fx := newFixture(t, 1)
	src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Int32), changed)
	if err != nil {
		t.Fatal(err)
	}

	var first, second []int32
	t1, err := src.Subscribe(func(v int32) error { first = append(first, v); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if !src.Subscribed() || fx.native.Adds() != 1 {
		t.Fatalf("subscribed = %v, adds = %d", src.Subscribed(), fx.native.Adds())
	}
	if src.NativeToken() == 0 {
		t.Error("native token not recorded")
	}

	t2, err := src.Subscribe(func(v int32) error { second = append(second, v); return nil })
	if err != nil {
		t.Fatal(err)
	}
	if fx.native.Adds() != 1 {
		t.Errorf("second subscribe called add again: %d", fx.native.Adds())
	}

	neg := int32(-5)
	for _, hr := range fx.native.Raise(uintptr(uint32(neg))) {
		if hr != errors.OK {
			t.Errorf("Raise = %v", hr)
		}
	}
	if len(first) != 1 || first[0] != -5 || len(second) != 1 {
		t.Errorf("first = %v, second = %v", first, second)
	}

	if err := src.Unsubscribe(t1); err != nil {
		t.Fatal(err)
	}
	if fx.native.Removes() != 0 || !src.Subscribed() {
		t.Error("removed native subscription while a handler remains")
	}
	if err := src.Unsubscribe(t2); err != nil {
		t.Fatal(err)
	}
	if fx.native.Removes() != 1 || src.Subscribed() {
		t.Errorf("removes = %d, subscribed = %v", fx.native.Removes(), src.Subscribed())
	}
	if fx.adapter.Len() != 0 {
		t.Error("bridge outlived the subscription")
	}
	if len(fx.native.Handlers()) != 0 {
		t.Error("native side still holds a handler")
	}
	if adds, removes := src.Stats(); adds != 1 || removes != 1 {
		t.Errorf("Stats = %d, %d", adds, removes)
	}

	if err := src.Unsubscribe(t2); !stderrors.Is(err, errors.ErrNotFound) {
		t.Errorf("repeated Unsubscribe = %v", err)
	}
}

func TestResubscribeUsesNewBridge(t *testing.T) {
	fx := newFixture(t, 1)
	src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Uint32), changed)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		tok, err := src.Subscribe(func(uint32) error { return nil })
		if err != nil {
			t.Fatal(err)
		}
		if err := src.Unsubscribe(tok); err != nil {
			t.Fatal(err)
		}
	}
	if fx.native.Adds() != 3 || fx.native.Removes() != 3 {
		t.Errorf("adds = %d, removes = %d", fx.native.Adds(), fx.native.Removes())
	}
}

func TestLateCallbackIsDropped(t *testing.T) {
	fx := newFixture(t, 1)
	src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Int64), changed)
	if err != nil {
		t.Fatal(err)
	}
	var calls atomic.Int32
	tok, err := src.Subscribe(func(int64) error { calls.Add(1); return nil })
	if err != nil {
		t.Fatal(err)
	}

	// The native side keeps an extra reference past the remove.
	bridge := fx.native.Handlers()[0]
	addRef, _ := fx.p.Slot(bridge, 1)
	release, _ := fx.p.Slot(bridge, 2)
	fx.p.Call(addRef, bridge)

	if err := src.Unsubscribe(tok); err != nil {
		t.Fatal(err)
	}
	if hr := fx.p.Invoke(bridge, 1); hr != errors.OK {
		t.Errorf("late Invoke = %v", hr)
	}
	if calls.Load() != 0 {
		t.Error("late callback reached a handler")
	}

	fx.p.Call(release, bridge)
	if err := fx.adapter.Dispatch(bridge, 1); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Dispatch on retired bridge = %v", err)
	}
	if calls.Load() != 0 {
		t.Error("retired bridge reached a handler")
	}
}

func TestConcurrentSubscribers(t *testing.T) {
	fx := newFixture(t, 0)
	src, err := event.New("Tick", fx.obj, fx.adapter, event.Args0(), changed)
	if err != nil {
		t.Fatal(err)
	}

	const n = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			for range 10 {
				tok, err := src.Subscribe(func(struct{}) error { return nil })
				if err != nil {
					t.Error(err)
					return
				}
				fx.native.Raise()
				if err := src.Unsubscribe(tok); err != nil {
					t.Error(err)
					return
				}
			}
		}()
	}
	close(start)
	wg.Wait()

	adds, removes := src.Stats()
	if adds != removes || adds != fx.native.Adds() || removes != fx.native.Removes() {
		t.Errorf("source %d/%d, native %d/%d", adds, removes, fx.native.Adds(), fx.native.Removes())
	}
	if src.Subscribed() || fx.adapter.Len() != 0 {
		t.Error("subscription left installed")
	}
}

func TestHandlerFailures(t *testing.T) {
	fx := newFixture(t, 1)
	src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Bool), changed)
	if err != nil {
		t.Fatal(err)
	}
	var after atomic.Int32
	if _, err := src.Subscribe(func(bool) error { panic("first handler") }); err != nil {
		t.Fatal(err)
	}
	if _, err := src.Subscribe(func(bool) error { after.Add(1); return nil }); err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	hrs := fx.native.Raise(1)
	if len(hrs) != 1 || hrs[0] != errors.EFail {
		t.Errorf("Raise = %v", hrs)
	}
	if after.Load() != 1 {
		t.Error("panic stopped the remaining handlers")
	}
}

func TestTypedSenderBinding(t *testing.T) {
	fx := newFixture(t, 2)
	src, err := event.Typed("Changed", fx.obj, fx.adapter, event.String, "add_Changed", "remove_Changed")
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	var got []string
	if _, err := src.Subscribe(func(s string) error { got = append(got, s); return nil }); err != nil {
		t.Fatal(err)
	}
	s, err := hstring.New(fx.p, "hello")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if hrs := fx.native.Raise(fx.obj.Addr(), s.Handle()); hrs[0] != errors.OK {
		t.Errorf("own sender = %v", hrs[0])
	}
	if hrs := fx.native.Raise(fx.widget.Pointer()+0x100, s.Handle()); hrs[0] != errors.EInvalidArg {
		t.Errorf("foreign sender = %v", hrs[0])
	}
	if len(got) != 1 || got[0] != "hello" {
		t.Errorf("got = %v", got)
	}
}

func TestObjectArgument(t *testing.T) {
	fx := newFixture(t, 1)
	src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Object(abi.IInspectable)), changed)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	arg, err := fx.p.NewObject(emulated.Spec{ClassName: "A.Args"})
	if err != nil {
		t.Fatal(err)
	}
	var name string
	if _, err := src.Subscribe(func(o *abi.Object) error {
		defer o.Release()
		var err error
		name, err = o.RuntimeClassName()
		return err
	}); err != nil {
		t.Fatal(err)
	}
	fx.native.Raise(arg.Pointer())
	if name != "A.Args" {
		t.Errorf("RuntimeClassName = %q", name)
	}
	if arg.Refs() != 1 {
		t.Errorf("argument refs = %d after handler", arg.Refs())
	}
}

func TestCloseUnsubscribes(t *testing.T) {
	fx := newFixture(t, 1)
	src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Pointer), changed)
	if err != nil {
		t.Fatal(err)
	}
	for range 3 {
		if _, err := src.Subscribe(func(uintptr) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if fx.native.Removes() != 1 || src.Len() != 0 {
		t.Errorf("removes = %d, handlers = %d", fx.native.Removes(), src.Len())
	}
	if _, err := src.Subscribe(func(uintptr) error { return nil }); !stderrors.Is(err, errors.ErrClosed) {
		t.Errorf("Subscribe after Close = %v", err)
	}
}

func TestNewValidates(t *testing.T) {
	fx := newFixture(t, 1)
	tests := []struct {
		name    string
		decoder event.Decoder[int32]
		opts    event.Options
	}{
		{"arity", event.Decoder[int32]{Arity: 2}, changed},
		{"slot", event.Args1(event.Int32), event.Options{Add: "add_Missing", Remove: "remove_Changed"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := event.New("Changed", fx.obj, fx.adapter, tt.decoder, tt.opts); err == nil {
				t.Error("New accepted an invalid source")
			}
		})
	}
}

// eager wraps the native add and remove so the component raises the event
// from inside them, as components that report their current state on
// registration do.
func eager(t *testing.T, p *emulated.Platform, ev *emulated.Event) *abi.Object {
	t.Helper()
	methods := ev.Methods()
	add := methods[0].(func(this, handler, tokenOut uintptr) uintptr)
	remove := methods[1].(func(this, token uintptr) uintptr)
	w, err := p.NewObject(emulated.Spec{
		ClassName: "A.EagerWidget",
		Interfaces: []emulated.Interface{{IID: iidWidgetEvents, Methods: []any{
			func(this, handler, tokenOut uintptr) uintptr {
				hr := add(this, handler, tokenOut)
				p.Invoke(handler, 42)
				return hr
			},
			func(this, token uintptr) uintptr {
				for _, h := range ev.Handlers() {
					p.Invoke(h, 7)
				}
				return remove(this, token)
			},
		}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	obj, err := abi.Attach(p, nil, w.PointerFor(iidWidgetEvents), widgetEvents)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = obj.Release() })
	return obj
}

func within(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("%s did not return", what)
	}
}

func TestRaiseDuringAddAndRemove(t *testing.T) {
	p := emulated.New()
	ev := p.NewEvent()
	obj := eager(t, p, ev)
	a, err := delegate.NewAdapter(p, "EventHandler", iidHandler, 1)
	if err != nil {
		t.Fatal(err)
	}
	src, err := event.New("Changed", obj, a, event.Args1(event.Int32), changed)
	if err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var got []int32
	var tok event.Token
	within(t, "Subscribe", func() {
		tok, err = src.Subscribe(func(v int32) error {
			mu.Lock()
			got = append(got, v)
			mu.Unlock()
			return nil
		})
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	within(t, "Unsubscribe", func() { err = src.Unsubscribe(tok) })
	if err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != 42 {
		t.Errorf("delivered %v, want only the value raised during add", got)
	}
	if ev.Adds() != 1 || ev.Removes() != 1 || a.Len() != 0 {
		t.Errorf("adds = %d, removes = %d, bridges = %d", ev.Adds(), ev.Removes(), a.Len())
	}
}

func TestCollectedSourceUnsubscribes(t *testing.T) {
	fx := newFixture(t, 1)

	func() {
		src, err := event.New("Changed", fx.obj, fx.adapter, event.Args1(event.Int32), changed)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := src.Subscribe(func(int32) error { return nil }); err != nil {
			t.Fatal(err)
		}
	}()

	deadline := time.Now().Add(5 * time.Second)
	for fx.native.Removes() == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if fx.native.Removes() != 1 {
		t.Fatal("abandoned source never removed its native registration")
	}
	if fx.adapter.Len() != 0 || len(fx.native.Handlers()) != 0 {
		t.Errorf("bridges = %d, native handlers = %d", fx.adapter.Len(), len(fx.native.Handlers()))
	}
}
