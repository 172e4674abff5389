package resource

import (
	stderrors "errors"
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnResourceEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

type releasableStub struct {
	name     string
	order    *[]string
	released int
	err      error
}

func (r *releasableStub) Release() error {
	r.released++
	*r.order = append(*r.order, r.name)
	return r.err
}

func TestTrackAndForget(t *testing.T) {
	tr := NewTracker()
	rec := &recorder{}
	tr.Subscribe(rec)

	h := tr.Track(KindObject, "A.Widget", "value")
	if h == 0 {
		t.Fatal("zero handle")
	}
	if v, ok := tr.Get(h); !ok || v != "value" {
		t.Errorf("Get = %v, %v", v, ok)
	}
	if k, ok := tr.Kind(h); !ok || k != KindObject {
		t.Errorf("Kind = %v, %v", k, ok)
	}
	if _, ok := tr.Forget(h); !ok {
		t.Fatal("Forget failed")
	}
	if _, ok := tr.Get(h); ok {
		t.Error("handle valid after Forget")
	}
	if _, ok := tr.Forget(h); ok {
		t.Error("second Forget succeeded")
	}

	if len(rec.events) != 2 || rec.events[0].Type != EventCreated || rec.events[1].Type != EventReleased {
		t.Fatalf("events = %+v", rec.events)
	}
	if rec.events[1].Name != "A.Widget" || rec.events[1].Kind != KindObject {
		t.Errorf("released event = %+v", rec.events[1])
	}
}

func TestHandleReuse(t *testing.T) {
	tr := NewTracker()
	h1 := tr.Track(KindObject, "a", nil)
	tr.Forget(h1)
	h2 := tr.Track(KindObject, "b", nil)
	if h1 != h2 {
		t.Errorf("handle not reused: %d, %d", h1, h2)
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d", tr.Len())
	}
}

func TestCloseReleasesNewestFirst(t *testing.T) {
	tr := NewTracker()
	var order []string
	boom := stderrors.New("boom")
	module := &releasableStub{name: "module", order: &order}
	factory := &releasableStub{name: "factory", order: &order, err: boom}
	inst := &releasableStub{name: "instance", order: &order}
	tr.Track(KindModule, "m", module)
	tr.Track(KindFactory, "f", factory)
	tr.Track(KindObject, "i", inst)

	if got := tr.Count(KindFactory); got != 1 {
		t.Errorf("Count(factory) = %d", got)
	}

	err := tr.Close()
	if !stderrors.Is(err, boom) {
		t.Errorf("Close = %v", err)
	}
	want := []string{"instance", "factory", "module"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("release order = %v, want %v", order, want)
		}
	}
	if tr.Len() != 0 {
		t.Errorf("Len = %d after Close", tr.Len())
	}
	if h := tr.Track(KindObject, "late", nil); h != 0 {
		t.Error("tracked after Close")
	}
}

func TestObserverFuncAndUnsubscribe(t *testing.T) {
	tr := NewTracker()
	var n int
	rec := &recorder{}
	tr.Subscribe(ObserverFunc(func(Event) { n++ }))
	tr.Subscribe(rec)
	tr.Track(KindSource, "Changed", nil)
	tr.Unsubscribe(rec)
	tr.Track(KindSource, "Closed", nil)
	if n != 2 || len(rec.events) != 1 {
		t.Errorf("func saw %d, recorder saw %d", n, len(rec.events))
	}
}

func TestConcurrentTracking(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				h := tr.Track(KindBridge, "b", nil)
				if err := tr.Release(h); err != nil {
					t.Error(err)
				}
			}
		}()
	}
	wg.Wait()
	if tr.Len() != 0 {
		t.Errorf("Len = %d", tr.Len())
	}
}

func TestClosePassesOverPassiveEntries(t *testing.T) {
	tr := NewTracker()
	var order []string
	inst := &releasableStub{name: "instance", order: &order}
	mod := tr.Track(KindModule, "Contoso.dll", nil)
	tr.Track(KindObject, "i", inst)

	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}
	if inst.released != 1 {
		t.Errorf("instance released %d times", inst.released)
	}
	if tr.Len() != 1 || tr.Count(KindModule) != 1 {
		t.Fatalf("Len = %d after Close, want the module entry only", tr.Len())
	}
	if _, ok := tr.Forget(mod); !ok || tr.Len() != 0 {
		t.Errorf("module entry not forgotten, Len = %d", tr.Len())
	}
}
