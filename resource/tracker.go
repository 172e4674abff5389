package resource

import (
	"sync"

	"go.uber.org/multierr"
)

// Tracker records live runtime resources and notifies observers of their
// lifecycle. Close releases whatever is still tracked, newest first.
type Tracker struct {
	store     *store
	observers []Observer
	obsMu     sync.RWMutex
	closed    bool
	closeMu   sync.RWMutex
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{store: newStore()}
}

// Track records value and returns its handle, or 0 after Close.
func (t *Tracker) Track(kind Kind, name string, value any) Handle {
	t.closeMu.RLock()
	defer t.closeMu.RUnlock()
	if t.closed {
		return 0
	}

	h := t.store.create(kind, name, value)
	t.notify(Event{
		Type:   EventCreated,
		Handle: h,
		Kind:   kind,
		Name:   name,
		Value:  value,
	})
	return h
}

// Get returns the value tracked under h.
func (t *Tracker) Get(h Handle) (any, bool) {
	e, ok := t.store.get(h)
	return e.value, ok
}

// Kind returns the kind of the resource tracked under h.
func (t *Tracker) Kind(h Handle) (Kind, bool) {
	e, ok := t.store.get(h)
	return e.kind, ok
}

// Forget stops tracking h without releasing the value. The caller has
// released it already.
func (t *Tracker) Forget(h Handle) (any, bool) {
	e, ok := t.store.drop(h)
	if !ok {
		return nil, false
	}
	t.notify(Event{
		Type:   EventReleased,
		Handle: h,
		Kind:   e.kind,
		Name:   e.name,
		Value:  e.value,
	})
	return e.value, true
}

// Release stops tracking h and releases the value.
func (t *Tracker) Release(h Handle) error {
	v, ok := t.Forget(h)
	if !ok {
		return nil
	}
	return release(v)
}

func releasable(v any) bool {
	switch v.(type) {
	case Releaser, Closer:
		return true
	}
	return false
}

func release(v any) error {
	switch r := v.(type) {
	case Releaser:
		return r.Release()
	case Closer:
		return r.Close()
	}
	return nil
}

// Subscribe adds an observer.
func (t *Tracker) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Tracker) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of tracked resources.
func (t *Tracker) Len() int {
	return t.store.len()
}

// Count returns the number of tracked resources of one kind.
func (t *Tracker) Count(kind Kind) int {
	n := 0
	t.store.each(func(_ Handle, e entry) bool {
		if e.kind == kind {
			n++
		}
		return true
	})
	return n
}

// Each calls fn for every tracked resource until fn returns false.
func (t *Tracker) Each(fn func(h Handle, kind Kind, name string) bool) {
	t.store.each(func(h Handle, e entry) bool {
		return fn(h, e.kind, e.name)
	})
}

// Close stops accepting resources and releases everything still tracked
// that is a Releaser or a Closer. Other entries record resources owned
// elsewhere and stay until their owner forgets them.
func (t *Tracker) Close() error {
	t.closeMu.Lock()
	t.closed = true
	t.closeMu.Unlock()

	var handles []Handle
	t.store.each(func(h Handle, e entry) bool {
		if releasable(e.value) {
			handles = append(handles, h)
		}
		return true
	})

	var errs error
	for i := len(handles) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, t.Release(handles[i]))
	}
	return errs
}

func (t *Tracker) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
