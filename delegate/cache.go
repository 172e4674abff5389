package delegate

import (
	"sync"

	"go.uber.org/multierr"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/resource"
)

type key struct {
	iid   guid.GUID
	arity int
}

// Adapters shares one Adapter per delegate kind so thunks are created once
// per process rather than once per subscription.
type Adapters struct {
	p winrt.Platform

	mu       sync.Mutex
	adapters map[key]*Adapter
	tracker  *resource.Tracker
}

// NewAdapters creates an empty adapter cache.
func NewAdapters(p winrt.Platform) *Adapters {
	return &Adapters{p: p, adapters: make(map[key]*Adapter)}
}

// Track records the bridges of every adapter, present and future, in t.
func (c *Adapters) Track(t *resource.Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker = t
	for _, a := range c.adapters {
		a.Track(t)
	}
}

// Get returns the adapter for iid and arity, creating it on first use.
func (c *Adapters) Get(name string, iid guid.GUID, arity int) (*Adapter, error) {
	k := key{iid: iid, arity: arity}
	c.mu.Lock()
	defer c.mu.Unlock()
	if a, ok := c.adapters[k]; ok {
		return a, nil
	}
	a, err := NewAdapter(c.p, name, iid, arity)
	if err != nil {
		return nil, err
	}
	if c.tracker != nil {
		a.Track(c.tracker)
	}
	c.adapters[k] = a
	return a, nil
}

// Live returns the number of live bridges across all adapters.
func (c *Adapters) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, a := range c.adapters {
		n += a.Len()
	}
	return n
}

// Close closes every adapter.
func (c *Adapters) Close() error {
	c.mu.Lock()
	adapters := make([]*Adapter, 0, len(c.adapters))
	for _, a := range c.adapters {
		adapters = append(adapters, a)
	}
	clear(c.adapters)
	c.mu.Unlock()

	var errs error
	for _, a := range adapters {
		errs = multierr.Append(errs, a.Close())
	}
	return errs
}
