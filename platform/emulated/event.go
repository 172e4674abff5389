package emulated

import (
	"sort"
	"sync"

	"github.com/wippyai/winrt-runtime/errors"
)

// invokeSlot is the delegate Invoke slot, right after the IUnknown prefix.
const invokeSlot = 3

// Event is the native side of one event: the add/remove pair plus the
// registered handler delegates.
type Event struct {
	p *Platform

	mu       sync.Mutex
	handlers map[int64]uintptr
	next     int64
	adds     int
	removes  int
}

// NewEvent creates an event with no handlers.
func (p *Platform) NewEvent() *Event {
	return &Event{p: p, handlers: make(map[int64]uintptr)}
}

// Methods returns the add and remove methods, in that order, for use in an
// Interface method list.
func (e *Event) Methods() []any {
	return []any{e.add, e.remove}
}

func (e *Event) add(this, handler, tokenOut uintptr) uintptr {
	if handler == 0 || tokenOut == 0 {
		return uintptr(errors.EPointer)
	}
	fn, err := e.p.Slot(handler, 1)
	if err != nil {
		return uintptr(errors.HResultOf(err))
	}
	e.p.Call(fn, handler)

	e.mu.Lock()
	e.next++
	token := e.next
	e.handlers[token] = handler
	e.adds++
	e.mu.Unlock()

	if err := e.p.WriteU64(tokenOut, uint64(token)); err != nil {
		return uintptr(errors.HResultOf(err))
	}
	return uintptr(errors.OK)
}

func (e *Event) remove(this, token uintptr) uintptr {
	e.mu.Lock()
	handler, ok := e.handlers[int64(token)]
	delete(e.handlers, int64(token))
	e.removes++
	e.mu.Unlock()

	if !ok {
		return uintptr(errors.OK)
	}
	fn, err := e.p.Slot(handler, 2)
	if err != nil {
		return uintptr(errors.HResultOf(err))
	}
	e.p.Call(fn, handler)
	return uintptr(errors.OK)
}

// Raise invokes every registered handler with args and returns their
// statuses in registration order.
func (e *Event) Raise(args ...uintptr) []errors.HResult {
	handlers := e.Handlers()
	out := make([]errors.HResult, len(handlers))
	for i, h := range handlers {
		out[i] = e.p.Invoke(h, args...)
	}
	return out
}

// Handlers returns the registered delegates in registration order.
func (e *Event) Handlers() []uintptr {
	e.mu.Lock()
	defer e.mu.Unlock()
	tokens := make([]int64, 0, len(e.handlers))
	for t := range e.handlers {
		tokens = append(tokens, t)
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i] < tokens[j] })
	out := make([]uintptr, len(tokens))
	for i, t := range tokens {
		out[i] = e.handlers[t]
	}
	return out
}

// Adds returns how many times add was called.
func (e *Event) Adds() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.adds
}

// Removes returns how many times remove was called.
func (e *Event) Removes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.removes
}

// Slot reads entry i of the table behind an interface pointer.
func (p *Platform) Slot(obj uintptr, i int) (uintptr, error) {
	table, err := p.ReadPtr(obj)
	if err != nil {
		return 0, err
	}
	return p.ReadPtr(table + uintptr(i)*p.PointerSize())
}

// Invoke calls a delegate's Invoke slot with the delegate pointer first.
func (p *Platform) Invoke(delegate uintptr, args ...uintptr) errors.HResult {
	fn, err := p.Slot(delegate, invokeSlot)
	if err != nil {
		return errors.HResultOf(err)
	}
	return errors.HResult(p.Call(fn, append([]uintptr{delegate}, args...)...))
}
