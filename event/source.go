package event

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/delegate"
	"github.com/wippyai/winrt-runtime/errors"
)

// Handler receives one decoded event payload.
type Handler[T any] func(T) error

// Token identifies one host subscription.
type Token uint64

type entry[T any] struct {
	token Token
	fn    Handler[T]
}

// snapshot is what dispatch sees: the current generation and its
// handlers. It is replaced, never modified.
type snapshot[T any] struct {
	gen      uint64
	handlers []entry[T]
}

// Options configures a Source.
type Options struct {
	// Add and Remove are the slot names of the native add/remove pair.
	Add    string
	Remove string

	// Sender binds the bridge to one source address when Bound is set.
	Sender uintptr
	Bound  bool
}

// Source multicasts one native event to any number of host handlers
// through a single bridge. The native add happens when the first handler
// subscribes and the native remove when the last one leaves.
//
// The source does not own obj; the caller keeps it alive until Close. A
// source dropped while subscribed is unsubscribed when collected.
type Source[T any] struct {
	*source[T]
}

// source is the part of a Source reachable from its bridge. It never
// points back at the Source, so an abandoned Source can be collected.
type source[T any] struct {
	name    string
	obj     *abi.Object
	adapter *delegate.Adapter
	decoder Decoder[T]
	opts    Options

	// current is read by dispatch without taking mu, so a component may
	// raise the event from inside its own add or remove.
	current atomic.Pointer[snapshot[T]]

	mu       sync.Mutex
	handlers []entry[T]
	next     Token
	bridge   *delegate.Bridge
	native   int64
	gen      uint64
	adds     int
	removes  int
	closed   bool
}

// New creates an unsubscribed source for the event exposed by obj through
// the opts.Add and opts.Remove slots.
func New[T any](name string, obj *abi.Object, adapter *delegate.Adapter, decoder Decoder[T], opts Options) (*Source[T], error) {
	if obj == nil {
		return nil, errors.Argument(errors.PhaseEvent, "nil event source for %s", name)
	}
	if decoder.Arity != adapter.Arity() {
		return nil, errors.Argument(errors.PhaseEvent, "%s decodes %d arguments but %s.Invoke takes %d",
			name, decoder.Arity, adapter.Schema().Name, adapter.Arity())
	}
	for _, slot := range []string{opts.Add, opts.Remove} {
		if _, ok := obj.Schema().Slot(slot); !ok {
			return nil, errors.NotFound(errors.PhaseEvent, "slot", obj.Schema().Name+"."+slot)
		}
	}
	inner := &source[T]{
		name:    name,
		obj:     obj,
		adapter: adapter,
		decoder: decoder,
		opts:    opts,
	}
	inner.current.Store(&snapshot[T]{})
	src := &Source[T]{inner}
	runtime.AddCleanup(src, (*source[T]).collected, inner)
	return src, nil
}

// Typed creates a source for a TypedEventHandler event. The bridge only
// accepts invocations whose sender is obj itself, and handlers receive the
// decoded args.
func Typed[T any](name string, obj *abi.Object, adapter *delegate.Adapter, args Unmarshaler[T], add, remove string) (*Source[T], error) {
	if obj == nil {
		return nil, errors.Argument(errors.PhaseEvent, "nil event source for %s", name)
	}
	return New(name, obj, adapter, Sent(args), Options{
		Add:    add,
		Remove: remove,
		Sender: obj.Addr(),
		Bound:  true,
	})
}

// Subscribe registers h. The first subscription installs the bridge with
// the native add; h already receives events raised during that add.
func (s *source[T]) Subscribe(h Handler[T]) (Token, error) {
	if h == nil {
		return 0, errors.Argument(errors.PhaseEvent, "nil handler for %s", s.name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errors.Closed(errors.PhaseEvent, s.name)
	}
	s.next++
	tok := s.next
	s.handlers = append(s.handlers, entry[T]{token: tok, fn: h})
	if s.bridge != nil {
		s.publish()
		return tok, nil
	}
	if err := s.attach(); err != nil {
		s.handlers = s.handlers[:len(s.handlers)-1]
		s.publish()
		return 0, err
	}
	return tok, nil
}

// Unsubscribe removes the handler registered under t. Removing the last
// handler performs the native remove and drops the bridge.
func (s *source[T]) Unsubscribe(t Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.index(t)
	if i < 0 {
		return errors.NotFound(errors.PhaseEvent, "subscription", fmt.Sprintf("%s#%d", s.name, t))
	}
	s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
	if len(s.handlers) == 0 {
		return s.detach()
	}
	s.publish()
	return nil
}

func (s *source[T]) index(t Token) int {
	for i, e := range s.handlers {
		if e.token == t {
			return i
		}
	}
	return -1
}

// publish runs with s.mu held. The handler slice is copied so later
// appends never show through an old snapshot.
func (s *source[T]) publish() {
	s.current.Store(&snapshot[T]{
		gen:      s.gen,
		handlers: append([]entry[T](nil), s.handlers...),
	})
}

// attach runs with s.mu held.
func (s *source[T]) attach() error {
	s.gen++
	gen := s.gen
	s.publish()

	var opts []delegate.Option
	if s.opts.Bound {
		opts = append(opts, delegate.WithSender(s.opts.Sender))
	}
	b, err := s.adapter.New(func(args []uintptr) error {
		return s.dispatch(gen, args)
	}, opts...)
	if err != nil {
		s.gen++
		return err
	}

	p := s.obj.Platform()
	out, err := abi.NewOut(p, 1)
	if err != nil {
		s.gen++
		_ = b.Release()
		return err
	}
	defer out.Free()

	if err := s.obj.Call(s.opts.Add, b.Addr(), out.Addr(0)); err != nil {
		s.gen++
		_ = b.Release()
		return err
	}
	token, err := out.U64(0)
	if err != nil {
		s.gen++
		_ = b.Release()
		return err
	}
	s.adds++
	s.bridge = b
	s.native = int64(token)
	Logger().Debug("event subscribed",
		zap.String("event", s.name),
		zap.Int64("token", s.native))
	return nil
}

// detach runs with s.mu held. The generation moves on before the native
// remove, so anything raised from here on is dropped.
func (s *source[T]) detach() error {
	b := s.bridge
	if b == nil {
		s.publish()
		return nil
	}
	s.gen++
	s.publish()
	s.bridge = nil
	s.removes++

	err := s.obj.Call(s.opts.Remove, uintptr(s.native))
	if err != nil {
		Logger().Warn("native event remove failed",
			zap.String("event", s.name),
			zap.Int64("token", s.native),
			zap.Error(err))
	}
	Logger().Debug("event unsubscribed",
		zap.String("event", s.name),
		zap.Int64("token", s.native))
	s.native = 0
	return multierr.Append(err, b.Release())
}

func (s *source[T]) dispatch(gen uint64, args []uintptr) error {
	snap := s.current.Load()
	if snap.gen != gen {
		Logger().Debug("dropped event for stale subscription", zap.String("event", s.name))
		return nil
	}

	payload, err := s.decoder.decode(s.obj.Platform(), args)
	if err != nil {
		return err
	}
	var errs error
	for _, e := range snap.handlers {
		errs = multierr.Append(errs, s.call(e, payload))
	}
	return errs
}

func (s *source[T]) call(e entry[T], payload T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			Logger().Error("event handler panicked",
				zap.String("event", s.name),
				zap.Uint64("subscription", uint64(e.token)),
				zap.Any("panic", r))
			err = errors.Panic(errors.PhaseEvent, s.name, r)
		}
	}()
	return e.fn(payload)
}

// collected unsubscribes a Source that was dropped without Close.
func (s *source[T]) collected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.bridge != nil {
		Logger().Warn("event source collected while subscribed",
			zap.String("event", s.name),
			zap.Int("handlers", len(s.handlers)))
	}
	s.handlers = nil
	if err := s.detach(); err != nil {
		Logger().Error("unsubscribe of collected event source failed",
			zap.String("event", s.name),
			zap.Error(err))
	}
}

// Len returns the number of host handlers.
func (s *source[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handlers)
}

// Subscribed reports whether the native subscription is installed.
func (s *source[T]) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge != nil
}

// NativeToken returns the token of the current native subscription, or 0.
func (s *source[T]) NativeToken() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.native
}

// Stats returns how many native adds and removes the source performed.
func (s *source[T]) Stats() (adds, removes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adds, s.removes
}

// Close drops every handler and the native subscription. Later Subscribe
// calls fail with a Closed error.
func (s *source[T]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.handlers = nil
	return s.detach()
}

// Platform returns the platform of the underlying object.
func (s *source[T]) Platform() winrt.Platform {
	return s.obj.Platform()
}
