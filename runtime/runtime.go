package runtime

import (
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/activation"
	"github.com/wippyai/winrt-runtime/config"
	"github.com/wippyai/winrt-runtime/delegate"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/event"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/hstring"
	"github.com/wippyai/winrt-runtime/iid"
	"github.com/wippyai/winrt-runtime/module"
	"github.com/wippyai/winrt-runtime/resource"
)

// Runtime ties one platform to its module cache, broker, factory resolver
// and delegate adapters. Objects and event sources it hands out are
// tracked and released by Close.
type Runtime struct {
	platform winrt.Platform
	config   *config.Config
	modules  *module.Cache
	broker   *module.Broker
	resolver *activation.Resolver
	adapters *delegate.Adapters
	iids     *iid.Cache
	tracker  *resource.Tracker

	mu      sync.Mutex
	handles map[weak.Pointer[abi.Object]]resource.Handle
	closed  atomic.Bool
}

// New creates a runtime over p. A nil cfg means config.Default().
func New(p winrt.Platform, cfg *config.Config) (*Runtime, error) {
	if p == nil {
		return nil, errors.InvalidInput(errors.PhaseConfig, "nil platform")
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	modules := module.NewCache(p, cfg.Modules.Dir)
	broker := module.NewBroker(p)
	r := &Runtime{
		platform: p,
		config:   cfg,
		modules:  modules,
		broker:   broker,
		resolver: activation.New(modules, broker, cfg.ActivationOptions()),
		adapters: delegate.NewAdapters(p),
		iids:     iid.NewCache(),
		tracker:  resource.NewTracker(),
		handles:  make(map[weak.Pointer[abi.Object]]resource.Handle),
	}
	r.tracker.Subscribe(resource.ObserverFunc(logEvent))
	modules.Track(r.tracker)
	r.adapters.Track(r.tracker)
	Logger().Debug("runtime created",
		zap.String("modules", modules.Dir()),
		zap.Bool("broker_fallback", cfg.Activation.BrokerFallback))
	return r, nil
}

// NewWithDefaults creates a runtime with the default configuration.
func NewWithDefaults(p winrt.Platform) (*Runtime, error) {
	return New(p, nil)
}

func logEvent(e resource.Event) {
	Logger().Debug("resource "+e.Type.String(),
		zap.Stringer("kind", e.Kind),
		zap.String("name", e.Name),
		zap.Uint32("handle", uint32(e.Handle)))
}

// Platform returns the underlying platform.
func (r *Runtime) Platform() winrt.Platform { return r.platform }

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() *config.Config { return r.config }

// Modules returns the module cache.
func (r *Runtime) Modules() *module.Cache { return r.modules }

// Broker returns the runtime broker reference.
func (r *Runtime) Broker() *module.Broker { return r.broker }

// Resolver returns the activation factory resolver.
func (r *Runtime) Resolver() *activation.Resolver { return r.resolver }

// Adapters returns the delegate adapter cache.
func (r *Runtime) Adapters() *delegate.Adapters { return r.adapters }

// Tracker returns the live resource tracker.
func (r *Runtime) Tracker() *resource.Tracker { return r.tracker }

func (r *Runtime) check(phase errors.Phase) error {
	if r.closed.Load() {
		return errors.Closed(phase, "runtime")
	}
	return nil
}

// Resolve returns the activation factory for typeName.
func (r *Runtime) Resolve(typeName string) (*activation.Factory, error) {
	if err := r.check(errors.PhaseResolution); err != nil {
		return nil, err
	}
	return r.resolver.Resolve(typeName)
}

// Activate creates an instance of typeName through its default
// constructor. The instance is tracked until Release or Close.
func (r *Runtime) Activate(typeName string) (*abi.Object, error) {
	f, err := r.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	obj, err := f.ActivateInstance()
	if err != nil {
		return nil, err
	}
	return r.track(resource.KindObject, typeName, obj), nil
}

// ActivateAs activates typeName and casts the instance to s.
func (r *Runtime) ActivateAs(typeName string, s *abi.Schema) (*abi.Object, error) {
	f, err := r.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	obj, err := f.ActivateInstanceAs(s.IID, s)
	if err != nil {
		return nil, err
	}
	return r.track(resource.KindObject, typeName, obj), nil
}

// Statics queries the factory of typeName for a statics interface.
func (r *Runtime) Statics(typeName string, s *abi.Schema) (*abi.Object, error) {
	f, err := r.Resolve(typeName)
	if err != nil {
		return nil, err
	}
	obj, err := f.As(s.IID, s)
	if err != nil {
		return nil, err
	}
	return r.track(resource.KindFactory, typeName, obj), nil
}

// Adopt tracks an object obtained elsewhere so Close releases it.
func (r *Runtime) Adopt(name string, obj *abi.Object) *abi.Object {
	return r.track(resource.KindObject, name, obj)
}

// track records obj without keeping it reachable. The entry is dropped
// when obj is released, whether through Release, obj.Release or the
// collection of an abandoned handle.
func (r *Runtime) track(kind resource.Kind, name string, obj *abi.Object) *abi.Object {
	key := weak.Make(obj)
	r.mu.Lock()
	if _, ok := r.handles[key]; ok || obj.Released() {
		r.mu.Unlock()
		return obj
	}
	h := r.tracker.Track(kind, name, tracked{key})
	if h == 0 {
		r.mu.Unlock()
		return obj
	}
	r.handles[key] = h
	r.mu.Unlock()

	obj.OnRelease(func() { r.forget(key) })
	if obj.Released() {
		r.forget(key)
	}
	return obj
}

func (r *Runtime) forget(key weak.Pointer[abi.Object]) {
	r.mu.Lock()
	h, ok := r.handles[key]
	delete(r.handles, key)
	r.mu.Unlock()
	if ok {
		r.tracker.Forget(h)
	}
}

// Release releases obj. A tracked object stops being tracked.
func (r *Runtime) Release(obj *abi.Object) error {
	return obj.Release()
}

// tracked releases an object on Close unless its holder already did or
// it was collected, in which case its cleanup released it.
type tracked struct {
	obj weak.Pointer[abi.Object]
}

func (t tracked) Release() error {
	obj := t.obj.Value()
	if obj == nil || obj.Released() {
		return nil
	}
	return obj.Release()
}

// IID returns the interface identifier of t, memoizing derived ones.
func (r *Runtime) IID(t iid.Type) (guid.GUID, error) {
	return r.iids.Of(t)
}

// Adapter returns the shared delegate adapter for a delegate type.
func (r *Runtime) Adapter(t iid.Type, arity int) (*delegate.Adapter, error) {
	id, err := r.IID(t)
	if err != nil {
		return nil, err
	}
	return r.adapters.Get(t.String(), id, arity)
}

// NewSource creates an event source on obj whose handler type is t. The
// source is closed by Runtime.Close.
func NewSource[T any](r *Runtime, name string, obj *abi.Object, t iid.Type, decoder event.Decoder[T], opts event.Options) (*event.Source[T], error) {
	if err := r.check(errors.PhaseEvent); err != nil {
		return nil, err
	}
	a, err := r.Adapter(t, decoder.Arity)
	if err != nil {
		return nil, err
	}
	src, err := event.New(name, obj, a, decoder, opts)
	if err != nil {
		return nil, err
	}
	r.tracker.Track(resource.KindSource, name, src)
	return src, nil
}

// String creates a string handle owned by the caller.
func (r *Runtime) String(s string) (*hstring.String, error) {
	return hstring.New(r.platform, s)
}

// Close releases every tracked object and source, the memoized factories
// and the delegate adapters. Bridges still referenced at this point are
// reported as leaks.
func (r *Runtime) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	errs := r.tracker.Close()
	errs = multierr.Append(errs, r.resolver.Close())
	errs = multierr.Append(errs, r.adapters.Close())

	r.mu.Lock()
	clear(r.handles)
	r.mu.Unlock()

	if n := r.modules.Len(); n > 0 {
		Logger().Warn("modules still loaded after close",
			zap.Int("count", n),
			zap.Strings("modules", r.modules.Names()))
	}
	return errs
}
