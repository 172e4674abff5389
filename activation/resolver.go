package activation

import (
	"strings"
	"sync"
	"sync/atomic"
	"weak"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/module"
)

// Naming maps a namespace to the module file expected to implement it.
type Naming func(namespace string) string

// DefaultNaming appends ".dll" to the namespace.
func DefaultNaming(namespace string) string {
	return namespace + ".dll"
}

// Options configures resolution.
type Options struct {
	// Naming derives module names during the namespace walk.
	Naming Naming
	// Overrides maps a full type name or a namespace prefix to a module
	// file consulted before the walk. The longest match wins.
	Overrides map[string]string
	// BrokerFallback enables the platform runtime lookup after the walk.
	BrokerFallback bool
}

// DefaultOptions returns the default resolution configuration.
func DefaultOptions() Options {
	return Options{
		Naming:         DefaultNaming,
		BrokerFallback: true,
	}
}

// Resolver locates activation factories by type name.
//
// Resolution order:
//  1. Overrides (exact type name, then the longest namespace prefix)
//  2. Namespace walk: "A.B.C.Widget" tries A.B.C, A.B, then A
//  3. The broker, when BrokerFallback is set
//
// Every failed attempt is kept; if all fail the error wraps them all.
// Results are memoized per type through weak pointers, so a factory nobody
// holds can be collected and is resolved again on the next request.
// Resolver is thread-safe.
type Resolver struct {
	modules *module.Cache
	broker  *module.Broker
	options Options

	mu    sync.Mutex
	memo  map[string]weak.Pointer[Factory]
	live  map[*holder]struct{}
	group singleflight.Group
	walks atomic.Int64
}

// New creates a resolver over the given registries. broker may be nil.
func New(modules *module.Cache, broker *module.Broker, opts Options) *Resolver {
	if opts.Naming == nil {
		opts.Naming = DefaultNaming
	}
	return &Resolver{
		modules: modules,
		broker:  broker,
		options: opts,
		memo:    make(map[string]weak.Pointer[Factory]),
		live:    make(map[*holder]struct{}),
	}
}

// NewWithDefaults creates a resolver with DefaultOptions.
func NewWithDefaults(modules *module.Cache, broker *module.Broker) *Resolver {
	return New(modules, broker, DefaultOptions())
}

// Options returns the configuration.
func (r *Resolver) Options() Options {
	return r.options
}

// Walks returns how many uncached resolutions have run.
func (r *Resolver) Walks() int64 {
	return r.walks.Load()
}

// Cached reports whether a live factory for typeName is memoized.
func (r *Resolver) Cached(typeName string) bool {
	return r.cached(typeName) != nil
}

func (r *Resolver) cached(typeName string) *Factory {
	r.mu.Lock()
	defer r.mu.Unlock()
	wp, ok := r.memo[typeName]
	if !ok {
		return nil
	}
	f := wp.Value()
	if f == nil || f.h.done.Load() {
		delete(r.memo, typeName)
		return nil
	}
	return f
}

// Resolve returns the factory for typeName. Concurrent calls for one type
// share a single resolution.
func (r *Resolver) Resolve(typeName string) (*Factory, error) {
	if f := r.cached(typeName); f != nil {
		return f, nil
	}

	v, err, _ := r.group.Do(typeName, func() (any, error) {
		if f := r.cached(typeName); f != nil {
			return f, nil
		}
		f, err := r.resolve(typeName)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.memo[typeName] = weak.Make(f)
		r.live[f.h] = struct{}{}
		r.mu.Unlock()
		return f, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Factory), nil
}

func (r *Resolver) resolve(typeName string) (*Factory, error) {
	r.walks.Add(1)
	var errs error

	for _, name := range r.Candidates(typeName) {
		obj, err := r.fromModule(name, typeName)
		if err == nil {
			Logger().Debug("factory resolved",
				zap.String("type", typeName),
				zap.String("module", name))
			return r.newFactory(typeName, name, obj), nil
		}
		Logger().Debug("factory candidate failed",
			zap.String("type", typeName),
			zap.String("module", name),
			zap.Error(err))
		errs = multierr.Append(errs, err)
	}

	if r.options.BrokerFallback && r.broker != nil {
		obj, err := r.broker.GetActivationFactory(typeName, abi.IIDActivationFactory, abi.IActivationFactory)
		if err == nil {
			Logger().Debug("factory resolved through broker", zap.String("type", typeName))
			return r.newFactory(typeName, SourceBroker, obj), nil
		}
		errs = multierr.Append(errs, err)
	}

	Logger().Info("activation factory not found",
		zap.String("type", typeName),
		zap.Int("attempts", len(multierr.Errors(errs))))
	return nil, errors.ActivationFactoryNotFound(typeName, errs)
}

func (r *Resolver) fromModule(name, typeName string) (*abi.Object, error) {
	m, err := r.modules.Load(name)
	if err != nil {
		return nil, err
	}
	defer m.Release()
	return m.GetActivationFactory(typeName)
}

// Candidates lists the module names tried for typeName, in order.
func (r *Resolver) Candidates(typeName string) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	if name, ok := r.options.Overrides[typeName]; ok {
		add(name)
	}
	for ns := Namespace(typeName); ns != ""; ns = Namespace(ns) {
		if name, ok := r.options.Overrides[ns]; ok {
			add(name)
		}
	}
	for ns := Namespace(typeName); ns != ""; ns = Namespace(ns) {
		add(r.options.Naming(ns))
	}
	return out
}

// Namespace drops the last dot-separated segment of name.
func Namespace(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return name[:i]
}

// Close releases every memoized factory that is still alive. Factories
// obtained earlier become unusable.
func (r *Resolver) Close() error {
	r.mu.Lock()
	live := r.live
	r.live = make(map[*holder]struct{})
	r.memo = make(map[string]weak.Pointer[Factory])
	r.mu.Unlock()

	var errs error
	for h := range live {
		errs = multierr.Append(errs, h.release())
	}
	return errs
}

func (r *Resolver) forget(h *holder) {
	r.mu.Lock()
	delete(r.live, h)
	r.mu.Unlock()
}
