package activation

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// SourceBroker is the Source of factories obtained from the broker.
const SourceBroker = "broker"

// holder owns the factory handle on behalf of every Factory user. It is
// released once, either by Resolver.Close or when the Factory is collected.
type holder struct {
	obj      *abi.Object
	resolver *Resolver
	done     atomic.Bool
}

func (h *holder) release() error {
	if !h.done.CompareAndSwap(false, true) {
		return nil
	}
	return h.obj.Release()
}

func collect(h *holder) {
	if err := h.release(); err != nil {
		Logger().Warn("release of collected factory failed", zap.Error(err))
	}
	h.resolver.forget(h)
}

// Factory is a resolved activation factory. It is shared by everyone who
// resolves the same type and lives as long as any of them holds it.
type Factory struct {
	name   string
	source string
	h      *holder
}

func (r *Resolver) newFactory(typeName, source string, obj *abi.Object) *Factory {
	f := &Factory{
		name:   typeName,
		source: source,
		h:      &holder{obj: obj, resolver: r},
	}
	runtime.AddCleanup(f, collect, f.h)
	return f
}

// Name returns the type the factory activates.
func (f *Factory) Name() string { return f.name }

// Source returns the module name that produced the factory, or
// SourceBroker.
func (f *Factory) Source() string { return f.source }

// Object returns the underlying IActivationFactory handle.
func (f *Factory) Object() *abi.Object { return f.h.obj }

func (f *Factory) check() error {
	if f.h.done.Load() {
		return errors.Closed(errors.PhaseActivate, f.name)
	}
	return nil
}

// ActivateInstance creates an instance through the default constructor.
// The instance keeps the factory's module loaded.
func (f *Factory) ActivateInstance() (*abi.Object, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	obj := f.h.obj
	ptr, err := obj.CallOut("ActivateInstance")
	runtime.KeepAlive(f)
	if err != nil {
		return nil, err
	}
	return abi.Attach(obj.Platform(), obj.Owner(), ptr, abi.IInspectable)
}

// ActivateInstanceAs activates an instance and casts it to iid.
func (f *Factory) ActivateInstanceAs(iid guid.GUID, s *abi.Schema) (*abi.Object, error) {
	inst, err := f.ActivateInstance()
	if err != nil {
		return nil, err
	}
	defer inst.Release()
	return inst.As(iid, s)
}

// As queries the factory itself for another interface, typically a
// statics interface.
func (f *Factory) As(iid guid.GUID, s *abi.Schema) (*abi.Object, error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	obj, err := f.h.obj.As(iid, s)
	runtime.KeepAlive(f)
	return obj, err
}
