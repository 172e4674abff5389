package emulated

import (
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/hstring"
)

var (
	iidUnknown           = guid.MustParse("00000000-0000-0000-c000-000000000046")
	iidInspectable       = guid.MustParse("af86e2e0-b12d-4c6a-9c5a-d7aa65101e90")
	iidAgile             = guid.MustParse("94ea2b94-e9cc-49e0-c0ff-ee64ca8f5b90")
	iidActivationFactory = guid.MustParse("00000035-0000-0000-c000-000000000046")
)

// Interface is one interface implemented by an emulated object. Methods
// follow the IUnknown/IInspectable prefix in slot order; each takes the
// interface pointer first and returns a status.
type Interface struct {
	IID     guid.GUID
	Methods []any
}

// Spec describes an emulated object.
type Spec struct {
	ClassName  string
	TrustLevel int32
	// Plain objects expose IUnknown only, like delegates and classic COM.
	Plain      bool
	Interfaces []Interface
	// NoAgile hides IAgileObject.
	NoAgile   bool
	OnDestroy func()
}

// Object is a reference-counted native object living in the arena. It
// starts with one reference, which belongs to whoever receives it first.
type Object struct {
	p    *Platform
	spec Spec

	refs         atomic.Int32
	overReleased atomic.Int32
	destroyed    atomic.Bool

	primary uintptr
	ptrs    map[guid.GUID]uintptr
	blocks  []uintptr

	mu    sync.Mutex
	calls map[string]int
}

// NewObject builds an object and its interface tables.
func (p *Platform) NewObject(spec Spec) (*Object, error) {
	o := &Object{
		p:     p,
		spec:  spec,
		ptrs:  make(map[guid.GUID]uintptr),
		calls: make(map[string]int),
	}
	o.refs.Store(1)

	prefix := []any{o.queryInterface, o.addRef, o.release}
	if !spec.Plain {
		prefix = append(prefix, o.getIids, o.getRuntimeClassName, o.getTrustLevel)
	}
	base := make([]uintptr, len(prefix))
	for i, fn := range prefix {
		addr, err := p.register(fn, spec.ClassName)
		if err != nil {
			return nil, err
		}
		base[i] = addr
	}

	primary, err := o.newPointer(base)
	if err != nil {
		o.free()
		return nil, err
	}
	o.primary = primary

	for _, iface := range spec.Interfaces {
		slots := append([]uintptr(nil), base...)
		for _, m := range iface.Methods {
			fn, err := o.guard(m)
			if err != nil {
				o.free()
				return nil, err
			}
			addr, err := p.register(fn, spec.ClassName)
			if err != nil {
				o.free()
				return nil, err
			}
			slots = append(slots, addr)
		}
		ptr, err := o.newPointer(slots)
		if err != nil {
			o.free()
			return nil, err
		}
		o.ptrs[iface.IID] = ptr
	}

	p.objMu.Lock()
	p.objects[o.primary] = o
	for _, ptr := range o.ptrs {
		p.objects[ptr] = o
	}
	p.objMu.Unlock()
	return o, nil
}

// ObjectAt returns the emulated object behind an interface pointer.
func (p *Platform) ObjectAt(ptr uintptr) (*Object, bool) {
	p.objMu.Lock()
	defer p.objMu.Unlock()
	o, ok := p.objects[ptr]
	return o, ok
}

// newPointer lays out [vtable pointer][unused] and its table.
func (o *Object) newPointer(slots []uintptr) (uintptr, error) {
	ps := o.p.PointerSize()
	table, err := o.p.Alloc(uintptr(len(slots))*ps, ps)
	if err != nil {
		return 0, err
	}
	o.blocks = append(o.blocks, table)
	for i, fn := range slots {
		if err := o.p.WritePtr(table+uintptr(i)*ps, fn); err != nil {
			return 0, err
		}
	}
	ptr, err := o.p.Alloc(2*ps, ps)
	if err != nil {
		return 0, err
	}
	o.blocks = append(o.blocks, ptr)
	if err := o.p.WritePtr(ptr, table); err != nil {
		return 0, err
	}
	return ptr, nil
}

// guard wraps an author method so calls on a destroyed object fail with
// RO_E_CLOSED instead of running.
func (o *Object) guard(m any) (any, error) {
	v, err := checkShape(m)
	if err != nil {
		return nil, err
	}
	if v.Type().NumIn() == 0 {
		return nil, errors.Argument(errors.PhasePlatform, "method %s has no interface pointer parameter", v.Type())
	}
	wrapped := reflect.MakeFunc(v.Type(), func(args []reflect.Value) []reflect.Value {
		if o.destroyed.Load() {
			return []reflect.Value{reflect.ValueOf(uintptr(errors.ROClosed))}
		}
		return v.Call(args)
	})
	return wrapped.Interface(), nil
}

func (o *Object) free() {
	for _, b := range o.blocks {
		o.p.Free(b)
	}
	o.blocks = nil
}

// Pointer returns the identity (IUnknown) pointer.
func (o *Object) Pointer() uintptr {
	return o.primary
}

// PointerFor returns the pointer for iid, or zero.
func (o *Object) PointerFor(iid guid.GUID) uintptr {
	return o.ptrs[iid]
}

// Refs returns the current reference count.
func (o *Object) Refs() int32 {
	return o.refs.Load()
}

// Destroyed reports whether the count reached zero.
func (o *Object) Destroyed() bool {
	return o.destroyed.Load()
}

// OverReleased returns how many Release calls arrived at a zero count.
func (o *Object) OverReleased() int32 {
	return o.overReleased.Load()
}

// Calls returns how often the named prefix method was invoked.
func (o *Object) Calls(method string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[method]
}

func (o *Object) count(method string) {
	o.mu.Lock()
	o.calls[method]++
	o.mu.Unlock()
}

// AddRef adds a reference from authoring code.
func (o *Object) AddRef() uint32 {
	return uint32(o.addRef(o.primary))
}

// Release drops a reference from authoring code.
func (o *Object) Release() uint32 {
	return uint32(o.release(o.primary))
}

func (o *Object) query(iid guid.GUID) (uintptr, errors.HResult) {
	if o.destroyed.Load() {
		return 0, errors.ROClosed
	}
	var ptr uintptr
	switch {
	case iid == iidUnknown:
		ptr = o.primary
	case iid == iidInspectable && !o.spec.Plain:
		ptr = o.primary
	case iid == iidAgile && !o.spec.NoAgile:
		ptr = o.primary
	default:
		ptr = o.ptrs[iid]
	}
	if ptr == 0 {
		return 0, errors.ENoInterface
	}
	o.refs.Add(1)
	return ptr, errors.OK
}

func (o *Object) queryInterface(this, iid, out uintptr) uintptr {
	o.count("QueryInterface")
	if out == 0 {
		return uintptr(errors.EPointer)
	}
	raw, err := o.p.Read(iid, guid.Size)
	if err != nil {
		return uintptr(errors.HResultOf(err))
	}
	id, _ := guid.FromBytes(raw)
	ptr, hr := o.query(id)
	if err := o.p.WritePtr(out, ptr); err != nil {
		return uintptr(errors.HResultOf(err))
	}
	return uintptr(hr)
}

func (o *Object) addRef(this uintptr) uintptr {
	o.count("AddRef")
	return uintptr(uint32(o.refs.Add(1)))
}

func (o *Object) release(this uintptr) uintptr {
	o.count("Release")
	n := o.refs.Add(-1)
	switch {
	case n == 0:
		o.destroy()
	case n < 0:
		o.overReleased.Add(1)
		o.refs.Store(0)
		return 0
	}
	return uintptr(uint32(n))
}

func (o *Object) destroy() {
	if !o.destroyed.CompareAndSwap(false, true) {
		return
	}
	o.p.objMu.Lock()
	delete(o.p.objects, o.primary)
	for _, ptr := range o.ptrs {
		delete(o.p.objects, ptr)
	}
	o.p.objMu.Unlock()

	o.free()
	if o.spec.OnDestroy != nil {
		o.spec.OnDestroy()
	}
}

func (o *Object) getIids(this, countOut, iidsOut uintptr) uintptr {
	o.count("GetIids")
	n := len(o.spec.Interfaces)
	arr, err := o.p.Alloc(uintptr(max(n, 1))*guid.Size, 4)
	if err != nil {
		return uintptr(errors.EOutOfMemory)
	}
	for i, iface := range o.spec.Interfaces {
		if err := o.p.Write(arr+uintptr(i)*guid.Size, iface.IID.Bytes()); err != nil {
			return uintptr(errors.HResultOf(err))
		}
	}
	if err := o.p.WriteU32(countOut, uint32(n)); err != nil {
		return uintptr(errors.HResultOf(err))
	}
	if err := o.p.WritePtr(iidsOut, arr); err != nil {
		return uintptr(errors.HResultOf(err))
	}
	return uintptr(errors.OK)
}

func (o *Object) getRuntimeClassName(this, out uintptr) uintptr {
	o.count("GetRuntimeClassName")
	s, err := hstring.New(o.p, o.spec.ClassName)
	if err != nil {
		return uintptr(errors.HResultOf(err))
	}
	handle := s.Handle()
	if err := o.p.WritePtr(out, handle); err != nil {
		return uintptr(errors.HResultOf(err))
	}
	return uintptr(errors.OK)
}

func (o *Object) getTrustLevel(this, out uintptr) uintptr {
	o.count("GetTrustLevel")
	if err := o.p.WriteU32(out, uint32(o.spec.TrustLevel)); err != nil {
		return uintptr(errors.HResultOf(err))
	}
	return uintptr(errors.OK)
}

// NewFactory builds an activation factory for class. activate produces a
// fresh instance whose single reference is handed to the caller; a nil
// activate makes ActivateInstance return E_NOTIMPL. statics adds further
// interfaces to the factory.
func (p *Platform) NewFactory(class string, activate func() (*Object, error), statics ...Interface) (*Object, error) {
	activateInstance := func(this, out uintptr) uintptr {
		if out == 0 {
			return uintptr(errors.EPointer)
		}
		if activate == nil {
			return uintptr(errors.ENotImpl)
		}
		inst, err := activate()
		if err != nil {
			return uintptr(errors.HResultOf(err))
		}
		if err := p.WritePtr(out, inst.Pointer()); err != nil {
			inst.Release()
			return uintptr(errors.HResultOf(err))
		}
		return uintptr(errors.OK)
	}

	ifaces := append([]Interface{{
		IID:     iidActivationFactory,
		Methods: []any{activateInstance},
	}}, statics...)
	return p.NewObject(Spec{
		ClassName:  class,
		Interfaces: ifaces,
	})
}
