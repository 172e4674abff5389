package abi

import (
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// Owner keeps the code behind an object's table mapped. Every owned handle
// holds one explicit reference on its owner and returns it after the
// native Release.
type Owner interface {
	Retain()
	Release() error
}

// state is the part of an Object needed to release it. It is separate from
// the Object so a leak cleanup can reach it without resurrecting the handle.
type state struct {
	p       winrt.Platform
	addr    uintptr
	release uintptr
	owner   Owner
	owns    bool
	name    string
	done    atomic.Bool
	hook    atomic.Pointer[func()]
}

func (s *state) drop() error {
	if s.owns {
		s.p.Call(s.release, s.addr)
	}
	var err error
	if s.owner != nil {
		err = s.owner.Release()
	}
	if fn := s.hook.Load(); fn != nil {
		(*fn)()
	}
	return err
}

func leaked(s *state) {
	if !s.done.CompareAndSwap(false, true) {
		return
	}
	Logger().Warn("object handle collected without Release",
		zap.String("interface", s.name),
		zap.Uintptr("addr", s.addr))
	if err := s.drop(); err != nil {
		Logger().Error("release of collected handle failed", zap.Error(err))
	}
}

// Object is a handle to one interface pointer. An owned handle holds one
// native reference, released exactly once by Release. A borrowed handle
// holds none.
type Object struct {
	st      *state
	schema  *Schema
	vt      *Vtable
	cleanup runtime.Cleanup
	tracked bool
}

// Attach takes over the single reference a native call returned with addr.
// No reference is added.
func Attach(p winrt.Platform, owner Owner, addr uintptr, s *Schema) (*Object, error) {
	return newObject(p, owner, addr, s, true)
}

// FromBorrowed adds a reference to an address the caller does not own and
// returns a handle owning that new reference.
func FromBorrowed(p winrt.Platform, owner Owner, addr uintptr, s *Schema) (*Object, error) {
	vt, err := ReadVtable(p, p.PointerSize(), addr, s)
	if err != nil {
		return nil, err
	}
	p.Call(vt.Fns[1], addr)
	return build(p, owner, addr, s, vt, true), nil
}

// Borrow wraps addr without taking a reference. Release is a no-op on the
// native count. The caller keeps addr alive for the handle's lifetime.
func Borrow(p winrt.Platform, addr uintptr, s *Schema) (*Object, error) {
	return newObject(p, nil, addr, s, false)
}

func newObject(p winrt.Platform, owner Owner, addr uintptr, s *Schema, owns bool) (*Object, error) {
	vt, err := ReadVtable(p, p.PointerSize(), addr, s)
	if err != nil {
		return nil, err
	}
	return build(p, owner, addr, s, vt, owns), nil
}

func build(p winrt.Platform, owner Owner, addr uintptr, s *Schema, vt *Vtable, owns bool) *Object {
	if owns && owner != nil {
		owner.Retain()
	} else if !owns {
		owner = nil
	}
	o := &Object{
		st: &state{
			p:       p,
			addr:    addr,
			release: vt.Fns[2],
			owner:   owner,
			owns:    owns,
			name:    s.Name,
		},
		schema: s,
		vt:     vt,
	}
	if owns {
		o.cleanup = runtime.AddCleanup(o, leaked, o.st)
		o.tracked = true
	}
	return o
}

// Addr returns the interface pointer.
func (o *Object) Addr() uintptr { return o.st.addr }

// Schema returns the layout the handle dispatches against.
func (o *Object) Schema() *Schema { return o.schema }

// Vtable returns the table read at construction.
func (o *Object) Vtable() *Vtable { return o.vt }

// Platform returns the platform the handle calls through.
func (o *Object) Platform() winrt.Platform { return o.st.p }

// Owner returns the owner the handle keeps alive, if any.
func (o *Object) Owner() Owner { return o.st.owner }

// Owns reports whether the handle holds a native reference.
func (o *Object) Owns() bool { return o.st.owns }

// Released reports whether Release has been called.
func (o *Object) Released() bool { return o.st.done.Load() }

// OnRelease registers fn to run once the handle has given up its
// reference, whether through Release or the collection of an unreleased
// handle. fn must not refer to the Object. A later call replaces fn.
func (o *Object) OnRelease(fn func()) {
	o.st.hook.Store(&fn)
}

// Release gives up the handle's reference, then its owner reference.
// Calling it again is an over-release, reported through errors.Fatal.
func (o *Object) Release() error {
	if !o.st.done.CompareAndSwap(false, true) {
		err := errors.OverRelease(errors.PhaseRelease, o.schema.Name)
		Logger().Error("object handle released twice",
			zap.String("interface", o.schema.Name),
			zap.Uintptr("addr", o.st.addr))
		errors.Fatal(err)
		return err
	}
	if o.tracked {
		o.cleanup.Stop()
	}
	return o.st.drop()
}

// CallRaw invokes the named slot with the interface pointer prepended and
// returns the raw result register.
func (o *Object) CallRaw(slot string, args ...uintptr) (uintptr, error) {
	if o.st.done.Load() {
		return 0, errors.Closed(errors.PhaseCall, o.schema.Name)
	}
	fn, err := o.vt.Fn(slot)
	if err != nil {
		return 0, err
	}
	ret := o.st.p.Call(fn, append([]uintptr{o.st.addr}, args...)...)
	runtime.KeepAlive(o)
	return ret, nil
}

// Call invokes the named slot and converts a failing status into
// NativeCallFailed.
func (o *Object) Call(slot string, args ...uintptr) error {
	ret, err := o.CallRaw(slot, args...)
	if err != nil {
		return err
	}
	hr := errors.HResult(uint32(ret))
	if hr.Failed() {
		Logger().Debug("native call failed",
			zap.String("slot", o.schema.Name+"."+slot),
			zap.Stringer("hresult", hr))
	}
	return errors.Check(errors.PhaseCall, o.schema.Name+"."+slot, hr)
}

// CallOut invokes a slot whose last parameter is a single pointer-sized
// output and returns the value written there.
func (o *Object) CallOut(slot string, args ...uintptr) (uintptr, error) {
	out, err := NewOut(o.st.p, 1)
	if err != nil {
		return 0, err
	}
	defer out.Free()
	if err := o.Call(slot, append(args, out.Addr(0))...); err != nil {
		return 0, err
	}
	return out.Ptr(0)
}

// query issues QueryInterface and returns the raw result.
func (o *Object) query(iid guid.GUID) (uintptr, errors.HResult, error) {
	p := o.st.p
	id, err := PutGUID(p, iid)
	if err != nil {
		return 0, 0, err
	}
	defer p.Free(id)
	out, err := NewOut(p, 1)
	if err != nil {
		return 0, 0, err
	}
	defer out.Free()

	ret, err := o.CallRaw("QueryInterface", id, out.Addr(0))
	if err != nil {
		return 0, 0, err
	}
	ptr, err := out.Ptr(0)
	if err != nil {
		return 0, 0, err
	}
	return ptr, errors.HResult(uint32(ret)), nil
}

// As queries for iid and attaches the result as an independently owned
// handle sharing this handle's owner. On failure no reference is added.
func (o *Object) As(iid guid.GUID, s *Schema) (*Object, error) {
	if s == nil {
		s = IUnknown
	}
	ptr, hr, err := o.query(iid)
	if err != nil {
		return nil, err
	}
	if hr.Failed() || ptr == 0 {
		Logger().Debug("interface not supported",
			zap.String("from", o.schema.Name),
			zap.Stringer("iid", iid),
			zap.Stringer("hresult", hr))
		return nil, errors.InterfaceNotSupported(iid.String(), hr)
	}
	obj, err := newObject(o.st.p, o.st.owner, ptr, s, true)
	if err != nil {
		if rerr := o.releaseRaw(ptr); rerr != nil {
			Logger().Error("cannot release queried interface",
				zap.Uintptr("addr", ptr),
				zap.Error(rerr))
		}
		return nil, err
	}
	return obj, nil
}

// releaseRaw returns a reference obtained from QueryInterface that no
// handle took over.
func (o *Object) releaseRaw(ptr uintptr) error {
	p := o.st.p
	vt, err := ReadVtable(p, p.PointerSize(), ptr, IUnknown)
	if err != nil {
		return err
	}
	p.Call(vt.Fns[2], ptr)
	return nil
}

// Cast is As using the schema's own identifier.
func (o *Object) Cast(s *Schema) (*Object, error) {
	return o.As(s.IID, s)
}

// Identity returns the object's IUnknown pointer, which is the same for
// every interface of one object.
func (o *Object) Identity() (uintptr, error) {
	ptr, hr, err := o.query(IIDUnknown)
	if err != nil {
		return 0, err
	}
	if hr.Failed() || ptr == 0 {
		return 0, errors.InterfaceNotSupported(IIDUnknown.String(), hr)
	}
	if err := o.releaseRaw(ptr); err != nil {
		return 0, err
	}
	return ptr, nil
}

// SameObject reports whether a and b are interfaces of one object.
func SameObject(a, b *Object) (bool, error) {
	ia, err := a.Identity()
	if err != nil {
		return false, err
	}
	ib, err := b.Identity()
	if err != nil {
		return false, err
	}
	return ia == ib, nil
}
