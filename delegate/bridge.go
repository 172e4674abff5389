package delegate

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/resource"
)

// Option configures a bridge.
type Option func(*Bridge)

// WithSender binds the bridge to one source object. Invocations whose
// first argument is a different address fail without running the closure.
func WithSender(addr uintptr) Option {
	return func(b *Bridge) {
		b.sender = addr
		b.bound = true
	}
}

// Bridge is one synthesized delegate object. Its address is valid exactly
// while its count is above zero.
type Bridge struct {
	adapter *Adapter
	addr    uintptr
	vtable  uintptr
	fn      Func
	sender  uintptr
	bound   bool
	refs    atomic.Int32
	entry   resource.Handle
}

// Addr returns the delegate pointer to hand to native code.
func (b *Bridge) Addr() uintptr { return b.addr }

// Refs returns the current reference count.
func (b *Bridge) Refs() int32 { return b.refs.Load() }

// Sender returns the bound source address and whether one is set.
func (b *Bridge) Sender() (uintptr, bool) { return b.sender, b.bound }

// AddRef adds a host reference.
func (b *Bridge) AddRef() {
	b.refs.Add(1)
}

// Release drops a host reference. At zero the bridge is retired.
func (b *Bridge) Release() error {
	if n := b.release(); n < 0 {
		return errors.OverRelease(errors.PhaseCallback, b.adapter.schema.Name)
	}
	return nil
}

func (b *Bridge) release() int32 {
	n := b.refs.Add(-1)
	switch {
	case n == 0:
		b.adapter.retire(b)
	case n < 0:
		b.refs.Store(0)
		Logger().Error("delegate released below zero",
			zap.String("delegate", b.adapter.schema.Name),
			zap.Uintptr("addr", b.addr))
		errors.Fatal(errors.OverRelease(errors.PhaseCallback, b.adapter.schema.Name))
	}
	return n
}

// Dispose retires the bridge immediately. A bridge that is still
// referenced is leaked native state and reported through errors.Fatal.
func (b *Bridge) Dispose() error {
	refs := b.refs.Swap(0)
	if !b.adapter.retire(b) {
		return nil
	}
	if refs != 0 {
		err := errors.Leaked(b.adapter.schema.Name, refs)
		Logger().Error("delegate disposed while referenced",
			zap.String("delegate", b.adapter.schema.Name),
			zap.Int32("refs", refs))
		errors.Fatal(err)
		return err
	}
	return nil
}
