package delegate

import (
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/resource"
)

// MaxArity is the largest number of Invoke arguments a thunk supports.
const MaxArity = 4

// Func is the host side of a delegate. args are the raw Invoke arguments
// after the delegate pointer. A returned error becomes the call's status.
type Func func(args []uintptr) error

// Adapter synthesizes delegates of one kind: one interface identifier and
// one Invoke arity. Its four thunks are created once and shared by every
// bridge; invocations are routed to the right bridge by the delegate
// pointer the native side passes back.
type Adapter struct {
	p      winrt.Platform
	iid    guid.GUID
	arity  int
	schema *abi.Schema
	thunks []uintptr

	mu      sync.RWMutex
	bridges map[uintptr]*Bridge
	closed  bool
	tracker *resource.Tracker
}

// NewAdapter creates the thunks for delegates with the given identifier
// and Invoke arity.
func NewAdapter(p winrt.Platform, name string, iid guid.GUID, arity int) (*Adapter, error) {
	if arity < 0 || arity > MaxArity {
		return nil, errors.Argument(errors.PhaseCallback, "delegate arity %d outside 0..%d", arity, MaxArity)
	}
	a := &Adapter{
		p:       p,
		iid:     iid,
		arity:   arity,
		schema:  abi.Delegate(name, iid, arity),
		bridges: make(map[uintptr]*Bridge),
	}

	for _, fn := range []any{a.queryInterface, a.addRef, a.release, a.invokeThunk()} {
		addr, err := p.NewCallback(fn)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseCallback, errors.KindUnsupported, err, "create thunk for "+name)
		}
		a.thunks = append(a.thunks, addr)
	}
	Logger().Debug("delegate adapter created",
		zap.String("delegate", name),
		zap.Stringer("iid", iid),
		zap.Int("arity", arity))
	return a, nil
}

// IID returns the delegate interface identifier.
func (a *Adapter) IID() guid.GUID { return a.iid }

// Arity returns the number of Invoke arguments.
func (a *Adapter) Arity() int { return a.arity }

// Schema returns the delegate's slot layout.
func (a *Adapter) Schema() *abi.Schema { return a.schema }

// Thunks returns the shared QueryInterface, AddRef, Release and Invoke
// addresses.
func (a *Adapter) Thunks() []uintptr {
	return append([]uintptr(nil), a.thunks...)
}

// Len returns the number of live bridges.
func (a *Adapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.bridges)
}

func (a *Adapter) lookup(addr uintptr) *Bridge {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.bridges[addr]
}

// Dispatch routes an invocation for the bridge at addr and returns the
// host outcome. Unknown addresses are Closed; a bound bridge receiving a
// different sender is an Argument error and the closure does not run;
// panics are recovered.
func (a *Adapter) Dispatch(addr uintptr, args ...uintptr) (err error) {
	b := a.lookup(addr)
	if b == nil {
		Logger().Debug("invoke on retired delegate", zap.Uintptr("addr", addr))
		return errors.Closed(errors.PhaseCallback, a.schema.Name)
	}
	if len(args) != a.arity {
		return errors.Argument(errors.PhaseCallback, "%s.Invoke takes %d arguments, got %d", a.schema.Name, a.arity, len(args))
	}
	if b.bound && (len(args) == 0 || args[0] != b.sender) {
		var got uintptr
		if len(args) > 0 {
			got = args[0]
		}
		Logger().Warn("delegate invoked by foreign sender",
			zap.String("delegate", a.schema.Name),
			zap.Uintptr("bound", b.sender),
			zap.Uintptr("sender", got))
		return errors.Argument(errors.PhaseCallback, "sender %#x does not match bound source %#x", got, b.sender)
	}

	defer func() {
		if r := recover(); r != nil {
			Logger().Error("delegate handler panicked",
				zap.String("delegate", a.schema.Name),
				zap.Any("panic", r))
			err = errors.Panic(errors.PhaseCallback, a.schema.Name, r)
		}
	}()
	return b.fn(args)
}

func (a *Adapter) invoke(this uintptr, args ...uintptr) uintptr {
	return uintptr(errors.HResultOf(a.Dispatch(this, args...)))
}

// invokeThunk returns an Invoke entry point with exactly the adapter's
// arity, as native callbacks need a fixed signature.
func (a *Adapter) invokeThunk() any {
	switch a.arity {
	case 0:
		return func(this uintptr) uintptr { return a.invoke(this) }
	case 1:
		return func(this, a1 uintptr) uintptr { return a.invoke(this, a1) }
	case 2:
		return func(this, a1, a2 uintptr) uintptr { return a.invoke(this, a1, a2) }
	case 3:
		return func(this, a1, a2, a3 uintptr) uintptr { return a.invoke(this, a1, a2, a3) }
	case 4:
		return func(this, a1, a2, a3, a4 uintptr) uintptr { return a.invoke(this, a1, a2, a3, a4) }
	}
	panic(fmt.Sprintf("delegate: arity %d", a.arity))
}

func (a *Adapter) queryInterface(this, iid, out uintptr) uintptr {
	if out == 0 {
		return uintptr(errors.EPointer)
	}
	b := a.lookup(this)
	if b == nil {
		return uintptr(errors.ROClosed)
	}
	raw, err := a.p.Read(iid, guid.Size)
	if err != nil {
		return uintptr(errors.HResultOf(err))
	}
	id, _ := guid.FromBytes(raw)
	switch id {
	case abi.IIDUnknown, abi.IIDAgileObject, a.iid:
		b.refs.Add(1)
		if err := a.p.WritePtr(out, this); err != nil {
			b.release()
			return uintptr(errors.HResultOf(err))
		}
		return uintptr(errors.OK)
	}
	_ = a.p.WritePtr(out, 0)
	return uintptr(errors.ENoInterface)
}

func (a *Adapter) addRef(this uintptr) uintptr {
	b := a.lookup(this)
	if b == nil {
		return 0
	}
	return uintptr(uint32(b.refs.Add(1)))
}

func (a *Adapter) release(this uintptr) uintptr {
	b := a.lookup(this)
	if b == nil {
		Logger().Error("release of retired delegate", zap.Uintptr("addr", this))
		errors.Fatal(errors.OverRelease(errors.PhaseCallback, a.schema.Name))
		return 0
	}
	return uintptr(uint32(max(b.release(), 0)))
}

// Track records every bridge created from now on in t until it is
// retired. The entries are passive: t.Close leaves them to the adapter.
func (a *Adapter) Track(t *resource.Tracker) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.tracker = t
}

// New synthesizes a bridge around fn. The bridge starts with one reference
// owned by the caller.
func (a *Adapter) New(fn Func, opts ...Option) (*Bridge, error) {
	if fn == nil {
		return nil, errors.Argument(errors.PhaseCallback, "nil delegate function")
	}
	ps := a.p.PointerSize()
	vtable, err := abi.WriteVtable(a.p, ps, a.thunks)
	if err != nil {
		return nil, err
	}
	addr, err := a.p.Alloc(2*ps, ps)
	if err != nil {
		a.p.Free(vtable)
		return nil, err
	}
	if err := a.p.WritePtr(addr, vtable); err != nil {
		a.p.Free(addr)
		a.p.Free(vtable)
		return nil, err
	}

	b := &Bridge{adapter: a, addr: addr, vtable: vtable, fn: fn}
	for _, opt := range opts {
		opt(b)
	}
	b.refs.Store(1)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.p.Free(addr)
		a.p.Free(vtable)
		return nil, errors.Closed(errors.PhaseCallback, a.schema.Name)
	}
	a.bridges[addr] = b
	if a.tracker != nil {
		b.entry = a.tracker.Track(resource.KindBridge, a.schema.Name, nil)
	}
	return b, nil
}

// retire frees the bridge's object and table memory and removes it from
// the lookup table in one step.
func (a *Adapter) retire(b *Bridge) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bridges[b.addr] != b {
		return false
	}
	delete(a.bridges, b.addr)
	if a.tracker != nil {
		a.tracker.Forget(b.entry)
	}
	a.p.Free(b.addr)
	a.p.Free(b.vtable)
	return true
}

// Close disposes every remaining bridge. Bridges still referenced are
// reported as leaked.
func (a *Adapter) Close() error {
	a.mu.Lock()
	a.closed = true
	remaining := make([]*Bridge, 0, len(a.bridges))
	for _, b := range a.bridges {
		remaining = append(remaining, b)
	}
	a.mu.Unlock()

	var errs error
	for _, b := range remaining {
		errs = multierr.Append(errs, b.Dispose())
	}
	return errs
}
