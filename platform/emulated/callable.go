package emulated

import (
	"fmt"
	"reflect"

	"github.com/wippyai/winrt-runtime/errors"
)

const (
	callableBase   uintptr = 0x7000_0000
	callableStride uintptr = 16
)

var uintptrType = reflect.TypeOf(uintptr(0))

type callable struct {
	fn    reflect.Value
	arity int
	name  string
}

func checkShape(fn any) (reflect.Value, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return reflect.Value{}, errors.Argument(errors.PhasePlatform, "callback must be a func, got %T", fn)
	}
	t := v.Type()
	if t.IsVariadic() || t.NumOut() != 1 || t.Out(0) != uintptrType {
		return reflect.Value{}, errors.Argument(errors.PhasePlatform, "callback %s must return a single uintptr", t)
	}
	for i := range t.NumIn() {
		if t.In(i) != uintptrType {
			return reflect.Value{}, errors.Argument(errors.PhasePlatform, "callback %s parameter %d is not uintptr", t, i)
		}
	}
	return v, nil
}

// NewCallback registers fn and returns its address. fn takes only uintptr
// parameters and returns one uintptr.
func (p *Platform) NewCallback(fn any) (uintptr, error) {
	return p.register(fn, "")
}

// Func is NewCallback for authoring code that knows fn is well formed.
func (p *Platform) Func(fn any) uintptr {
	addr, err := p.register(fn, "")
	if err != nil {
		panic(err)
	}
	return addr
}

func (p *Platform) register(fn any, name string) (uintptr, error) {
	v, err := checkShape(fn)
	if err != nil {
		return 0, err
	}
	p.fnMu.Lock()
	defer p.fnMu.Unlock()
	addr := callableBase + uintptr(len(p.fns))*callableStride
	p.fns[addr] = &callable{fn: v, arity: v.Type().NumIn(), name: name}
	return addr, nil
}

// Call invokes the function registered at fn. Calling an unknown address or
// passing the wrong number of arguments panics, as a bad jump would crash a
// real process.
func (p *Platform) Call(fn uintptr, args ...uintptr) uintptr {
	p.fnMu.RLock()
	c, ok := p.fns[fn]
	p.fnMu.RUnlock()
	if !ok {
		panic(fmt.Sprintf("emulated: call to unmapped address %#x", fn))
	}
	if len(args) != c.arity {
		panic(fmt.Sprintf("emulated: call %#x %s with %d arguments, want %d", fn, c.name, len(args), c.arity))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		in[i] = reflect.ValueOf(a)
	}
	p.calls.Add(1)
	return uintptr(c.fn.Call(in)[0].Uint())
}

// Calls returns the number of native calls made so far.
func (p *Platform) Calls() int64 {
	return p.calls.Load()
}

// Callbacks returns how many callables have been registered.
func (p *Platform) Callbacks() int {
	p.fnMu.RLock()
	defer p.fnMu.RUnlock()
	return len(p.fns)
}
