package native

import (
	"reflect"

	"github.com/ebitengine/purego"

	"github.com/wippyai/winrt-runtime/errors"
)

// caller dispatches through raw function pointers with purego, which
// needs no cgo.
type caller struct{}

// Call invokes fn with machine-word arguments.
func (caller) Call(fn uintptr, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(fn, args...)
	return r1
}

// NewCallback exposes fn to native code. The number of callbacks a
// process can create is bounded by purego, so callers create one per
// shape and demultiplex by argument.
func (caller) NewCallback(fn any) (addr uintptr, err error) {
	t := reflect.TypeOf(fn)
	if t == nil || t.Kind() != reflect.Func || t.NumOut() != 1 || t.Out(0).Kind() != reflect.Uintptr {
		return 0, errors.Argument(errors.PhaseCallback, "callback must return uintptr, got %v", t)
	}
	for i := range t.NumIn() {
		if t.In(i).Kind() != reflect.Uintptr {
			return 0, errors.Argument(errors.PhaseCallback, "callback parameter %d is %v, want uintptr", i, t.In(i))
		}
	}
	defer func() {
		if r := recover(); r != nil {
			err = callbackFailure(r)
		}
	}()
	return purego.NewCallback(fn), nil
}

// callbackFailure converts a panic from purego, such as exhausting the
// callback slots, into an allocation error.
func callbackFailure(r any) error {
	return errors.New(errors.PhaseCallback, errors.KindAllocation).
		Detail("%v", r).
		Build()
}
