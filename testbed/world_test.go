package testbed

import (
	"sync"
	"testing"

	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/iid"
	"github.com/wippyai/winrt-runtime/platform/emulated"
)

const (
	thermostatClass  = "Fabrikam.Climate.Thermostat"
	thermostatModule = "Fabrikam.Climate.dll"
)

var (
	iidThermostat = guid.MustParse("8b1d44f0-3a0e-4d57-b6f1-5c2e9a7d0b31")
	iidClosable   = guid.MustParse("30d5a829-7fa4-4026-83bb-d75bae4ea99e")

	thermostatSchema = abi.Extend(abi.IInspectable, "IThermostat", iidThermostat,
		abi.Slot{Name: "get_Target", Params: 1},
		abi.Slot{Name: "put_Target", Params: 1},
		abi.Slot{Name: "add_TargetChanged", Params: 2},
		abi.Slot{Name: "remove_TargetChanged", Params: 1},
	)
	closableSchema = abi.Extend(abi.IInspectable, "IClosable", iidClosable,
		abi.Slot{Name: "Close"},
	)

	// TypedEventHandler<Thermostat, Int32>
	targetChanged = iid.TypedEventHandler.MustOf(
		iid.RuntimeClass{Name: thermostatClass, Default: iid.Interface{Name: "IThermostat", IID: iidThermostat}},
		iid.Int32,
	)
)

type thermostat struct {
	obj     *emulated.Object
	changed *emulated.Event
	target  int32
	closed  bool
}

// world is a component library with one activatable thermostat class.
type world struct {
	p   *emulated.Platform
	lib *emulated.Library

	mu          sync.Mutex
	thermostats []*thermostat
}

func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{p: emulated.New()}
	f, err := w.p.NewFactory(thermostatClass, w.activate)
	if err != nil {
		t.Fatalf("NewFactory: %v", err)
	}
	w.lib = w.p.RegisterLibrary(thermostatModule)
	w.lib.AddFactory(thermostatClass, f)
	return w
}

func (w *world) activate() (*emulated.Object, error) {
	th := &thermostat{changed: w.p.NewEvent(), target: 20}
	methods := []any{
		func(this, out uintptr) uintptr {
			_ = w.p.WriteU32(out, uint32(th.target))
			return 0
		},
		func(this, v uintptr) uintptr {
			th.target = int32(v)
			for _, hr := range th.changed.Raise(this, v) {
				if hr.Failed() {
					return uintptr(hr)
				}
			}
			return 0
		},
	}
	obj, err := w.p.NewObject(emulated.Spec{
		ClassName: thermostatClass,
		Interfaces: []emulated.Interface{
			{IID: iidThermostat, Methods: append(methods, th.changed.Methods()...)},
			{IID: iidClosable, Methods: []any{func(this uintptr) uintptr { th.closed = true; return 0 }}},
		},
	})
	if err != nil {
		return nil, err
	}
	th.obj = obj
	w.mu.Lock()
	w.thermostats = append(w.thermostats, th)
	w.mu.Unlock()
	return obj, nil
}

func (w *world) last() *thermostat {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.thermostats[len(w.thermostats)-1]
}
