package module

import (
	"sync"

	"go.uber.org/zap"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/hstring"
)

// Broker is the process-wide reference to the platform runtime. The first
// reference initializes multithreaded apartment usage and the last one
// shuts it down again.
type Broker struct {
	p winrt.Platform

	mu     sync.Mutex
	refs   int32
	cookie uintptr
}

var _ abi.Owner = (*Broker)(nil)

// NewBroker creates an unreferenced broker.
func NewBroker(p winrt.Platform) *Broker {
	return &Broker{p: p}
}

// Acquire adds a reference, initializing the apartment on the first one.
func (b *Broker) Acquire() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs == 0 {
		cookie, status := b.p.InitializeBroker()
		if err := errors.Check(errors.PhasePlatform, "CoIncrementMTAUsage", errors.HResult(status)); err != nil {
			return err
		}
		b.cookie = cookie
		Logger().Debug("broker initialized", zap.Uintptr("cookie", cookie))
	}
	b.refs++
	return nil
}

// Retain adds a reference on behalf of a handle. The broker must already
// be held.
func (b *Broker) Retain() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.refs <= 0 {
		err := errors.Closed(errors.PhasePlatform, "broker")
		err.Detail = "retain without an outstanding reference"
		errors.Fatal(err)
		return
	}
	b.refs++
}

// Release drops a reference and shuts the apartment down at zero.
func (b *Broker) Release() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refs--
	switch {
	case b.refs > 0:
		return nil
	case b.refs < 0:
		b.refs = 0
		err := errors.OverRelease(errors.PhaseRelease, "broker")
		errors.Fatal(err)
		return err
	}
	status := b.p.ShutdownBroker(b.cookie)
	b.cookie = 0
	Logger().Debug("broker shut down")
	return errors.Check(errors.PhasePlatform, "CoDecrementMTAUsage", errors.HResult(status))
}

// Refs returns the current reference count.
func (b *Broker) Refs() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refs
}

// GetActivationFactory asks the platform runtime for classID's factory,
// queried for iid. The handle keeps the broker referenced.
func (b *Broker) GetActivationFactory(classID string, iid guid.GUID, s *abi.Schema) (*abi.Object, error) {
	if err := b.Acquire(); err != nil {
		return nil, err
	}
	defer b.Release()

	ref, err := hstring.NewReference(b.p, classID)
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	id, err := abi.PutGUID(b.p, iid)
	if err != nil {
		return nil, err
	}
	defer b.p.Free(id)

	ptr, status := b.p.GetActivationFactory(ref.Handle(), id)
	if hr := errors.HResult(status); hr.Failed() {
		return nil, errors.New(errors.PhaseActivate, errors.KindNativeCallFailed).
			Name("RoGetActivationFactory").
			HResult(hr).
			Detail("class %s", classID).
			Build()
	}
	return abi.Attach(b.p, b, ptr, s)
}
