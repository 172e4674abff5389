package emulated

import (
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// RegisterClass makes class resolvable through the broker. The broker keeps
// its own reference to f.
func (p *Platform) RegisterClass(class string, f *Object) {
	p.brokerMu.Lock()
	p.classes[class] = f
	p.brokerMu.Unlock()
}

// InitializeBroker hands out a cookie for multithreaded apartment usage.
func (p *Platform) InitializeBroker() (uintptr, uint32) {
	p.brokerMu.Lock()
	defer p.brokerMu.Unlock()
	p.nextCookie++
	p.cookies[p.nextCookie] = struct{}{}
	return p.nextCookie, uint32(errors.OK)
}

// ShutdownBroker retires a cookie.
func (p *Platform) ShutdownBroker(cookie uintptr) uint32 {
	p.brokerMu.Lock()
	defer p.brokerMu.Unlock()
	if _, ok := p.cookies[cookie]; !ok {
		return uint32(errors.EInvalidArg)
	}
	delete(p.cookies, cookie)
	return uint32(errors.OK)
}

// BrokerUsage returns the number of outstanding apartment cookies.
func (p *Platform) BrokerUsage() int {
	p.brokerMu.Lock()
	defer p.brokerMu.Unlock()
	return len(p.cookies)
}

// BrokerLookups returns how many factory lookups reached the broker.
func (p *Platform) BrokerLookups() int {
	p.brokerMu.Lock()
	defer p.brokerMu.Unlock()
	return p.brokerLookup
}

// GetActivationFactory resolves a registered class and queries its factory
// for the interface at iid.
func (p *Platform) GetActivationFactory(classID, iid uintptr) (uintptr, uint32) {
	class := p.String(classID)

	p.brokerMu.Lock()
	p.brokerLookup++
	f, ok := p.classes[class]
	p.brokerMu.Unlock()

	if !ok {
		return 0, uint32(errors.ClassNotRegistered)
	}
	raw, err := p.Read(iid, guid.Size)
	if err != nil {
		return 0, uint32(errors.HResultOf(err))
	}
	id, err := guid.FromBytes(raw)
	if err != nil {
		return 0, uint32(errors.EInvalidArg)
	}
	ptr, hr := f.query(id)
	return ptr, uint32(hr)
}
