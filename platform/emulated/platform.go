package emulated

import (
	"sync"
	"sync/atomic"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/hstring"
)

// Platform is an in-process stand-in for the native side: a 64-bit arena
// address space, a table of callable addresses, registered fake libraries,
// a broker registry and a host string heap.
type Platform struct {
	*hstring.HostStrings

	memMu       sync.RWMutex
	arena       arena
	doubleFrees int

	fnMu  sync.RWMutex
	fns   map[uintptr]*callable
	calls atomic.Int64

	libMu   sync.Mutex
	libs    map[string]*Library
	handles map[uintptr]*Library

	brokerMu     sync.Mutex
	classes      map[string]*Object
	cookies      map[uintptr]struct{}
	nextCookie   uintptr
	brokerLookup int

	objMu   sync.Mutex
	objects map[uintptr]*Object
}

var _ winrt.Platform = (*Platform)(nil)

// New creates an empty platform.
func New() *Platform {
	p := &Platform{
		arena:   newArena(),
		fns:     make(map[uintptr]*callable),
		libs:    make(map[string]*Library),
		handles: make(map[uintptr]*Library),
		classes: make(map[string]*Object),
		cookies: make(map[uintptr]struct{}),
		objects: make(map[uintptr]*Object),
	}
	p.HostStrings = hstring.NewHostStrings(p, p)
	return p
}

// String decodes a string handle, for authoring code.
func (p *Platform) String(handle uintptr) string {
	s, err := hstring.Read(p, handle)
	if err != nil {
		return ""
	}
	return s
}
