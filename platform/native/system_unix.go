//go:build darwin || linux || freebsd

package native

import (
	"runtime"
	"sync"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/hstring"
)

var libcNames = map[string]string{
	"darwin":  "/usr/lib/libSystem.B.dylib",
	"linux":   "libc.so.6",
	"freebsd": "libc.so.7",
}

// system provides libc allocation, dlopen, a host string heap and a
// broker without registrations.
type system struct {
	*hstring.HostStrings

	calloc func(n, size uintptr) uintptr
	cfree  func(ptr uintptr)

	mu      sync.Mutex
	cookies map[uintptr]struct{}
	next    uintptr
}

func openSystem() (*system, error) {
	name := libcNames[runtime.GOOS]
	libc, err := purego.Dlopen(name, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.New(errors.PhasePlatform, errors.KindModuleLoadFailed).
			Name(name).
			Cause(err).
			Build()
	}
	s := &system{cookies: make(map[uintptr]struct{})}
	purego.RegisterLibFunc(&s.calloc, libc, "calloc")
	purego.RegisterLibFunc(&s.cfree, libc, "free")
	return s, nil
}

func (s *system) init(p *Platform) {
	s.HostStrings = hstring.NewHostStrings(p, p)
}

func (s *system) allocBlock(size uintptr) uintptr { return s.calloc(1, size) }

func (s *system) freeBlock(ptr uintptr) { s.cfree(ptr) }

// TaskFree releases memory a component allocated with malloc for its
// caller.
func (s *system) TaskFree(ptr uintptr) {
	if ptr != 0 {
		s.cfree(ptr)
	}
}

// LoadLibrary opens a shared object. Symbols stay local to the library.
func (s *system) LoadLibrary(path string) (uintptr, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return 0, errors.New(errors.PhasePlatform, errors.KindNotFound).
			Name(path).
			HResult(errors.ModuleNotFound).
			Cause(err).
			Build()
	}
	Logger().Debug("library opened", zap.String("path", path), zap.Uintptr("handle", h))
	return h, nil
}

func (s *system) FreeLibrary(handle uintptr) error {
	if err := purego.Dlclose(handle); err != nil {
		return errors.Wrap(errors.PhasePlatform, errors.KindNativeCallFailed, err, "dlclose")
	}
	return nil
}

func (s *system) GetProcAddress(handle uintptr, name string) (uintptr, error) {
	addr, err := purego.Dlsym(handle, name)
	if err != nil {
		return 0, errors.New(errors.PhasePlatform, errors.KindNotFound).
			Name(name).
			HResult(errors.ProcNotFound).
			Cause(err).
			Build()
	}
	return addr, nil
}

// InitializeBroker hands out a cookie; there is no apartment to pin.
func (s *system) InitializeBroker() (uintptr, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.cookies[s.next] = struct{}{}
	return s.next, uint32(errors.OK)
}

func (s *system) ShutdownBroker(cookie uintptr) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cookies[cookie]; !ok {
		return uint32(errors.EInvalidArg)
	}
	delete(s.cookies, cookie)
	return uint32(errors.OK)
}

// GetActivationFactory always fails: classes outside component modules
// are not registered anywhere on this system.
func (s *system) GetActivationFactory(classID, iid uintptr) (uintptr, uint32) {
	return 0, uint32(errors.ClassNotRegistered)
}
