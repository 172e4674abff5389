//go:build windows

package native

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/wippyai/winrt-runtime/errors"
)

var combase = windows.NewLazySystemDLL("combase.dll")

var (
	procWindowsCreateString          = combase.NewProc("WindowsCreateString")
	procWindowsCreateStringReference = combase.NewProc("WindowsCreateStringReference")
	procWindowsDuplicateString       = combase.NewProc("WindowsDuplicateString")
	procWindowsDeleteString          = combase.NewProc("WindowsDeleteString")
	procWindowsGetStringRawBuffer    = combase.NewProc("WindowsGetStringRawBuffer")
	procRoGetActivationFactory       = combase.NewProc("RoGetActivationFactory")
	procCoIncrementMTAUsage          = combase.NewProc("CoIncrementMTAUsage")
	procCoDecrementMTAUsage          = combase.NewProc("CoDecrementMTAUsage")
	procCoTaskMemAlloc               = combase.NewProc("CoTaskMemAlloc")
	procCoTaskMemFree                = combase.NewProc("CoTaskMemFree")
)

// system binds the combase string, broker and task allocator entry points
// and the Win32 loader.
type system struct{}

func openSystem() (*system, error) {
	for _, p := range []*windows.LazyProc{
		procWindowsCreateString, procWindowsCreateStringReference, procWindowsDuplicateString,
		procWindowsDeleteString, procWindowsGetStringRawBuffer, procRoGetActivationFactory,
		procCoIncrementMTAUsage, procCoDecrementMTAUsage, procCoTaskMemAlloc, procCoTaskMemFree,
	} {
		if err := p.Find(); err != nil {
			return nil, errors.New(errors.PhasePlatform, errors.KindModuleLoadFailed).
				Name("combase.dll!" + p.Name).
				Cause(err).
				Build()
		}
	}
	return &system{}, nil
}

func (s *system) init(*Platform) {}

func call(p *windows.LazyProc, args ...uintptr) uintptr {
	r1, _, _ := purego.SyscallN(p.Addr(), args...)
	return r1
}

func (s *system) allocBlock(size uintptr) uintptr { return call(procCoTaskMemAlloc, size) }

func (s *system) freeBlock(ptr uintptr) { call(procCoTaskMemFree, ptr) }

// TaskFree releases memory a component allocated with CoTaskMemAlloc.
func (s *system) TaskFree(ptr uintptr) {
	if ptr != 0 {
		call(procCoTaskMemFree, ptr)
	}
}

func (s *system) CreateString(buf uintptr, length uint32) (uintptr, uint32) {
	var h uintptr
	hr := call(procWindowsCreateString, buf, uintptr(length), uintptr(unsafe.Pointer(&h)))
	return h, uint32(hr)
}

func (s *system) CreateStringReference(buf uintptr, length uint32, header uintptr) (uintptr, uint32) {
	var h uintptr
	hr := call(procWindowsCreateStringReference, buf, uintptr(length), header, uintptr(unsafe.Pointer(&h)))
	return h, uint32(hr)
}

func (s *system) DuplicateString(handle uintptr) (uintptr, uint32) {
	var h uintptr
	hr := call(procWindowsDuplicateString, handle, uintptr(unsafe.Pointer(&h)))
	return h, uint32(hr)
}

func (s *system) DeleteString(handle uintptr) uint32 {
	return uint32(call(procWindowsDeleteString, handle))
}

func (s *system) GetStringRawBuffer(handle uintptr) (uintptr, uint32) {
	var n uint32
	buf := call(procWindowsGetStringRawBuffer, handle, uintptr(unsafe.Pointer(&n)))
	return buf, n
}

// LoadLibrary loads with the library's own directory first on the search
// path, so its dependencies resolve next to it.
func (s *system) LoadLibrary(path string) (uintptr, error) {
	h, err := windows.LoadLibraryEx(path, 0, windows.LOAD_WITH_ALTERED_SEARCH_PATH)
	if err != nil {
		b := errors.New(errors.PhasePlatform, errors.KindNotFound).Name(path).Cause(err)
		if errno, ok := err.(windows.Errno); ok {
			b = b.HResult(errors.FromWin32(uint32(errno)))
		}
		return 0, b.Build()
	}
	Logger().Debug("library loaded", zap.String("path", path), zap.Uintptr("handle", uintptr(h)))
	return uintptr(h), nil
}

func (s *system) FreeLibrary(handle uintptr) error {
	if err := windows.FreeLibrary(windows.Handle(handle)); err != nil {
		return errors.Wrap(errors.PhasePlatform, errors.KindNativeCallFailed, err, "FreeLibrary")
	}
	return nil
}

func (s *system) GetProcAddress(handle uintptr, name string) (uintptr, error) {
	addr, err := windows.GetProcAddress(windows.Handle(handle), name)
	if err != nil {
		b := errors.New(errors.PhasePlatform, errors.KindNotFound).Name(name).Cause(err)
		if errno, ok := err.(windows.Errno); ok {
			b = b.HResult(errors.FromWin32(uint32(errno)))
		}
		return 0, b.Build()
	}
	return addr, nil
}

// InitializeBroker keeps the multithreaded apartment alive for the
// cookie's lifetime.
func (s *system) InitializeBroker() (uintptr, uint32) {
	var cookie uintptr
	hr := call(procCoIncrementMTAUsage, uintptr(unsafe.Pointer(&cookie)))
	return cookie, uint32(hr)
}

func (s *system) ShutdownBroker(cookie uintptr) uint32 {
	return uint32(call(procCoDecrementMTAUsage, cookie))
}

func (s *system) GetActivationFactory(classID, iid uintptr) (uintptr, uint32) {
	var f uintptr
	hr := call(procRoGetActivationFactory, classID, iid, uintptr(unsafe.Pointer(&f)))
	return f, uint32(hr)
}
