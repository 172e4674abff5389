package emulated

import (
	"path/filepath"
	"strings"
	"sync"

	"github.com/wippyai/winrt-runtime/errors"
)

const (
	libraryBase   uintptr = 0x6000_0000
	libraryStride uintptr = 0x10000
)

// Library is a fake component library. It is found by base file name,
// case-insensitively, regardless of the directory it is loaded from.
type Library struct {
	p      *Platform
	name   string
	handle uintptr

	mu        sync.Mutex
	exports   map[string]uintptr
	factories map[string]*Object
	requests  map[string]int

	refs    int
	loads   int
	unloads int
	paths   []string
	failErr error
}

// RegisterLibrary makes name loadable. Registering the same name twice
// returns the existing library.
func (p *Platform) RegisterLibrary(name string) *Library {
	key := strings.ToLower(name)
	p.libMu.Lock()
	defer p.libMu.Unlock()

	if l, ok := p.libs[key]; ok {
		return l
	}
	l := &Library{
		p:         p,
		name:      name,
		handle:    libraryBase + uintptr(len(p.libs)+1)*libraryStride,
		exports:   make(map[string]uintptr),
		factories: make(map[string]*Object),
		requests:  make(map[string]int),
	}
	p.libs[key] = l
	p.handles[l.handle] = l
	return l
}

// Library returns a registered library.
func (p *Platform) Library(name string) (*Library, bool) {
	p.libMu.Lock()
	defer p.libMu.Unlock()
	l, ok := p.libs[strings.ToLower(name)]
	return l, ok
}

// Export publishes fn under name.
func (l *Library) Export(name string, fn any) error {
	addr, err := l.p.register(fn, l.name+"!"+name)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.exports[name] = addr
	l.mu.Unlock()
	return nil
}

// AddFactory makes class activatable through DllGetActivationFactory. The
// library keeps its own reference to f and hands out new ones on request.
func (l *Library) AddFactory(class string, f *Object) {
	l.mu.Lock()
	l.factories[class] = f
	_, exported := l.exports["DllGetActivationFactory"]
	l.mu.Unlock()

	if !exported {
		_ = l.Export("DllGetActivationFactory", l.getActivationFactory)
	}
}

func (l *Library) getActivationFactory(classID, out uintptr) uintptr {
	class := l.p.String(classID)
	l.mu.Lock()
	l.requests[class]++
	f, ok := l.factories[class]
	l.mu.Unlock()

	if out == 0 {
		return uintptr(errors.EPointer)
	}
	if !ok {
		_ = l.p.WritePtr(out, 0)
		return uintptr(errors.ClassNotAvailable)
	}
	ptr, hr := f.query(iidActivationFactory)
	if hr.Failed() {
		_ = l.p.WritePtr(out, 0)
		return uintptr(hr)
	}
	if err := l.p.WritePtr(out, ptr); err != nil {
		f.Release()
		return uintptr(errors.HResultOf(err))
	}
	return uintptr(errors.OK)
}

// FailLoads makes every subsequent load fail with err.
func (l *Library) FailLoads(err error) {
	l.mu.Lock()
	l.failErr = err
	l.mu.Unlock()
}

// Loads returns how many times the library went from unloaded to loaded.
func (l *Library) Loads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads
}

// Unloads returns how many times the library was unloaded.
func (l *Library) Unloads() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.unloads
}

// Loaded reports whether the library is currently mapped.
func (l *Library) Loaded() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs > 0
}

// Paths returns every path the library was loaded from.
func (l *Library) Paths() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

// Requests returns how many times a factory for class was requested.
func (l *Library) Requests(class string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requests[class]
}

// LoadLibrary maps a registered library. Repeated loads share one mapping
// and are counted.
func (p *Platform) LoadLibrary(path string) (uintptr, error) {
	l, ok := p.Library(filepath.Base(path))
	if !ok {
		return 0, errors.New(errors.PhasePlatform, errors.KindNotFound).
			Name(path).
			HResult(errors.ModuleNotFound).
			Detail("no library registered under this name").
			Build()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failErr != nil {
		return 0, l.failErr
	}
	if l.refs == 0 {
		l.loads++
	}
	l.refs++
	l.paths = append(l.paths, path)
	return l.handle, nil
}

// FreeLibrary drops one mapping reference.
func (p *Platform) FreeLibrary(handle uintptr) error {
	l, err := p.byHandle(handle)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs == 0 {
		return errors.InvalidInput(errors.PhasePlatform, "library "+l.name+" is not loaded")
	}
	l.refs--
	if l.refs == 0 {
		l.unloads++
	}
	return nil
}

// GetProcAddress looks up an export of a loaded library.
func (p *Platform) GetProcAddress(handle uintptr, name string) (uintptr, error) {
	l, err := p.byHandle(handle)
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.refs == 0 {
		return 0, errors.InvalidInput(errors.PhasePlatform, "library "+l.name+" is not loaded")
	}
	addr, ok := l.exports[name]
	if !ok {
		return 0, errors.New(errors.PhasePlatform, errors.KindNotFound).
			Name(name).
			HResult(errors.ProcNotFound).
			Detail("export missing from %s", l.name).
			Build()
	}
	return addr, nil
}

func (p *Platform) byHandle(handle uintptr) (*Library, error) {
	p.libMu.Lock()
	defer p.libMu.Unlock()
	l, ok := p.handles[handle]
	if !ok {
		return nil, errors.InvalidInput(errors.PhasePlatform, "unknown library handle")
	}
	return l, nil
}
