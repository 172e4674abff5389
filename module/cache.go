package module

import (
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/hstring"
	"github.com/wippyai/winrt-runtime/resource"
)

// FactoryExport is the entry point every component library exports.
const FactoryExport = "DllGetActivationFactory"

// Cache maps module names to loaded libraries. One lock guards both the
// map and every module's count, so a Load never observes an entry that is
// being unloaded.
type Cache struct {
	p   winrt.Platform
	dir string

	mu      sync.Mutex
	entries map[string]*Module
	loads   map[string]int
	tracker *resource.Tracker
}

// NewCache creates a cache that loads libraries from dir. An empty dir
// means the directory of the running executable.
func NewCache(p winrt.Platform, dir string) *Cache {
	if dir == "" {
		dir = DefaultDir()
	}
	return &Cache{
		p:       p,
		dir:     dir,
		entries: make(map[string]*Module),
		loads:   make(map[string]int),
	}
}

// DefaultDir returns the directory of the running executable, so that a
// component's own dependencies resolve next to it.
func DefaultDir() string {
	exe, err := os.Executable()
	if err != nil {
		return ""
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	return filepath.Dir(exe)
}

// Dir returns the directory modules are loaded from.
func (c *Cache) Dir() string {
	return c.dir
}

// Track records every module loaded from now on in t until it is
// unloaded. The entries are passive: t.Close leaves them to the cache.
func (c *Cache) Track(t *resource.Tracker) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker = t
}

// Load returns a new reference to the named module, loading it on first
// use.
func (c *Cache) Load(name string) (*Module, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m, ok := c.entries[name]; ok {
		m.refs++
		return m, nil
	}

	path := name
	if c.dir != "" && !filepath.IsAbs(name) {
		path = filepath.Join(c.dir, name)
	}
	handle, err := c.p.LoadLibrary(path)
	if err != nil {
		Logger().Debug("module load failed",
			zap.String("module", name),
			zap.String("path", path),
			zap.Error(err))
		return nil, errors.ModuleLoadFailed(name, errors.HResultOf(err), err)
	}

	m := &Module{
		cache:  c,
		name:   name,
		path:   path,
		handle: handle,
		refs:   1,
	}
	if c.tracker != nil {
		m.entry = c.tracker.Track(resource.KindModule, name, nil)
	}
	c.entries[name] = m
	c.loads[name]++
	Logger().Info("module loaded",
		zap.String("module", name),
		zap.String("path", path),
		zap.Uintptr("handle", handle))
	return m, nil
}

// Len returns the number of live modules.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Loads returns how many times name has been loaded from the platform.
func (c *Cache) Loads(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads[name]
}

// Names returns the names of live modules.
func (c *Cache) Names() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	return names
}

// Module is one loaded component library. Every Load and Retain is paired
// with one Release; the library is unloaded when the count reaches zero.
type Module struct {
	cache  *Cache
	name   string
	path   string
	handle uintptr
	refs   int32 // guarded by cache.mu
	entry  resource.Handle

	procOnce sync.Once
	proc     uintptr
	procErr  error
}

var _ abi.Owner = (*Module)(nil)

// Name returns the cache key.
func (m *Module) Name() string { return m.name }

// Path returns the path the library was loaded from.
func (m *Module) Path() string { return m.path }

// Handle returns the platform library handle.
func (m *Module) Handle() uintptr { return m.handle }

// Refs returns the current reference count.
func (m *Module) Refs() int32 {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()
	return m.refs
}

// Retain adds a reference. The module must still be held by the caller.
func (m *Module) Retain() {
	m.cache.mu.Lock()
	defer m.cache.mu.Unlock()
	if m.refs <= 0 {
		err := errors.Closed(errors.PhaseLoad, m.name)
		err.Detail = "retain after unload"
		errors.Fatal(err)
		return
	}
	m.refs++
}

// Release drops a reference. At zero the cache entry is removed and the
// library unloaded while the cache lock is held.
func (m *Module) Release() error {
	c := m.cache
	c.mu.Lock()
	defer c.mu.Unlock()

	m.refs--
	switch {
	case m.refs > 0:
		return nil
	case m.refs < 0:
		m.refs = 0
		err := errors.OverRelease(errors.PhaseRelease, m.name)
		Logger().Error("module released more times than loaded", zap.String("module", m.name))
		errors.Fatal(err)
		return err
	}

	if c.entries[m.name] == m {
		delete(c.entries, m.name)
	}
	if c.tracker != nil {
		c.tracker.Forget(m.entry)
	}
	if err := c.p.FreeLibrary(m.handle); err != nil {
		Logger().Warn("module unload failed", zap.String("module", m.name), zap.Error(err))
		return errors.Wrap(errors.PhaseRelease, errors.KindModuleLoadFailed, err, "unload "+m.name)
	}
	Logger().Info("module unloaded", zap.String("module", m.name))
	return nil
}

func (m *Module) factoryProc() (uintptr, error) {
	m.procOnce.Do(func() {
		m.proc, m.procErr = m.cache.p.GetProcAddress(m.handle, FactoryExport)
	})
	return m.proc, m.procErr
}

// GetActivationFactory asks the library for the factory of classID. The
// returned handle keeps the module loaded until it is released.
func (m *Module) GetActivationFactory(classID string) (*abi.Object, error) {
	p := m.cache.p
	proc, err := m.factoryProc()
	if err != nil {
		return nil, errors.New(errors.PhaseActivate, errors.KindNotFound).
			Name(m.name + "!" + FactoryExport).
			HResult(errors.HResultOf(err)).
			Cause(err).
			Build()
	}

	ref, err := hstring.NewReference(p, classID)
	if err != nil {
		return nil, err
	}
	defer ref.Close()
	out, err := abi.NewOut(p, 1)
	if err != nil {
		return nil, err
	}
	defer out.Free()

	hr := errors.HResult(uint32(p.Call(proc, ref.Handle(), out.Addr(0))))
	if hr.Failed() {
		return nil, errors.New(errors.PhaseActivate, errors.KindNativeCallFailed).
			Name(m.name + "!" + FactoryExport).
			HResult(hr).
			Detail("class %s", classID).
			Build()
	}
	ptr, err := out.Ptr(0)
	if err != nil {
		return nil, err
	}
	return abi.Attach(p, m, ptr, abi.IActivationFactory)
}
