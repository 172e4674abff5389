package winrtruntime

// Memory is a view of the native address space shared with components.
// Addresses are raw machine addresses; reads and writes use the platform's
// native byte order.
type Memory interface {
	Read(addr uintptr, length uintptr) ([]byte, error)
	Write(addr uintptr, data []byte) error
	ReadU16(addr uintptr) (uint16, error)
	ReadU32(addr uintptr) (uint32, error)
	ReadU64(addr uintptr) (uint64, error)
	ReadPtr(addr uintptr) (uintptr, error)
	WriteU16(addr uintptr, value uint16) error
	WriteU32(addr uintptr, value uint32) error
	WriteU64(addr uintptr, value uint64) error
	WritePtr(addr uintptr, value uintptr) error
}

// Allocator hands out memory that stays at a fixed address until freed.
// Synthesized vtables, callback objects, string headers and out-parameter
// scratch space all come from here.
type Allocator interface {
	Alloc(size, align uintptr) (uintptr, error)
	Free(ptr uintptr)
}

// Caller invokes native function pointers and exposes Go functions as
// native-callable addresses.
type Caller interface {
	// Call invokes fn with the given machine-word arguments and returns the
	// raw result register.
	Call(fn uintptr, args ...uintptr) uintptr

	// NewCallback returns a native-callable address for fn. fn must be a Go
	// func whose parameters and single result are uintptr. Callbacks are
	// never reclaimed, so callers create them once per shape.
	NewCallback(fn any) (uintptr, error)
}

// Loader loads and unloads native component libraries.
type Loader interface {
	// LoadLibrary loads the library at path. The returned error carries the
	// platform code when one is available.
	LoadLibrary(path string) (uintptr, error)
	FreeLibrary(handle uintptr) error
	GetProcAddress(handle uintptr, name string) (uintptr, error)
}

// StringAPI is the platform's immutable string handle primitive set.
// Status results use the ABI convention: zero is success, the severity bit
// marks failure.
type StringAPI interface {
	CreateString(buf uintptr, length uint32) (uintptr, uint32)
	CreateStringReference(buf uintptr, length uint32, header uintptr) (uintptr, uint32)
	DuplicateString(handle uintptr) (uintptr, uint32)
	DeleteString(handle uintptr) uint32
	GetStringRawBuffer(handle uintptr) (buf uintptr, length uint32)
}

// Broker is the process-wide runtime that resolves factories without a
// module name (system registration, manifests).
type Broker interface {
	// InitializeBroker pins the multithreaded apartment and returns a cookie.
	InitializeBroker() (cookie uintptr, status uint32)
	ShutdownBroker(cookie uintptr) uint32
	// GetActivationFactory takes a string handle and the address of an
	// interface identifier and returns a factory address.
	GetActivationFactory(classID uintptr, iid uintptr) (uintptr, uint32)
}

// Platform bundles everything the bridge needs from the native side.
type Platform interface {
	Memory
	Allocator
	Caller
	Loader
	StringAPI
	Broker

	// PointerSize returns the machine word size in bytes.
	PointerSize() uintptr
}

// HeaderSize is the size of the opaque header backing a zero-copy string
// reference.
const HeaderSize = 24

// TaskFreer is implemented by platforms that can free memory a component
// allocated for its caller, such as the array returned from GetIids.
type TaskFreer interface {
	TaskFree(ptr uintptr)
}
