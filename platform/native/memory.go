package native

import (
	"encoding/binary"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/wippyai/winrt-runtime/errors"
)

// memory reads and writes the process address space directly. Blocks are
// obtained from the system allocator so components can hold them across
// calls and, where the ABI asks for it, free them.
type memory struct {
	alloc func(size uintptr) uintptr
	free  func(ptr uintptr)

	mu     sync.Mutex
	blocks map[uintptr]uintptr
}

func newMemory(alloc func(uintptr) uintptr, free func(uintptr)) memory {
	return memory{alloc: alloc, free: free, blocks: make(map[uintptr]uintptr)}
}

// maxAlign is the alignment the system allocators guarantee.
const maxAlign = 16

// Alloc returns zeroed memory of at least size bytes.
func (m *memory) Alloc(size, align uintptr) (uintptr, error) {
	if align > maxAlign || align&(align-1) != 0 {
		return 0, errors.Unsupported(errors.PhaseMemory, "alignment beyond the system allocator")
	}
	size = max(size, 1)
	ptr := m.alloc(size)
	if ptr == 0 {
		return 0, errors.AllocationFailed(size, align)
	}
	clear(unsafe.Slice((*byte)(unsafe.Pointer(ptr)), size))

	m.mu.Lock()
	m.blocks[ptr] = size
	m.mu.Unlock()
	return ptr, nil
}

// Free returns a block obtained from Alloc. Unknown pointers are logged
// and ignored.
func (m *memory) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	m.mu.Lock()
	_, ok := m.blocks[ptr]
	delete(m.blocks, ptr)
	m.mu.Unlock()
	if !ok {
		Logger().Warn("free of unknown block", zap.Uintptr("ptr", ptr))
		return
	}
	m.free(ptr)
}

// Blocks returns the number of live blocks.
func (m *memory) Blocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocks)
}

func view(addr, length uintptr) ([]byte, error) {
	if addr == 0 {
		return nil, errors.OutOfBounds(addr, length)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), length), nil
}

func (m *memory) Read(addr, length uintptr) ([]byte, error) {
	if length == 0 {
		return []byte{}, nil
	}
	b, err := view(addr, length)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func (m *memory) Write(addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	b, err := view(addr, uintptr(len(data)))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *memory) ReadU16(addr uintptr) (uint16, error) {
	b, err := view(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint16(b), nil
}

func (m *memory) ReadU32(addr uintptr) (uint32, error) {
	b, err := view(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(b), nil
}

func (m *memory) ReadU64(addr uintptr) (uint64, error) {
	b, err := view(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(b), nil
}

func (m *memory) ReadPtr(addr uintptr) (uintptr, error) {
	if addr == 0 {
		return 0, errors.OutOfBounds(addr, ptrSize)
	}
	return *(*uintptr)(unsafe.Pointer(addr)), nil
}

func (m *memory) WriteU16(addr uintptr, value uint16) error {
	b, err := view(addr, 2)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint16(b, value)
	return nil
}

func (m *memory) WriteU32(addr uintptr, value uint32) error {
	b, err := view(addr, 4)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint32(b, value)
	return nil
}

func (m *memory) WriteU64(addr uintptr, value uint64) error {
	b, err := view(addr, 8)
	if err != nil {
		return err
	}
	binary.NativeEndian.PutUint64(b, value)
	return nil
}

func (m *memory) WritePtr(addr uintptr, value uintptr) error {
	if addr == 0 {
		return errors.OutOfBounds(addr, ptrSize)
	}
	*(*uintptr)(unsafe.Pointer(addr)) = value
	return nil
}

const ptrSize = unsafe.Sizeof(uintptr(0))
