package hstring

import (
	"sync"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/errors"
)

// Header layout shared by owned and reference handles:
//
//	+0  flags   u32
//	+4  length  u32 (code units, no terminator)
//	+8  refs    u32 (owned handles only)
//	+12 pad     u32
//	+16 buffer  u64
const (
	offFlags  = 0
	offLength = 4
	offRefs   = 8
	offBuffer = 16

	flagReference = 1
)

// HostStrings implements the string primitives on top of a Memory and an
// Allocator. Platforms without a system string API use it.
type HostStrings struct {
	mem   winrt.Memory
	alloc winrt.Allocator

	mu   sync.Mutex
	live map[uintptr]struct{}
}

// NewHostStrings creates a string heap over mem and alloc.
func NewHostStrings(mem winrt.Memory, alloc winrt.Allocator) *HostStrings {
	return &HostStrings{
		mem:   mem,
		alloc: alloc,
		live:  make(map[uintptr]struct{}),
	}
}

// CreateString copies length code units starting at buf into a new handle.
func (h *HostStrings) CreateString(buf uintptr, length uint32) (uintptr, uint32) {
	if length == 0 {
		return 0, uint32(errors.OK)
	}
	if buf == 0 {
		return 0, uint32(errors.EPointer)
	}
	units, err := h.mem.Read(buf, uintptr(length)*2)
	if err != nil {
		return 0, uint32(errors.HResultOf(err))
	}
	return h.create(units, length)
}

func (h *HostStrings) create(units []byte, length uint32) (uintptr, uint32) {
	size := uintptr(winrt.HeaderSize) + uintptr(len(units)) + 2
	handle, err := h.alloc.Alloc(size, 8)
	if err != nil {
		return 0, uint32(errors.EOutOfMemory)
	}
	data := handle + winrt.HeaderSize
	if err := h.mem.Write(data, append(units, 0, 0)); err != nil {
		h.alloc.Free(handle)
		return 0, uint32(errors.HResultOf(err))
	}
	if err := h.writeHeader(handle, 0, length, 1, data); err != nil {
		h.alloc.Free(handle)
		return 0, uint32(errors.HResultOf(err))
	}

	h.mu.Lock()
	h.live[handle] = struct{}{}
	h.mu.Unlock()
	return handle, uint32(errors.OK)
}

// CreateStringReference formats header to point at buf without copying.
func (h *HostStrings) CreateStringReference(buf uintptr, length uint32, header uintptr) (uintptr, uint32) {
	if length == 0 {
		return 0, uint32(errors.OK)
	}
	if buf == 0 || header == 0 {
		return 0, uint32(errors.EPointer)
	}
	if err := h.writeHeader(header, flagReference, length, 0, buf); err != nil {
		return 0, uint32(errors.HResultOf(err))
	}
	return header, uint32(errors.OK)
}

// DuplicateString adds a reference to an owned handle. A reference handle
// is copied into a new owned handle.
func (h *HostStrings) DuplicateString(handle uintptr) (uintptr, uint32) {
	if handle == 0 {
		return 0, uint32(errors.OK)
	}
	flags, err := h.mem.ReadU32(handle + offFlags)
	if err != nil {
		return 0, uint32(errors.HResultOf(err))
	}
	if flags&flagReference != 0 {
		buf, length := h.GetStringRawBuffer(handle)
		units, err := h.mem.Read(buf, uintptr(length)*2)
		if err != nil {
			return 0, uint32(errors.HResultOf(err))
		}
		return h.create(units, length)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[handle]; !ok {
		return 0, uint32(errors.EInvalidArg)
	}
	refs, err := h.mem.ReadU32(handle + offRefs)
	if err != nil {
		return 0, uint32(errors.HResultOf(err))
	}
	if err := h.mem.WriteU32(handle+offRefs, refs+1); err != nil {
		return 0, uint32(errors.HResultOf(err))
	}
	return handle, uint32(errors.OK)
}

// DeleteString drops one reference and frees the handle at zero.
func (h *HostStrings) DeleteString(handle uintptr) uint32 {
	if handle == 0 {
		return uint32(errors.OK)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.live[handle]; !ok {
		return uint32(errors.EInvalidArg)
	}
	refs, err := h.mem.ReadU32(handle + offRefs)
	if err != nil {
		return uint32(errors.HResultOf(err))
	}
	if refs > 1 {
		if err := h.mem.WriteU32(handle+offRefs, refs-1); err != nil {
			return uint32(errors.HResultOf(err))
		}
		return uint32(errors.OK)
	}
	delete(h.live, handle)
	h.alloc.Free(handle)
	return uint32(errors.OK)
}

// GetStringRawBuffer returns the character buffer and its length.
func (h *HostStrings) GetStringRawBuffer(handle uintptr) (uintptr, uint32) {
	if handle == 0 {
		return 0, 0
	}
	length, err := h.mem.ReadU32(handle + offLength)
	if err != nil {
		return 0, 0
	}
	buf, err := h.mem.ReadU64(handle + offBuffer)
	if err != nil {
		return 0, 0
	}
	return uintptr(buf), length
}

// Live returns the number of owned handles not yet deleted.
func (h *HostStrings) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

func (h *HostStrings) writeHeader(at uintptr, flags, length, refs uint32, buf uintptr) error {
	if err := h.mem.WriteU32(at+offFlags, flags); err != nil {
		return err
	}
	if err := h.mem.WriteU32(at+offLength, length); err != nil {
		return err
	}
	if err := h.mem.WriteU32(at+offRefs, refs); err != nil {
		return err
	}
	if err := h.mem.WriteU32(at+offRefs+4, 0); err != nil {
		return err
	}
	return h.mem.WriteU64(at+offBuffer, uint64(buf))
}
