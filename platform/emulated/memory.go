package emulated

import (
	"encoding/binary"
	"sort"

	"github.com/wippyai/winrt-runtime/errors"
)

const (
	arenaBase  uintptr = 0x10000
	arenaLimit uintptr = 0x1000_0000
)

type block struct {
	start uintptr
	size  uintptr
	live  bool
}

// arena is a bump allocator over one growable byte slice. Blocks are never
// reused, so a dangling pointer into freed memory reports OutOfBounds
// instead of aliasing a newer allocation.
type arena struct {
	data   []byte
	next   uintptr
	blocks []block
	index  map[uintptr]int
	live   int
}

func newArena() arena {
	return arena{
		next:  arenaBase,
		index: make(map[uintptr]int),
	}
}

func alignUp(v, align uintptr) uintptr {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

// Alloc returns zeroed memory of the given size and alignment.
func (p *Platform) Alloc(size, align uintptr) (uintptr, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 || align&(align-1) != 0 {
		return 0, errors.Argument(errors.PhaseMemory, "alignment %d is not a power of two", align)
	}

	p.memMu.Lock()
	defer p.memMu.Unlock()

	a := &p.arena
	start := alignUp(a.next, align)
	end := start + size
	if end > arenaLimit {
		return 0, errors.AllocationFailed(size, align)
	}
	need := int(end - arenaBase)
	if need > len(a.data) {
		grow := max(need, 2*len(a.data), 4096)
		data := make([]byte, grow)
		copy(data, a.data)
		a.data = data
	}
	clear(a.data[start-arenaBase : end-arenaBase])
	a.next = end
	a.index[start] = len(a.blocks)
	a.blocks = append(a.blocks, block{start: start, size: size, live: true})
	a.live++
	return start, nil
}

// Free releases a block. Unknown or already freed pointers are ignored and
// counted in DoubleFrees.
func (p *Platform) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	p.memMu.Lock()
	defer p.memMu.Unlock()

	a := &p.arena
	i, ok := a.index[ptr]
	if !ok || !a.blocks[i].live {
		p.doubleFrees++
		return
	}
	a.blocks[i].live = false
	a.live--
}

// LiveBlocks returns the number of allocations not yet freed.
func (p *Platform) LiveBlocks() int {
	p.memMu.RLock()
	defer p.memMu.RUnlock()
	return p.arena.live
}

// DoubleFrees returns how many Free calls named memory that was not live.
func (p *Platform) DoubleFrees() int {
	p.memMu.RLock()
	defer p.memMu.RUnlock()
	return p.doubleFrees
}

// span checks that [addr, addr+length) lies inside one live block and
// returns the slice offset. Callers hold memMu.
func (p *Platform) span(addr, length uintptr) (int, error) {
	a := &p.arena
	i := sort.Search(len(a.blocks), func(i int) bool {
		return a.blocks[i].start+a.blocks[i].size > addr
	})
	if i == len(a.blocks) {
		return 0, errors.OutOfBounds(addr, length)
	}
	b := a.blocks[i]
	if !b.live || addr < b.start || addr+length > b.start+b.size {
		return 0, errors.OutOfBounds(addr, length)
	}
	return int(addr - arenaBase), nil
}

func (p *Platform) Read(addr, length uintptr) ([]byte, error) {
	p.memMu.RLock()
	defer p.memMu.RUnlock()
	off, err := p.span(addr, length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, p.arena.data[off:])
	return out, nil
}

func (p *Platform) Write(addr uintptr, data []byte) error {
	p.memMu.Lock()
	defer p.memMu.Unlock()
	off, err := p.span(addr, uintptr(len(data)))
	if err != nil {
		return err
	}
	copy(p.arena.data[off:], data)
	return nil
}

func (p *Platform) ReadU16(addr uintptr) (uint16, error) {
	b, err := p.Read(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (p *Platform) ReadU32(addr uintptr) (uint32, error) {
	b, err := p.Read(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (p *Platform) ReadU64(addr uintptr) (uint64, error) {
	b, err := p.Read(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (p *Platform) ReadPtr(addr uintptr) (uintptr, error) {
	v, err := p.ReadU64(addr)
	return uintptr(v), err
}

func (p *Platform) WriteU16(addr uintptr, value uint16) error {
	return p.Write(addr, binary.LittleEndian.AppendUint16(nil, value))
}

func (p *Platform) WriteU32(addr uintptr, value uint32) error {
	return p.Write(addr, binary.LittleEndian.AppendUint32(nil, value))
}

func (p *Platform) WriteU64(addr uintptr, value uint64) error {
	return p.Write(addr, binary.LittleEndian.AppendUint64(nil, value))
}

func (p *Platform) WritePtr(addr uintptr, value uintptr) error {
	return p.WriteU64(addr, uint64(value))
}

// TaskFree releases memory handed out by a component, such as the
// identifier array returned from GetIids.
func (p *Platform) TaskFree(ptr uintptr) {
	p.Free(ptr)
}

// PointerSize is always 8: the arena models a 64-bit address space.
func (p *Platform) PointerSize() uintptr {
	return 8
}
