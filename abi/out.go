package abi

import (
	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/guid"
)

// Out is pointer-sized scratch memory for output parameters. One Out per
// call; Free when the results have been read.
type Out struct {
	p       winrt.Platform
	addr    uintptr
	n       int
	ptrSize uintptr
}

// NewOut allocates n zeroed output slots.
func NewOut(p winrt.Platform, n int) (*Out, error) {
	ps := p.PointerSize()
	addr, err := p.Alloc(uintptr(max(n, 1))*ps, ps)
	if err != nil {
		return nil, err
	}
	return &Out{p: p, addr: addr, n: n, ptrSize: ps}, nil
}

// Addr returns the address of slot i, to be passed to the callee.
func (o *Out) Addr(i int) uintptr {
	return o.addr + uintptr(i)*o.ptrSize
}

// Ptr reads slot i as a pointer.
func (o *Out) Ptr(i int) (uintptr, error) {
	return o.p.ReadPtr(o.Addr(i))
}

// U32 reads the low 32 bits of slot i.
func (o *Out) U32(i int) (uint32, error) {
	return o.p.ReadU32(o.Addr(i))
}

// U64 reads slot i as a 64-bit value.
func (o *Out) U64(i int) (uint64, error) {
	return o.p.ReadU64(o.Addr(i))
}

// Free releases the scratch memory.
func (o *Out) Free() {
	o.p.Free(o.addr)
}

// PutGUID copies id into freshly allocated memory, for by-reference IID
// arguments. The caller frees the returned address.
func PutGUID(p winrt.Platform, id guid.GUID) (uintptr, error) {
	addr, err := p.Alloc(guid.Size, 8)
	if err != nil {
		return 0, err
	}
	if err := p.Write(addr, id.Bytes()); err != nil {
		p.Free(addr)
		return 0, err
	}
	return addr, nil
}
