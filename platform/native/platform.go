package native

import (
	winrt "github.com/wippyai/winrt-runtime"
)

// Platform is the real process: direct memory access, system allocation,
// purego calls and the operating system's loader. On Windows strings and
// the broker come from combase; elsewhere strings live in a host heap and
// the broker knows no classes.
type Platform struct {
	memory
	caller
	*system
}

var _ winrt.Platform = (*Platform)(nil)

// New opens the platform libraries.
func New() (*Platform, error) {
	sys, err := openSystem()
	if err != nil {
		return nil, err
	}
	p := &Platform{system: sys}
	p.memory = newMemory(sys.allocBlock, sys.freeBlock)
	sys.init(p)
	return p, nil
}

// PointerSize returns the machine word size.
func (p *Platform) PointerSize() uintptr {
	return ptrSize
}
