package errors

import "sync/atomic"

// FatalHandler receives contract violations that make further execution
// unsafe: over-release and leaked bridges.
type FatalHandler func(*Error)

var fatalHandler atomic.Pointer[FatalHandler]

// SetFatalHandler replaces the handler invoked by Fatal and returns the
// previous one. A nil handler restores the default, which panics.
func SetFatalHandler(h FatalHandler) FatalHandler {
	var prev *FatalHandler
	if h == nil {
		prev = fatalHandler.Swap(nil)
	} else {
		prev = fatalHandler.Swap(&h)
	}
	if prev == nil {
		return nil
	}
	return *prev
}

// Fatal reports a contract violation. The default handler panics with err.
// A custom handler may return, in which case the caller continues without
// touching the native object again.
func Fatal(err *Error) {
	if h := fatalHandler.Load(); h != nil {
		(*h)(err)
		return
	}
	panic(err)
}
