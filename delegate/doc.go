// Package delegate synthesizes native delegate objects around Go
// functions.
//
// An Adapter owns the four thunks of one delegate kind (QueryInterface,
// AddRef, Release and Invoke for a fixed arity). Each Bridge is a small
// native object whose table points at those thunks; the thunks find the
// bridge again by its address. A bridge answers QueryInterface for
// IUnknown, IAgileObject and its own delegate identifier, counts
// references atomically, and frees its memory when the count reaches zero.
//
// Invoke runs the Go function and converts its error to a status code. A
// panic becomes E_FAIL. An invocation that arrives after the bridge was
// retired is answered with RO_E_CLOSED and never reaches Go code.
//
// A bridge created WithSender only accepts invocations whose first
// argument is that source object; anything else fails with E_INVALIDARG.
package delegate
