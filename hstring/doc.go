// Package hstring wraps native immutable string handles.
//
// A String owns one handle and deletes it on Close. Duplicate produces an
// independently owned handle to the same characters. A Reference is the
// zero-copy variant: the characters stay in caller-held, pinned memory and
// the platform only formats a fixed-size header over them.
//
// HostStrings implements the four string primitives plus references on top
// of plain Memory and Allocator, for platforms that have no system string
// API.
package hstring
