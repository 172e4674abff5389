// Package native implements the platform contract against the running
// process.
//
// Function pointers are called and Go callbacks are exported through
// purego, so no cgo toolchain is needed. On Windows, string handles, the
// broker (RoGetActivationFactory) and the task allocator come from
// combase.dll and libraries are loaded with LoadLibraryEx. On Linux,
// macOS and FreeBSD libraries are opened with dlopen, string handles live
// in a host heap with the same header layout, and the broker answers
// REGDB_E_CLASSNOTREG for every class, so activation relies entirely on
// component modules.
package native
