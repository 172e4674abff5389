// Package winrtruntime provides a Go bridge to components implemented behind the
// Windows Runtime / COM binary interface.
//
// Native components expose reference-counted objects whose first machine word
// points at a fixed-order table of function pointers. This library lets Go code
// activate such components, call through their tables, and receive callbacks
// from them without the native side knowing anything about Go.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	winrtruntime/        Root package with the Platform contract (memory, calls, loader, strings, broker)
//	├── runtime/         High-level API wiring caches, resolver and logging
//	├── abi/             Object handles, vtable schemas, query-interface casts
//	├── module/          Module reference cache and the runtime broker reference
//	├── activation/      Activation factory resolution with namespace fallback
//	├── delegate/        Callback bridges: Go closures callable from native code
//	├── event/           Multicast event sources over native add/remove pairs
//	├── iid/             Interface identity generation for parameterized interfaces
//	├── hstring/         Native string handles and a host-side string heap
//	├── guid/            128-bit interface identifiers
//	├── resource/        Live handle tracking and lifecycle observers
//	├── config/          TOML configuration
//	├── errors/          Structured error types and status codes
//	└── platform/        native (real process) and emulated (in-process) platforms
//
// # Quick Start
//
//	p, err := native.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rt, err := runtime.New(p, config.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	uri, err := rt.ActivateAs("Windows.Foundation.Uri", uriSchema)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Release(uri)
//
// # Ownership
//
// Every abi.Object either owns exactly one native reference or borrows one.
// Attach takes over a reference returned by a native call, FromBorrowed adds
// one, and Release gives it back exactly once. Releasing twice is a contract
// violation reported through errors.Fatal.
//
// # Thread Safety
//
// Objects, module references and callback bridges may be used from multiple
// goroutines. Reference counts are atomic; the module cache, each callback
// adapter and each event source are guarded by a single lock.
package winrtruntime
