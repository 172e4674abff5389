// Package abi implements object handles and interface tables.
//
// A Schema is the slot layout of one interface, kept as data so it can be
// validated and tested without native calls. The standard schemas are
// IUnknown, IInspectable and IActivationFactory; Extend and Delegate build
// the rest.
//
// An Object is a handle to one interface pointer:
//
//	obj, err := abi.Attach(p, module, addr, abi.IInspectable) // takes the returned reference
//	obj, err := abi.FromBorrowed(p, module, addr, schema)     // adds a reference
//	obj, err := abi.Borrow(p, addr, schema)                   // holds no reference
//
// As queries for another interface and yields an independently owned
// handle. Release gives the reference back exactly once; a second Release
// is an over-release and goes through errors.Fatal. An owned handle that is
// collected without Release is released by a runtime cleanup and logged,
// which is a leak safeguard and never part of correct operation.
//
// Each owned handle retains its Owner, typically the module whose code the
// table points into, so the module stays loaded while the handle lives.
package abi
