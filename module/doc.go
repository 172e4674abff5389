// Package module manages loaded component libraries and the platform
// runtime broker.
//
// A Cache is an explicit registry of modules keyed by name. Load returns a
// counted reference; concurrent loads of one name share a single platform
// load. Release unloads at zero while still holding the cache lock, so a
// racing Load either finds the live entry or performs a fresh load, never a
// half-unloaded one.
//
// Modules and the Broker implement abi.Owner: a factory handle obtained
// from either keeps it referenced until the handle is released.
package module
