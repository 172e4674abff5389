// Package iid derives interface identifiers for parameterized interfaces.
//
// A non-parameterized interface has a published identifier that is simply
// read. An instantiation such as IVector<String> has none; its identifier
// is computed from a canonical signature so that every implementation of
// the binary interface, compiled or not, agrees on it:
//
//	pinterface({913337e9-11a1-4345-a3a2-4e7f956e222d};string)
//
// The signature is hashed with SHA-1 together with a fixed namespace and
// the first 128 bits become a version 5 identifier. Type descriptors
// produce signature fragments recursively: primitives have fixed codes,
// structs list their fields, runtime classes name their default interface
// and delegates wrap their identifier.
package iid
