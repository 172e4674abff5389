// Package guid implements the 128-bit identifiers that name interfaces and
// classes on the ABI.
//
// A GUID keeps its fields the way the ABI lays them out: Data1..Data3 are
// stored little-endian in memory, Data4 is a plain byte array. Textual forms
// follow the usual 8-4-4-4-12 grouping.
package guid

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Size is the in-memory size of a GUID.
const Size = 16

// GUID is an interface or class identifier.
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// Nil is the all-zero identifier.
var Nil GUID

// Parse accepts "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" with or without braces.
func Parse(s string) (GUID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "{")
	s = strings.TrimSuffix(s, "}")
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("guid: parse %q: %w", s, err)
	}
	return FromUUID(u), nil
}

// MustParse is Parse that panics on malformed input. Intended for published
// constants.
func MustParse(s string) GUID {
	g, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return g
}

// FromUUID converts an RFC 4122 (big-endian) UUID.
func FromUUID(u uuid.UUID) GUID {
	var g GUID
	g.Data1 = binary.BigEndian.Uint32(u[0:4])
	g.Data2 = binary.BigEndian.Uint16(u[4:6])
	g.Data3 = binary.BigEndian.Uint16(u[6:8])
	copy(g.Data4[:], u[8:16])
	return g
}

// UUID returns the RFC 4122 (big-endian) form.
func (g GUID) UUID() uuid.UUID {
	var u uuid.UUID
	binary.BigEndian.PutUint32(u[0:4], g.Data1)
	binary.BigEndian.PutUint16(u[4:6], g.Data2)
	binary.BigEndian.PutUint16(u[6:8], g.Data3)
	copy(u[8:16], g.Data4[:])
	return u
}

// Bytes returns the in-memory ABI layout.
func (g GUID) Bytes() []byte {
	b := make([]byte, Size)
	binary.LittleEndian.PutUint32(b[0:4], g.Data1)
	binary.LittleEndian.PutUint16(b[4:6], g.Data2)
	binary.LittleEndian.PutUint16(b[6:8], g.Data3)
	copy(b[8:16], g.Data4[:])
	return b
}

// FromBytes decodes the in-memory ABI layout.
func FromBytes(b []byte) (GUID, error) {
	if len(b) < Size {
		return Nil, fmt.Errorf("guid: need %d bytes, got %d", Size, len(b))
	}
	var g GUID
	g.Data1 = binary.LittleEndian.Uint32(b[0:4])
	g.Data2 = binary.LittleEndian.Uint16(b[4:6])
	g.Data3 = binary.LittleEndian.Uint16(b[6:8])
	copy(g.Data4[:], b[8:16])
	return g, nil
}

// String returns the lower-case form without braces.
func (g GUID) String() string {
	return g.UUID().String()
}

// Braced returns the lower-case form wrapped in braces, as used inside
// interface signatures.
func (g GUID) Braced() string {
	return "{" + g.String() + "}"
}

// IsNil reports whether g is the all-zero identifier.
func (g GUID) IsNil() bool {
	return g == Nil
}
