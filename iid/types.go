package iid

import (
	"strings"

	"github.com/wippyai/winrt-runtime/guid"
)

// Type describes a type that can appear in an interface signature.
type Type interface {
	// Signature returns the canonical signature fragment.
	Signature() string
	// String returns the display name, such as IMap<String, Int32>.
	String() string
}

// Primitive is a fundamental type, named by its signature code.
type Primitive string

// Primitive types.
const (
	Int8    Primitive = "i1"
	UInt8   Primitive = "u1"
	Int16   Primitive = "i2"
	UInt16  Primitive = "u2"
	Int32   Primitive = "i4"
	UInt32  Primitive = "u4"
	Int64   Primitive = "i8"
	UInt64  Primitive = "u8"
	Float32 Primitive = "f4"
	Float64 Primitive = "f8"
	Boolean Primitive = "b1"
	Char16  Primitive = "c2"
	Guid    Primitive = "g16"
	String  Primitive = "string"
)

var primitiveNames = map[Primitive]string{
	Int8:    "Int8",
	UInt8:   "UInt8",
	Int16:   "Int16",
	UInt16:  "UInt16",
	Int32:   "Int32",
	UInt32:  "UInt32",
	Int64:   "Int64",
	UInt64:  "UInt64",
	Float32: "Single",
	Float64: "Double",
	Boolean: "Boolean",
	Char16:  "Char16",
	Guid:    "Guid",
	String:  "String",
}

func (p Primitive) Signature() string { return string(p) }

func (p Primitive) String() string {
	if n, ok := primitiveNames[p]; ok {
		return n
	}
	return string(p)
}

type object struct{}

// Object is the base object type, IInspectable.
var Object Type = object{}

func (object) Signature() string { return "cinterface(IInspectable)" }
func (object) String() string    { return "Object" }

// Interface is a non-parameterized interface with a published identifier.
type Interface struct {
	Name string
	IID  guid.GUID
}

func (i Interface) Signature() string { return i.IID.Braced() }

func (i Interface) String() string {
	if i.Name != "" {
		return i.Name
	}
	return i.IID.Braced()
}

// Delegate is a non-parameterized delegate with a published identifier.
type Delegate struct {
	Name string
	IID  guid.GUID
}

func (d Delegate) Signature() string { return "delegate(" + d.IID.Braced() + ")" }

func (d Delegate) String() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Signature()
}

// RuntimeClass is a class, represented in signatures by its default
// interface.
type RuntimeClass struct {
	Name    string
	Default Type
}

func (r RuntimeClass) Signature() string {
	return "rc(" + r.Name + ";" + r.Default.Signature() + ")"
}

func (r RuntimeClass) String() string { return r.Name }

// Struct is a value type; its signature lists every field.
type Struct struct {
	Name   string
	Fields []Type
}

func (s Struct) Signature() string {
	var b strings.Builder
	b.WriteString("struct(")
	b.WriteString(s.Name)
	for _, f := range s.Fields {
		b.WriteByte(';')
		b.WriteString(f.Signature())
	}
	b.WriteByte(')')
	return b.String()
}

func (s Struct) String() string { return s.Name }

// Enum is an enumeration. Flags enums are unsigned.
type Enum struct {
	Name  string
	Flags bool
}

func (e Enum) Signature() string {
	if e.Flags {
		return "enum(" + e.Name + ";u4)"
	}
	return "enum(" + e.Name + ";i4)"
}

func (e Enum) String() string { return e.Name }

// Parameterized is an instantiation of a generic interface or delegate.
type Parameterized struct {
	Name string
	PIID guid.GUID
	Args []Type
}

func (p Parameterized) Signature() string {
	var b strings.Builder
	b.WriteString("pinterface(")
	b.WriteString(p.PIID.Braced())
	for _, a := range p.Args {
		b.WriteByte(';')
		b.WriteString(a.Signature())
	}
	b.WriteByte(')')
	return b.String()
}

func (p Parameterized) String() string {
	var b strings.Builder
	b.WriteString(shortName(p.Name))
	b.WriteByte('<')
	for i, a := range p.Args {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(a.String())
	}
	b.WriteByte('>')
	return b.String()
}

func shortName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}
