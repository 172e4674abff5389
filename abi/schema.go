package abi

import (
	"fmt"

	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// Published identifiers of the base interfaces.
var (
	IIDUnknown           = guid.MustParse("00000000-0000-0000-c000-000000000046")
	IIDInspectable       = guid.MustParse("af86e2e0-b12d-4c6a-9c5a-d7aa65101e90")
	IIDActivationFactory = guid.MustParse("00000035-0000-0000-c000-000000000046")
	IIDAgileObject       = guid.MustParse("94ea2b94-e9cc-49e0-c0ff-ee64ca8f5b90")
)

// Slot is one entry of an interface table. Params counts the arguments
// after the interface pointer.
type Slot struct {
	Name   string
	Index  int
	Params int
}

// Schema is the externally dictated slot layout of one interface. The slot
// list includes every inherited slot, so Slots[i].Index == i.
type Schema struct {
	Name  string
	IID   guid.GUID
	Base  *Schema
	Slots []Slot
}

// Standard schemas.
var (
	IUnknown = &Schema{
		Name: "IUnknown",
		IID:  IIDUnknown,
		Slots: []Slot{
			{Name: "QueryInterface", Index: 0, Params: 2},
			{Name: "AddRef", Index: 1},
			{Name: "Release", Index: 2},
		},
	}

	IInspectable = Extend(IUnknown, "IInspectable", IIDInspectable,
		Slot{Name: "GetIids", Params: 2},
		Slot{Name: "GetRuntimeClassName", Params: 1},
		Slot{Name: "GetTrustLevel", Params: 1},
	)

	IActivationFactory = Extend(IInspectable, "IActivationFactory", IIDActivationFactory,
		Slot{Name: "ActivateInstance", Params: 1},
	)
)

// Extend derives a schema from base. Indices of the new slots are assigned
// in order after the inherited ones.
func Extend(base *Schema, name string, iid guid.GUID, slots ...Slot) *Schema {
	s := &Schema{
		Name:  name,
		IID:   iid,
		Base:  base,
		Slots: make([]Slot, 0, len(base.Slots)+len(slots)),
	}
	s.Slots = append(s.Slots, base.Slots...)
	for _, slot := range slots {
		slot.Index = len(s.Slots)
		s.Slots = append(s.Slots, slot)
	}
	return s
}

// Delegate returns the schema of a delegate interface: IUnknown plus one
// Invoke slot taking params arguments.
func Delegate(name string, iid guid.GUID, params int) *Schema {
	return Extend(IUnknown, name, iid, Slot{Name: "Invoke", Params: params})
}

// Len returns the number of slots.
func (s *Schema) Len() int {
	return len(s.Slots)
}

// Slot returns the named slot.
func (s *Schema) Slot(name string) (Slot, bool) {
	for _, slot := range s.Slots {
		if slot.Name == name {
			return slot, true
		}
	}
	return Slot{}, false
}

// Derives reports whether s is other or inherits from it.
func (s *Schema) Derives(other *Schema) bool {
	for cur := s; cur != nil; cur = cur.Base {
		if cur == other {
			return true
		}
	}
	return false
}

// Validate checks that indices are contiguous from zero, names are unique,
// the base schema is an exact prefix and the IUnknown slots come first.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.InvalidInput(errors.PhaseValidate, "schema has no name")
	}
	seen := make(map[string]int, len(s.Slots))
	for i, slot := range s.Slots {
		if slot.Index != i {
			return invalid(s, "slot %q has index %d at position %d", slot.Name, slot.Index, i)
		}
		if slot.Name == "" {
			return invalid(s, "slot %d has no name", i)
		}
		if prev, dup := seen[slot.Name]; dup {
			return invalid(s, "slot %q appears at %d and %d", slot.Name, prev, i)
		}
		seen[slot.Name] = i
	}

	if s.Base != nil {
		if err := s.Base.Validate(); err != nil {
			return err
		}
		if len(s.Base.Slots) > len(s.Slots) {
			return invalid(s, "shorter than base %s", s.Base.Name)
		}
		for i, slot := range s.Base.Slots {
			if s.Slots[i] != slot {
				return invalid(s, "slot %d is %q, base %s has %q", i, s.Slots[i].Name, s.Base.Name, slot.Name)
			}
		}
	}

	for i, slot := range IUnknown.Slots {
		if i >= len(s.Slots) || s.Slots[i].Name != slot.Name {
			return invalid(s, "slot %d must be %s", i, slot.Name)
		}
	}
	return nil
}

func invalid(s *Schema, format string, args ...any) error {
	return errors.New(errors.PhaseValidate, errors.KindInvalidInput).
		Name(s.Name).
		Detail(format, args...).
		Build()
}

func (s *Schema) String() string {
	return fmt.Sprintf("%s{%s, %d slots}", s.Name, s.IID, len(s.Slots))
}
