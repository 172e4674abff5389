package abi

import (
	"sync"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/errors"
)

// Vtable is a read-only view of an interface table, read once against a
// schema. Slot order is trusted, not checked: a mismatch is undefined
// behavior on the native side.
type Vtable struct {
	Schema *Schema
	Addr   uintptr
	Fns    []uintptr
}

// validated holds the schemas that passed Validate. Schemas are not
// modified once a handle has been built on them.
var validated sync.Map // *Schema -> struct{}

func validate(s *Schema) error {
	if s == nil {
		return errors.InvalidInput(errors.PhaseValidate, "nil schema")
	}
	if _, ok := validated.Load(s); ok {
		return nil
	}
	if err := s.Validate(); err != nil {
		return err
	}
	validated.Store(s, struct{}{})
	return nil
}

// ReadVtable interprets the first machine word at obj as a table pointer
// and reads one entry per schema slot. The schema is validated first.
func ReadVtable(mem winrt.Memory, ptrSize uintptr, obj uintptr, s *Schema) (*Vtable, error) {
	if err := validate(s); err != nil {
		return nil, err
	}
	if obj == 0 {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Name(s.Name).
			HResult(errors.EPointer).
			Detail("null interface pointer").
			Build()
	}
	table, err := mem.ReadPtr(obj)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDispatch, errors.KindOutOfBounds, err, "read table pointer of "+s.Name)
	}
	if table == 0 {
		return nil, errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
			Name(s.Name).
			HResult(errors.EPointer).
			Detail("null table pointer at %#x", obj).
			Build()
	}

	fns := make([]uintptr, len(s.Slots))
	for i := range fns {
		fn, err := mem.ReadPtr(table + uintptr(i)*ptrSize)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseDispatch, errors.KindOutOfBounds, err, "read slot "+s.Slots[i].Name)
		}
		fns[i] = fn
	}
	return &Vtable{Schema: s, Addr: table, Fns: fns}, nil
}

// Fn returns the function pointer of the named slot.
func (v *Vtable) Fn(name string) (uintptr, error) {
	slot, ok := v.Schema.Slot(name)
	if !ok {
		return 0, errors.NotFound(errors.PhaseDispatch, "slot", v.Schema.Name+"."+name)
	}
	return v.Fns[slot.Index], nil
}

// WriteVtable lays fns out as a table in platform memory and returns its
// address. The caller frees it with Allocator.Free.
func WriteVtable(p interface {
	winrt.Memory
	winrt.Allocator
}, ptrSize uintptr, fns []uintptr) (uintptr, error) {
	if len(fns) == 0 {
		return 0, errors.InvalidInput(errors.PhaseDispatch, "empty table")
	}
	table, err := p.Alloc(uintptr(len(fns))*ptrSize, ptrSize)
	if err != nil {
		return 0, err
	}
	for i, fn := range fns {
		if err := p.WritePtr(table+uintptr(i)*ptrSize, fn); err != nil {
			p.Free(table)
			return 0, err
		}
	}
	return table, nil
}
