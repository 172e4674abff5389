package abi

import (
	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
	"github.com/wippyai/winrt-runtime/hstring"
)

// TrustLevel is the value reported by IInspectable.GetTrustLevel.
type TrustLevel int32

const (
	BaseTrust TrustLevel = iota
	PartialTrust
	FullTrust
)

func (t TrustLevel) String() string {
	switch t {
	case BaseTrust:
		return "BaseTrust"
	case PartialTrust:
		return "PartialTrust"
	case FullTrust:
		return "FullTrust"
	}
	return "TrustLevel(?)"
}

func (o *Object) inspectable(op string) error {
	if !o.schema.Derives(IInspectable) {
		return errors.Unsupported(errors.PhaseCall, o.schema.Name+" is not inspectable: "+op)
	}
	return nil
}

// RuntimeClassName returns the full name of the object's runtime class.
func (o *Object) RuntimeClassName() (string, error) {
	if err := o.inspectable("GetRuntimeClassName"); err != nil {
		return "", err
	}
	handle, err := o.CallOut("GetRuntimeClassName")
	if err != nil {
		return "", err
	}
	s := hstring.Attach(o.st.p, handle)
	defer s.Close()
	return s.Value()
}

// Iids returns the interfaces the object reports implementing, excluding
// IUnknown and IInspectable.
func (o *Object) Iids() ([]guid.GUID, error) {
	if err := o.inspectable("GetIids"); err != nil {
		return nil, err
	}
	p := o.st.p
	out, err := NewOut(p, 2)
	if err != nil {
		return nil, err
	}
	defer out.Free()

	if err := o.Call("GetIids", out.Addr(0), out.Addr(1)); err != nil {
		return nil, err
	}
	count, err := out.U32(0)
	if err != nil {
		return nil, err
	}
	arr, err := out.Ptr(1)
	if err != nil {
		return nil, err
	}
	if f, ok := p.(winrt.TaskFreer); ok && arr != 0 {
		defer f.TaskFree(arr)
	}

	ids := make([]guid.GUID, 0, count)
	for i := range uintptr(count) {
		raw, err := p.Read(arr+i*guid.Size, guid.Size)
		if err != nil {
			return nil, err
		}
		id, err := guid.FromBytes(raw)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// TrustLevel returns the object's trust level.
func (o *Object) TrustLevel() (TrustLevel, error) {
	if err := o.inspectable("GetTrustLevel"); err != nil {
		return 0, err
	}
	v, err := o.CallOut("GetTrustLevel")
	if err != nil {
		return 0, err
	}
	return TrustLevel(int32(uint32(v))), nil
}
