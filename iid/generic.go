package iid

import (
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/guid"
)

// Generic is an uninstantiated parameterized interface or delegate.
type Generic struct {
	Name  string
	PIID  guid.GUID
	Arity int
}

// Of instantiates g with args.
func (g Generic) Of(args ...Type) (Parameterized, error) {
	if len(args) != g.Arity {
		return Parameterized{}, errors.Argument(errors.PhaseSignature,
			"%s takes %d type arguments, got %d", g.Name, g.Arity, len(args))
	}
	for i, a := range args {
		if a == nil {
			return Parameterized{}, errors.Argument(errors.PhaseSignature, "%s type argument %d is nil", g.Name, i)
		}
	}
	return Parameterized{Name: g.Name, PIID: g.PIID, Args: args}, nil
}

// MustOf is Of for statically known instantiations.
func (g Generic) MustOf(args ...Type) Parameterized {
	p, err := g.Of(args...)
	if err != nil {
		panic(err)
	}
	return p
}

const (
	collections = "Windows.Foundation.Collections."
	foundation  = "Windows.Foundation."
)

// Well-known generic definitions.
var (
	IIterable         = Generic{collections + "IIterable", guid.MustParse("faa585ea-6214-4217-afda-7f46de5869b3"), 1}
	IIterator         = Generic{collections + "IIterator", guid.MustParse("6a79e863-4300-459a-9966-cbb660963ee1"), 1}
	IVector           = Generic{collections + "IVector", guid.MustParse("913337e9-11a1-4345-a3a2-4e7f956e222d"), 1}
	IVectorView       = Generic{collections + "IVectorView", guid.MustParse("bbe1fa4c-b0e3-4583-baef-1f1b2e483e56"), 1}
	IMap              = Generic{collections + "IMap", guid.MustParse("3c2925fe-8519-45c1-aa79-197b6718c1c1"), 2}
	IMapView          = Generic{collections + "IMapView", guid.MustParse("e480ce40-a338-4ada-adcf-272272e48cb9"), 2}
	IKeyValuePair     = Generic{collections + "IKeyValuePair", guid.MustParse("02b51929-c1c4-4a7e-8940-0312b5c18500"), 2}
	IReference        = Generic{foundation + "IReference", guid.MustParse("61c17706-2d65-11e0-9ae8-d48564015472"), 1}
	EventHandler      = Generic{foundation + "EventHandler", guid.MustParse("9de1c535-6ae1-11e0-84e1-18a905bcc53f"), 1}
	TypedEventHandler = Generic{foundation + "TypedEventHandler", guid.MustParse("9de1c534-6ae1-11e0-84e1-18a905bcc53f"), 2}
	IAsyncOperation   = Generic{foundation + "IAsyncOperation", guid.MustParse("9fc2b0bb-e446-44e2-aa61-9cab8f636af2"), 1}
)

// Generics lists the well-known definitions.
func Generics() []Generic {
	return []Generic{
		IIterable, IIterator, IVector, IVectorView, IMap, IMapView,
		IKeyValuePair, IReference, EventHandler, TypedEventHandler, IAsyncOperation,
	}
}
