package event

import (
	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/abi"
	"github.com/wippyai/winrt-runtime/errors"
	"github.com/wippyai/winrt-runtime/hstring"
)

// Unmarshaler converts one raw Invoke argument into a host value.
type Unmarshaler[T any] func(p winrt.Platform, raw uintptr) (T, error)

// Int32 reads a 32-bit signed argument passed by value.
func Int32(_ winrt.Platform, raw uintptr) (int32, error) {
	return int32(uint32(raw)), nil
}

// Uint32 reads a 32-bit unsigned argument passed by value.
func Uint32(_ winrt.Platform, raw uintptr) (uint32, error) {
	return uint32(raw), nil
}

// Int64 reads a 64-bit signed argument passed by value.
func Int64(_ winrt.Platform, raw uintptr) (int64, error) {
	return int64(raw), nil
}

// Bool reads a boolean argument. Any nonzero low byte is true.
func Bool(_ winrt.Platform, raw uintptr) (bool, error) {
	return uint8(raw) != 0, nil
}

// Pointer passes the raw address through.
func Pointer(_ winrt.Platform, raw uintptr) (uintptr, error) {
	return raw, nil
}

// String copies a borrowed string handle. The null handle is "".
func String(p winrt.Platform, raw uintptr) (string, error) {
	return hstring.Read(p, raw)
}

// Object returns an unmarshaler that takes a new reference to a borrowed
// interface pointer. The handler owns the result and must release it. A
// null pointer yields nil.
func Object(s *abi.Schema) Unmarshaler[*abi.Object] {
	return func(p winrt.Platform, raw uintptr) (*abi.Object, error) {
		if raw == 0 {
			return nil, nil
		}
		return abi.FromBorrowed(p, nil, raw, s)
	}
}

// Pair is the payload of a two-argument event.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Triple is the payload of a three-argument event.
type Triple[A, B, C any] struct {
	First  A
	Second B
	Third  C
}

// Decoder turns the raw Invoke arguments of one event into its payload.
type Decoder[T any] struct {
	Arity  int
	Decode func(p winrt.Platform, args []uintptr) (T, error)
}

func (d Decoder[T]) decode(p winrt.Platform, args []uintptr) (T, error) {
	if len(args) != d.Arity {
		var zero T
		return zero, errors.Argument(errors.PhaseEvent, "event takes %d arguments, got %d", d.Arity, len(args))
	}
	return d.Decode(p, args)
}

// Args0 decodes an event without arguments.
func Args0() Decoder[struct{}] {
	return Decoder[struct{}]{
		Decode: func(winrt.Platform, []uintptr) (struct{}, error) { return struct{}{}, nil },
	}
}

// Args1 decodes a one-argument event.
func Args1[A any](a Unmarshaler[A]) Decoder[A] {
	return Decoder[A]{
		Arity: 1,
		Decode: func(p winrt.Platform, args []uintptr) (A, error) {
			return a(p, args[0])
		},
	}
}

// Args2 decodes a two-argument event.
func Args2[A, B any](a Unmarshaler[A], b Unmarshaler[B]) Decoder[Pair[A, B]] {
	return Decoder[Pair[A, B]]{
		Arity: 2,
		Decode: func(p winrt.Platform, args []uintptr) (Pair[A, B], error) {
			var out Pair[A, B]
			var err error
			if out.First, err = a(p, args[0]); err != nil {
				return out, err
			}
			out.Second, err = b(p, args[1])
			return out, err
		},
	}
}

// Args3 decodes a three-argument event.
func Args3[A, B, C any](a Unmarshaler[A], b Unmarshaler[B], c Unmarshaler[C]) Decoder[Triple[A, B, C]] {
	return Decoder[Triple[A, B, C]]{
		Arity: 3,
		Decode: func(p winrt.Platform, args []uintptr) (Triple[A, B, C], error) {
			var out Triple[A, B, C]
			var err error
			if out.First, err = a(p, args[0]); err != nil {
				return out, err
			}
			if out.Second, err = b(p, args[1]); err != nil {
				return out, err
			}
			out.Third, err = c(p, args[2])
			return out, err
		},
	}
}

// Sent decodes the TypedEventHandler shape (sender, args) into args
// alone. The sender is checked by the bridge, not decoded.
func Sent[A any](a Unmarshaler[A]) Decoder[A] {
	return Decoder[A]{
		Arity: 2,
		Decode: func(p winrt.Platform, args []uintptr) (A, error) {
			return a(p, args[1])
		},
	}
}
