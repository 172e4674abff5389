package hstring

import (
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"

	winrt "github.com/wippyai/winrt-runtime"
	"github.com/wippyai/winrt-runtime/errors"
)

// Host is the slice of the platform a string handle needs.
type Host interface {
	winrt.Memory
	winrt.Allocator
	winrt.StringAPI
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// Encode converts s to UTF-16LE code units.
func Encode(s string) ([]byte, error) {
	b, err := utf16le.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, errors.Wrap(errors.PhaseString, errors.KindInvalidInput, err, "utf-16 encode")
	}
	return b, nil
}

// Decode converts UTF-16LE code units to a Go string.
func Decode(b []byte) (string, error) {
	out, err := utf16le.NewDecoder().Bytes(b)
	if err != nil {
		return "", errors.Wrap(errors.PhaseString, errors.KindInvalidInput, err, "utf-16 decode")
	}
	return string(out), nil
}

// String owns one native string handle. The zero handle is the empty string.
type String struct {
	host   Host
	handle uintptr
	closed atomic.Bool
}

// New creates a native string holding a copy of s.
func New(h Host, s string) (*String, error) {
	if s == "" {
		return &String{host: h}, nil
	}
	units, err := Encode(s)
	if err != nil {
		return nil, err
	}

	buf, err := h.Alloc(uintptr(len(units))+2, 2)
	if err != nil {
		return nil, err
	}
	defer h.Free(buf)

	if err := h.Write(buf, append(units, 0, 0)); err != nil {
		return nil, err
	}

	handle, status := h.CreateString(buf, uint32(len(units)/2))
	if err := errors.Check(errors.PhaseString, "WindowsCreateString", errors.HResult(status)); err != nil {
		return nil, err
	}
	Logger().Debug("created string", zap.Uintptr("handle", handle), zap.Int("length", len(units)/2))
	return &String{host: h, handle: handle}, nil
}

// Attach takes ownership of a handle returned by a native call.
func Attach(h Host, handle uintptr) *String {
	return &String{host: h, handle: handle}
}

// Handle returns the raw handle. It stays valid until Close.
func (s *String) Handle() uintptr {
	return s.handle
}

// Duplicate returns an independently owned handle to the same contents.
func (s *String) Duplicate() (*String, error) {
	if s.closed.Load() {
		return nil, errors.Closed(errors.PhaseString, "string")
	}
	if s.handle == 0 {
		return &String{host: s.host}, nil
	}
	dup, status := s.host.DuplicateString(s.handle)
	if err := errors.Check(errors.PhaseString, "WindowsDuplicateString", errors.HResult(status)); err != nil {
		return nil, err
	}
	return &String{host: s.host, handle: dup}, nil
}

// Value decodes the handle's contents.
func (s *String) Value() (string, error) {
	if s.closed.Load() {
		return "", errors.Closed(errors.PhaseString, "string")
	}
	return Read(s.host, s.handle)
}

// Close deletes the handle. Closing twice is a no-op.
func (s *String) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.handle == 0 {
		return nil
	}
	status := s.host.DeleteString(s.handle)
	return errors.Check(errors.PhaseString, "WindowsDeleteString", errors.HResult(status))
}

// Read decodes a handle the caller does not own.
func Read(h Host, handle uintptr) (string, error) {
	if handle == 0 {
		return "", nil
	}
	buf, n := h.GetStringRawBuffer(handle)
	if n == 0 {
		return "", nil
	}
	raw, err := h.Read(buf, uintptr(n)*2)
	if err != nil {
		return "", err
	}
	return Decode(raw)
}

// Reference is a zero-copy string handle over caller-held memory. The
// platform does not copy the characters; the handle is valid until Close.
type Reference struct {
	host   Host
	buf    uintptr
	header uintptr
	handle uintptr
	closed atomic.Bool
}

// NewReference places s in pinned memory and builds a reference handle over
// it together with its opaque header.
func NewReference(h Host, s string) (*Reference, error) {
	if s == "" {
		return &Reference{host: h}, nil
	}
	units, err := Encode(s)
	if err != nil {
		return nil, err
	}

	buf, err := h.Alloc(uintptr(len(units))+2, 2)
	if err != nil {
		return nil, err
	}
	if err := h.Write(buf, append(units, 0, 0)); err != nil {
		h.Free(buf)
		return nil, err
	}
	header, err := h.Alloc(winrt.HeaderSize, 8)
	if err != nil {
		h.Free(buf)
		return nil, err
	}

	handle, status := h.CreateStringReference(buf, uint32(len(units)/2), header)
	if err := errors.Check(errors.PhaseString, "WindowsCreateStringReference", errors.HResult(status)); err != nil {
		h.Free(header)
		h.Free(buf)
		return nil, err
	}
	return &Reference{host: h, buf: buf, header: header, handle: handle}, nil
}

// Handle returns the raw handle.
func (r *Reference) Handle() uintptr {
	return r.handle
}

// Value decodes the referenced characters.
func (r *Reference) Value() (string, error) {
	return Read(r.host, r.handle)
}

// Close releases the pinned buffer and header. References are never passed
// to DeleteString.
func (r *Reference) Close() {
	if !r.closed.CompareAndSwap(false, true) || r.handle == 0 {
		return
	}
	r.host.Free(r.header)
	r.host.Free(r.buf)
	r.handle = 0
}
