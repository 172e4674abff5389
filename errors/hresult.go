package errors

import (
	stderrors "errors"
	"fmt"
)

// HResult is a native status code. The high bit marks failure.
type HResult uint32

const (
	OK                 HResult = 0x00000000
	False              HResult = 0x00000001
	ENotImpl           HResult = 0x80004001
	ENoInterface       HResult = 0x80004002
	EPointer           HResult = 0x80004003
	EAbort             HResult = 0x80004004
	EFail              HResult = 0x80004005
	EUnexpected        HResult = 0x8000FFFF
	EBounds            HResult = 0x8000000B
	EIllegalMethodCall HResult = 0x8000000E
	ROClosed           HResult = 0x80000013
	ClassNotAvailable  HResult = 0x80040111
	ClassNotRegistered HResult = 0x80040154
	EAccessDenied      HResult = 0x80070005
	EOutOfMemory       HResult = 0x8007000E
	EInvalidArg        HResult = 0x80070057
	ModuleNotFound     HResult = 0x8007007E
	ProcNotFound       HResult = 0x8007007F
)

var names = map[HResult]string{
	OK:                 "S_OK",
	False:              "S_FALSE",
	ENotImpl:           "E_NOTIMPL",
	ENoInterface:       "E_NOINTERFACE",
	EPointer:           "E_POINTER",
	EAbort:             "E_ABORT",
	EFail:              "E_FAIL",
	EUnexpected:        "E_UNEXPECTED",
	EBounds:            "E_BOUNDS",
	EIllegalMethodCall: "E_ILLEGAL_METHOD_CALL",
	ROClosed:           "RO_E_CLOSED",
	ClassNotAvailable:  "CLASS_E_CLASSNOTAVAILABLE",
	ClassNotRegistered: "REGDB_E_CLASSNOTREG",
	EAccessDenied:      "E_ACCESSDENIED",
	EOutOfMemory:       "E_OUTOFMEMORY",
	EInvalidArg:        "E_INVALIDARG",
	ModuleNotFound:     "ERROR_MOD_NOT_FOUND",
	ProcNotFound:       "ERROR_PROC_NOT_FOUND",
}

// Failed reports whether the status has the severity bit set.
func (hr HResult) Failed() bool {
	return hr&0x80000000 != 0
}

func (hr HResult) String() string {
	if n, ok := names[hr]; ok {
		return fmt.Sprintf("%s %#08x", n, uint32(hr))
	}
	return fmt.Sprintf("%#08x", uint32(hr))
}

// FromWin32 maps a Win32 error code into the HRESULT facility.
func FromWin32(code uint32) HResult {
	if code == 0 {
		return OK
	}
	if code&0x80000000 != 0 {
		return HResult(code)
	}
	return HResult(code&0x0000FFFF | 0x80070000)
}

// HResultOf maps a host error to the status reported across the native
// boundary. Structured errors keep their own code; anything else is E_FAIL.
func HResultOf(err error) HResult {
	if err == nil {
		return OK
	}
	var e *Error
	if stderrors.As(err, &e) {
		if e.HResult != 0 {
			return e.HResult
		}
		switch e.Kind {
		case KindArgument, KindInvalidInput:
			return EInvalidArg
		case KindInterfaceNotSupported:
			return ENoInterface
		case KindClosed:
			return ROClosed
		case KindUnsupported:
			return ENotImpl
		case KindOutOfBounds:
			return EBounds
		}
	}
	var coded interface{ HResult() HResult }
	if stderrors.As(err, &coded) {
		return coded.HResult()
	}
	return EFail
}
