package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:   PhaseCall,
				Kind:    KindNativeCallFailed,
				Name:    "IActivationFactory.ActivateInstance",
				HResult: EFail,
				Detail:  "activation refused",
			},
			contains: []string{"[call]", "native_call_failed", "IActivationFactory.ActivateInstance", "E_FAIL", "0x80004005", "activation refused"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseQuery,
				Kind:  KindInterfaceNotSupported,
			},
			contains: []string{"[query]", "interface_not_supported"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindModuleLoadFailed,
				Detail: "library missing",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "module_load_failed", "library missing", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindModuleLoadFailed,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause through Unwrap")
	}
}

func TestError_Is(t *testing.T) {
	err := InterfaceNotSupported("{00000000-0000-0000-c000-000000000046}", ENoInterface)

	if !errors.Is(err, ErrInterfaceNotSupported) {
		t.Error("error should match kind sentinel")
	}
	if errors.Is(err, ErrNativeCallFailed) {
		t.Error("error should not match a different kind")
	}
	if !errors.Is(err, &Error{Phase: PhaseQuery, Kind: KindInterfaceNotSupported}) {
		t.Error("error should match kind with same phase")
	}
	if errors.Is(err, &Error{Phase: PhaseCall, Kind: KindInterfaceNotSupported}) {
		t.Error("error should not match kind with different phase")
	}

	wrapped := fmt.Errorf("cast: %w", err)
	if !errors.Is(wrapped, ErrInterfaceNotSupported) {
		t.Error("wrapped error should still match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("cause")
	err := New(PhaseCall, KindNativeCallFailed).
		Name("IFoo.Bar").
		HResult(EInvalidArg).
		Detail("slot %d", 7).
		Cause(cause).
		Build()

	if err.Phase != PhaseCall {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseCall)
	}
	if err.Kind != KindNativeCallFailed {
		t.Errorf("Kind = %v, want %v", err.Kind, KindNativeCallFailed)
	}
	if err.Name != "IFoo.Bar" {
		t.Errorf("Name = %q", err.Name)
	}
	if err.HResult != EInvalidArg {
		t.Errorf("HResult = %v", err.HResult)
	}
	if err.Detail != "slot 7" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if err.Cause != cause {
		t.Error("Cause not set")
	}
}

func TestCheck(t *testing.T) {
	if err := Check(PhaseCall, "ok", OK); err != nil {
		t.Errorf("Check(S_OK) = %v", err)
	}
	if err := Check(PhaseCall, "false", False); err != nil {
		t.Errorf("Check(S_FALSE) = %v", err)
	}

	err := Check(PhaseCall, "IFoo.Bar", EFail)
	if err == nil {
		t.Fatal("Check(E_FAIL) returned nil")
	}
	if !errors.Is(err, ErrNativeCallFailed) {
		t.Errorf("Check(E_FAIL) kind mismatch: %v", err)
	}
	var e *Error
	if !errors.As(err, &e) || e.HResult != EFail {
		t.Errorf("Check(E_FAIL) lost status code: %v", err)
	}
}

func TestHResult(t *testing.T) {
	tests := []struct {
		hr     HResult
		failed bool
		name   string
	}{
		{OK, false, "S_OK"},
		{False, false, "S_FALSE"},
		{ENoInterface, true, "E_NOINTERFACE"},
		{ClassNotRegistered, true, "REGDB_E_CLASSNOTREG"},
		{HResult(0x80991234), true, "0x80991234"},
	}

	for _, tt := range tests {
		if got := tt.hr.Failed(); got != tt.failed {
			t.Errorf("%v.Failed() = %v, want %v", tt.hr, got, tt.failed)
		}
		if !strings.Contains(tt.hr.String(), tt.name) {
			t.Errorf("%v.String() does not contain %q", tt.hr, tt.name)
		}
	}
}

func TestFromWin32(t *testing.T) {
	if got := FromWin32(0); got != OK {
		t.Errorf("FromWin32(0) = %v", got)
	}
	if got := FromWin32(126); got != ModuleNotFound {
		t.Errorf("FromWin32(126) = %v, want %v", got, ModuleNotFound)
	}
	if got := FromWin32(uint32(EFail)); got != EFail {
		t.Errorf("FromWin32 should pass HRESULTs through, got %v", got)
	}
}

type codedError struct{ hr HResult }

func (c codedError) Error() string     { return "coded" }
func (c codedError) HResult() HResult { return c.hr }

func TestHResultOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want HResult
	}{
		{"nil", nil, OK},
		{"plain", errors.New("boom"), EFail},
		{"structured with code", NativeCallFailed(PhaseCall, "x", EBounds), EBounds},
		{"argument", &Error{Kind: KindArgument}, EInvalidArg},
		{"closed", &Error{Kind: KindClosed}, ROClosed},
		{"wrapped", fmt.Errorf("ctx: %w", InterfaceNotSupported("i", 0)), ENoInterface},
		{"coded", codedError{hr: EAccessDenied}, EAccessDenied},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HResultOf(tt.err); got != tt.want {
				t.Errorf("HResultOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFatal(t *testing.T) {
	t.Run("default panics", func(t *testing.T) {
		defer func() {
			r := recover()
			err, ok := r.(*Error)
			if !ok {
				t.Fatalf("recovered %T, want *Error", r)
			}
			if !errors.Is(err, ErrOverRelease) {
				t.Errorf("recovered %v", err)
			}
		}()
		Fatal(OverRelease(PhaseRelease, "object"))
		t.Fatal("Fatal returned with default handler")
	})

	t.Run("custom handler", func(t *testing.T) {
		var got *Error
		prev := SetFatalHandler(func(e *Error) { got = e })
		defer SetFatalHandler(prev)

		Fatal(Leaked("bridge", 2))
		if got == nil || got.Kind != KindLeaked {
			t.Fatalf("handler got %v", got)
		}
		if !strings.Contains(got.Error(), "2 outstanding") {
			t.Errorf("message %q", got.Error())
		}
	})
}
