// Package errors provides structured error types for the winrt-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type carries the subject name, the native status code
// and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseCall, errors.KindNativeCallFailed).
//		Name("IActivationFactory.ActivateInstance").
//		HResult(hr).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Check(errors.PhaseCall, "IUriRuntimeClass.get_Host", hr)
//	err := errors.InterfaceNotSupported(iid.String(), hr)
//
// Kinds are matched with the standard library:
//
//	if errors.Is(err, errors.ErrInterfaceNotSupported) { ... }
//
// # Status Codes
//
// HResult models the ABI status convention. HResultOf maps a Go error back to
// a status code so callbacks never let a Go error or panic cross into native
// code.
//
// # Contract Violations
//
// Over-release and leaked callback bridges are not recoverable conditions.
// They are reported through Fatal, which panics unless a FatalHandler has
// been installed with SetFatalHandler.
package errors
