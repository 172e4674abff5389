package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCall       Phase = "call"       // native entry point invocation
	PhaseQuery      Phase = "query"      // query-for-interface
	PhaseRelease    Phase = "release"    // reference count teardown
	PhaseLoad       Phase = "load"       // module loading
	PhaseActivate   Phase = "activate"   // activation factory resolution
	PhaseCallback   Phase = "callback"   // native to host invocation
	PhaseEvent      Phase = "event"      // event subscription
	PhaseString     Phase = "string"     // string handle operations
	PhaseMemory     Phase = "memory"     // native memory access
	PhaseSignature  Phase = "signature"  // interface identity generation
	PhaseConfig     Phase = "config"     // configuration loading
	PhaseValidate   Phase = "validate"   // schema validation
	PhasePlatform   Phase = "platform"   // platform setup
	PhaseDispatch   Phase = "dispatch"   // vtable slot lookup
	PhaseResolution Phase = "resolution" // type expression parsing
)

// Kind categorizes the error
type Kind string

const (
	KindNativeCallFailed          Kind = "native_call_failed"
	KindModuleLoadFailed          Kind = "module_load_failed"
	KindActivationFactoryNotFound Kind = "activation_factory_not_found"
	KindInterfaceNotSupported     Kind = "interface_not_supported"
	KindOverRelease               Kind = "over_release"
	KindLeaked                    Kind = "leaked"
	KindArgument                  Kind = "argument"
	KindInvalidInput              Kind = "invalid_input"
	KindNotFound                  Kind = "not_found"
	KindOutOfBounds               Kind = "out_of_bounds"
	KindUnsupported               Kind = "unsupported"
	KindClosed                    Kind = "closed"
	KindAllocation                Kind = "allocation"
	KindPanic                     Kind = "panic"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Cause   error
	Phase   Phase
	Kind    Kind
	Name    string // type, module, slot or interface the error is about
	Detail  string
	HResult HResult
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" ")
		b.WriteString(e.Name)
	}

	if e.HResult != 0 {
		b.WriteString(" (")
		b.WriteString(e.HResult.String())
		b.WriteByte(')')
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. Kinds must match; a target
// with a Phase only matches errors from that phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || e.Phase == t.Phase
}

// Sentinels for errors.Is checks against the taxonomy.
var (
	ErrNativeCallFailed          = &Error{Kind: KindNativeCallFailed}
	ErrModuleLoadFailed          = &Error{Kind: KindModuleLoadFailed}
	ErrActivationFactoryNotFound = &Error{Kind: KindActivationFactoryNotFound}
	ErrInterfaceNotSupported     = &Error{Kind: KindInterfaceNotSupported}
	ErrOverRelease               = &Error{Kind: KindOverRelease}
	ErrLeaked                    = &Error{Kind: KindLeaked}
	ErrArgument                  = &Error{Kind: KindArgument}
	ErrClosed                    = &Error{Kind: KindClosed}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrPanic                     = &Error{Kind: KindPanic}
	ErrUnsupported               = &Error{Kind: KindUnsupported}
	ErrInvalidInput              = &Error{Kind: KindInvalidInput}
	ErrOutOfBounds               = &Error{Kind: KindOutOfBounds}
)

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Name sets the subject of the error
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// HResult sets the native status code
func (b *Builder) HResult(hr HResult) *Builder {
	b.err.HResult = hr
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// NativeCallFailed creates an error for a failing status returned by an entry point
func NativeCallFailed(phase Phase, name string, hr HResult) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindNativeCallFailed,
		Name:    name,
		HResult: hr,
	}
}

// Check converts a native status into an error. Successful statuses yield nil.
func Check(phase Phase, name string, hr HResult) error {
	if !hr.Failed() {
		return nil
	}
	return NativeCallFailed(phase, name, hr)
}

// ModuleLoadFailed creates a module load error carrying the platform code
func ModuleLoadFailed(name string, hr HResult, cause error) *Error {
	return &Error{
		Phase:   PhaseLoad,
		Kind:    KindModuleLoadFailed,
		Name:    name,
		HResult: hr,
		Cause:   cause,
	}
}

// ActivationFactoryNotFound creates an error for an exhausted resolution
func ActivationFactoryNotFound(typeName string, cause error) *Error {
	return &Error{
		Phase:   PhaseActivate,
		Kind:    KindActivationFactoryNotFound,
		Name:    typeName,
		HResult: ClassNotRegistered,
		Detail:  "no module or broker produced a factory",
		Cause:   cause,
	}
}

// InterfaceNotSupported creates an error for a failed query-for-interface call
func InterfaceNotSupported(iid string, hr HResult) *Error {
	return &Error{
		Phase:   PhaseQuery,
		Kind:    KindInterfaceNotSupported,
		Name:    iid,
		HResult: hr,
	}
}

// OverRelease creates an error for a reference count driven below zero
func OverRelease(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverRelease,
		Name:   what,
		Detail: "released more times than referenced",
	}
}

// Leaked creates an error for a bridge torn down while still referenced
func Leaked(what string, refs int32) *Error {
	return &Error{
		Phase:  PhaseRelease,
		Kind:   KindLeaked,
		Name:   what,
		Detail: fmt.Sprintf("torn down with %d outstanding references", refs),
	}
}

// Argument creates an argument error
func Argument(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindArgument,
		HResult: EInvalidArg,
		Detail:  fmt.Sprintf(detail, args...),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Name:   name,
		Detail: fmt.Sprintf("%s not found", what),
	}
}

// OutOfBounds creates an out of bounds error for a memory access
func OutOfBounds(addr, length uintptr) *Error {
	return &Error{
		Phase:   PhaseMemory,
		Kind:    KindOutOfBounds,
		HResult: EPointer,
		Detail:  fmt.Sprintf("access of %d bytes at %#x outside mapped memory", length, addr),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindUnsupported,
		HResult: ENotImpl,
		Detail:  what,
	}
}

// Closed creates an error for use after teardown
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindClosed,
		Name:    what,
		HResult: ROClosed,
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size, align uintptr) *Error {
	return &Error{
		Phase:   PhaseMemory,
		Kind:    KindAllocation,
		HResult: EOutOfMemory,
		Detail:  fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// Panic creates an error for a host panic recovered at the native boundary
func Panic(phase Phase, name string, value any) *Error {
	if err, ok := value.(error); ok {
		return &Error{
			Phase:   phase,
			Kind:    KindPanic,
			Name:    name,
			HResult: EFail,
			Detail:  "recovered panic",
			Cause:   err,
		}
	}
	return &Error{
		Phase:   phase,
		Kind:    KindPanic,
		Name:    name,
		HResult: EFail,
		Detail:  fmt.Sprintf("recovered panic: %v", value),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}
