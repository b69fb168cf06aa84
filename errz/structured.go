// Package errz defines the error taxonomy of the call-frame subsystem.
//
// User-domain errors (ErrType) travel through the normal exception path and
// may be handled by the caller. Invariant violations (ErrInternal) indicate a
// compiler or runtime bug and are raised with panic. Resource exhaustion
// (ErrMemory) is never retried.
package errz

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind represents the category of an error. An ErrorKind is itself an
// error so it can be used as an errors.Is target:
//
//	if errors.Is(err, errz.ErrInvalidFrame) { ... }
type ErrorKind int

const (
	// ErrType indicates an argument of the wrong type, such as non-mapping
	// globals passed at frame creation.
	ErrType ErrorKind = iota + 1
	// ErrRuntime indicates an operation that is not allowed in the current
	// state, such as clearing an executing frame.
	ErrRuntime
	// ErrInvalidFrame indicates use of a frame that has been finalized.
	ErrInvalidFrame
	// ErrMemory indicates that frame storage could not be allocated.
	ErrMemory
	// ErrRecursion indicates that the call chain is too deep.
	ErrRecursion
	// ErrInternal indicates a violated runtime invariant.
	ErrInternal
)

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrType:
		return "type error"
	case ErrRuntime:
		return "runtime error"
	case ErrInvalidFrame:
		return "invalid frame"
	case ErrMemory:
		return "memory error"
	case ErrRecursion:
		return "recursion error"
	case ErrInternal:
		return "internal error"
	default:
		return "error"
	}
}

// Error implements the error interface.
func (k ErrorKind) Error() string {
	return k.String()
}

// SourceLocation identifies a line in a source file.
type SourceLocation struct {
	Filename string
	Line     int
	Column   int
}

// String returns a formatted string representation of the source location.
func (s SourceLocation) String() string {
	var b strings.Builder
	if s.Filename != "" {
		b.WriteString(s.Filename)
		b.WriteString(":")
	}
	fmt.Fprintf(&b, "%d", s.Line)
	if s.Column > 0 {
		fmt.Fprintf(&b, ":%d", s.Column)
	}
	return b.String()
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Filename == "" && s.Line == 0 && s.Column == 0
}

// StackFrame represents a single frame in a call chain.
type StackFrame struct {
	Function string
	Location SourceLocation
}

// String returns a formatted string representation of the stack frame.
func (f StackFrame) String() string {
	if f.Function != "" {
		return fmt.Sprintf("at %s (%s)", f.Function, f.Location.String())
	}
	return fmt.Sprintf("at %s", f.Location.String())
}

// FormatStackTrace formats stack frames, innermost first, as a human-readable
// string.
func FormatStackTrace(frames []StackFrame) string {
	if len(frames) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Stack trace:\n")
	for _, frame := range frames {
		b.WriteString("  ")
		b.WriteString(frame.String())
		b.WriteString("\n")
	}
	return b.String()
}

// StructuredError is an error with a kind, an optional location and the
// call chain active when it was raised.
type StructuredError struct {
	Message  string
	Kind     ErrorKind
	Location SourceLocation
	Stack    []StackFrame
	Cause    error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("%s: %s", e.Kind.String(), e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Kind.String(), e.Message, e.Location)
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is this error's kind.
func (e *StructuredError) Is(target error) bool {
	kind, ok := target.(ErrorKind)
	return ok && kind == e.Kind
}

// IsFatal returns whether the error is considered fatal (unrecoverable).
func (e *StructuredError) IsFatal() bool {
	switch e.Kind {
	case ErrInternal, ErrMemory:
		return true
	default:
		return false
	}
}

// FriendlyErrorMessage returns the error message followed by a stack trace.
func (e *StructuredError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	msg.WriteString(e.Error())
	msg.WriteString("\n")
	if len(e.Stack) > 0 {
		msg.WriteString("\n")
		msg.WriteString(FormatStackTrace(e.Stack))
	}
	return msg.String()
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// WithStack attaches a call chain to the error.
func (e *StructuredError) WithStack(stack []StackFrame) *StructuredError {
	e.Stack = stack
	return e
}

// WithLocation attaches a source location to the error.
func (e *StructuredError) WithLocation(loc SourceLocation) *StructuredError {
	e.Location = loc
	return e
}

// Errorf creates a new StructuredError with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *StructuredError {
	return &StructuredError{
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
	}
}

// TypeErrorf creates an ErrType error.
func TypeErrorf(format string, args ...any) *StructuredError {
	return Errorf(ErrType, format, args...)
}

// RuntimeErrorf creates an ErrRuntime error.
func RuntimeErrorf(format string, args ...any) *StructuredError {
	return Errorf(ErrRuntime, format, args...)
}

// InvalidFramef creates an ErrInvalidFrame error.
func InvalidFramef(format string, args ...any) *StructuredError {
	return Errorf(ErrInvalidFrame, format, args...)
}

// Panicf raises an ErrInternal error. It is used for invariant violations
// that the compiler guarantees cannot happen, such as block-stack overflow.
func Panicf(format string, args ...any) {
	panic(Errorf(ErrInternal, format, args...))
}

// KindOf returns the kind of err, or 0 if err is not a StructuredError.
func KindOf(err error) ErrorKind {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsFatal returns true if err, or any error it wraps, is fatal.
func IsFatal(err error) bool {
	var se *StructuredError
	return errors.As(err, &se) && se.IsFatal()
}

// Recover converts a panic carrying a *StructuredError, such as one raised by
// Panicf, into an error stored in errp. Other panics are re-raised. Use it with defer at API boundaries:
//
//	defer errz.Recover(&err)
func Recover(errp *error) {
	r := recover()
	if r == nil {
		return
	}
	if se, ok := r.(*StructuredError); ok {
		*errp = se
		return
	}
	panic(r)
}
