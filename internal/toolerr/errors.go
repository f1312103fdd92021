// Package toolerr implements the error taxonomy tool handlers and the
// registry use to decide whether a failure is reported back to the model or
// aborts the turn (spec §7).
package toolerr

import "fmt"

// Kind classifies a tool failure.
type Kind string

const (
	Validation Kind = "validation"
	NotFound   Kind = "not_found"
	Permission Kind = "permission"
	Transient  Kind = "transient"
	Timeout    Kind = "timeout"
	Cancelled  Kind = "cancelled"
	Sandbox    Kind = "sandbox"
	System     Kind = "system"
	Protocol   Kind = "protocol"
)

// Disposition is what the scheduler/registry does with a classified error.
type Disposition string

const (
	RespondToModel Disposition = "respond_to_model"
	Fatal          Disposition = "fatal"
)

// Error is the typed error every handler must produce instead of an
// unclassified error value.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func new_(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Newf(kind Kind, format string, args ...interface{}) *Error {
	return new_(kind, format, args...)
}

func Wrap(kind Kind, cause error, format string, args ...interface{}) *Error {
	e := new_(kind, format, args...)
	e.Cause = cause
	return e
}

func ValidationErr(format string, args ...interface{}) *Error { return new_(Validation, format, args...) }
func NotFoundErr(format string, args ...interface{}) *Error   { return new_(NotFound, format, args...) }
func PermissionErr(format string, args ...interface{}) *Error { return new_(Permission, format, args...) }
func TransientErr(format string, args ...interface{}) *Error  { return new_(Transient, format, args...) }
func TimeoutErr(format string, args ...interface{}) *Error    { return new_(Timeout, format, args...) }
func CancelledErr(format string, args ...interface{}) *Error  { return new_(Cancelled, format, args...) }
func SandboxErr(format string, args ...interface{}) *Error    { return new_(Sandbox, format, args...) }
func SystemErr(format string, args ...interface{}) *Error     { return new_(System, format, args...) }
func ProtocolErr(format string, args ...interface{}) *Error   { return new_(Protocol, format, args...) }

// Classify maps a Kind to its scheduler disposition per the §7 table.
func Classify(err error) Disposition {
	te, ok := err.(*Error)
	if !ok {
		return Fatal
	}
	switch te.Kind {
	case Validation, NotFound, Permission, Transient, Timeout, Cancelled:
		return RespondToModel
	default: // Sandbox, System, Protocol
		return Fatal
	}
}

// As reports whether err is a *Error and returns it.
func As(err error) (*Error, bool) {
	te, ok := err.(*Error)
	return te, ok
}
