// Package status defines the closed outcome taxonomy shared by every engine.
package status

import "fmt"

// Status is the closed set of outcome kinds every engine operation returns.
type Status int

const (
	OK Status = iota
	NotFound
	StoppedByCB
	UnknownError
	InvalidArgument
	OutOfMemory
	WrongEngineName
	TransactionScopeError
	NotSupported
	ComparatorMismatch
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NotFound:
		return "NOT_FOUND"
	case StoppedByCB:
		return "STOPPED_BY_CB"
	case UnknownError:
		return "UNKNOWN_ERROR"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case OutOfMemory:
		return "OUT_OF_MEMORY"
	case WrongEngineName:
		return "WRONG_ENGINE_NAME"
	case TransactionScopeError:
		return "TRANSACTION_SCOPE_ERROR"
	case NotSupported:
		return "NOT_SUPPORTED"
	case ComparatorMismatch:
		return "COMPARATOR_MISMATCH"
	default:
		return fmt.Sprintf("UNKNOWN_STATUS(%d)", int(s))
	}
}

// Error carries a Status kind plus the human-readable diagnostic that, per
// spec, accompanies every non-OK return. It is the single error type crossing
// every engine-boundary call; programmer-invariant violations panic instead
// of returning an Error.
type Error struct {
	Kind    Status
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Is lets errors.Is(err, status.Sentinel(status.NotFound)) work by comparing
// Kind against the Kind of a target *Error, such as one made by Sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an Error of the given kind with a formatted message.
func New(kind Status, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Sentinel returns a bare Error of kind usable with errors.Is as a target.
func Sentinel(kind Status) *Error {
	return &Error{Kind: kind}
}

// Of extracts the Status carried by err, or UnknownError if err is not a
// *Error (or OK if err is nil).
func Of(err error) Status {
	if err == nil {
		return OK
	}
	if se, ok := err.(*Error); ok {
		return se.Kind
	}
	return UnknownError
}
