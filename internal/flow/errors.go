package flow

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by Manager and Controller wraps one of
// these and can be matched with errors.Is.
var (
	ErrInvalidState             = errors.New("invalid state")
	ErrInvalidTransition        = errors.New("invalid transition")
	ErrInvalidContextUpdate     = errors.New("invalid context update")
	ErrInvalidSerializationData = errors.New("invalid serialization data")
	ErrIllegalLifecycle         = errors.New("illegal lifecycle transition")
	ErrMissingHandler           = errors.New("missing step handler")
)

// Error carries a kind plus the human-readable message.
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Kind }

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
