package state

import "errors"

// ErrInternal matches every error returned by Accessor operations.
var ErrInternal = errors.New("internal error")

// InternalError is the only error kind Get and Set return. Message describes
// the originating cause, whether the wait timed out twice, was interrupted,
// the exchange failed, or the reply could not be decoded. Callers cannot
// reliably tell these apart and should treat any InternalError as a failed
// state operation.
type InternalError struct {
	Message string
	Err     error
}

func (e *InternalError) Error() string {
	return "internal error: " + e.Message
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

func (e *InternalError) Is(target error) bool {
	return target == ErrInternal
}

func newInternalError(err error) *InternalError {
	return &InternalError{Message: err.Error(), Err: err}
}
