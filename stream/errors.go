package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout is returned by Future.Await when the wait elapses first.
	ErrTimeout = errors.New("wait timed out")
	// ErrInterrupted is returned by Future.Await when the caller's context ends.
	ErrInterrupted = errors.New("wait interrupted")
	// ErrClosed fails exchanges on a stream that has shut down.
	ErrClosed = errors.New("stream closed")
	// ErrNoReply is returned by a Handler to leave the request unanswered.
	ErrNoReply = errors.New("no reply")
	// ErrUnknownMessageType rejects kinds the stream cannot carry.
	ErrUnknownMessageType = errors.New("unknown message type")
)

// ExecutionError reports that the exchange itself failed while producing the
// reply, as opposed to the caller giving up on it.
type ExecutionError struct {
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %v", e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}
