package stream

import (
	"context"

	"github.com/tailored-agentic-units/statecontext/protocol"
)

// Stream sends typed payloads and hands back a Future for the reply.
// Implementations must be safe for concurrent use and must correlate each
// reply with the Send that caused it.
type Stream interface {
	Send(ctx context.Context, kind protocol.MessageType, payload []byte) *Future
}

// Handler answers one request on the serving side of a stream. Returning
// ErrNoReply leaves the request unanswered.
type Handler func(ctx context.Context, kind protocol.MessageType, payload []byte) ([]byte, error)
