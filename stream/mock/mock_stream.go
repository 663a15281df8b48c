// Package mock provides a scripted stream.Stream for tests. It records every
// Send and settles the returned Future according to the configured reply.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/tailored-agentic-units/statecontext/protocol"
	"github.com/tailored-agentic-units/statecontext/stream"
)

// Call is one recorded Send.
type Call struct {
	Kind    protocol.MessageType
	Payload []byte
	Future  *stream.Future
}

// Responder decides how a recorded call's Future settles. It may settle it
// synchronously, later, or never.
type Responder func(call Call)

type Stream struct {
	mu        sync.Mutex
	calls     []Call
	responder Responder
}

type Option func(*Stream)

// NewStream returns a Stream that never replies unless an Option says otherwise.
func NewStream(opts ...Option) *Stream {
	s := &Stream{responder: func(Call) {}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithReply resolves every call immediately with payload.
func WithReply(payload []byte) Option {
	return WithResponder(func(call Call) {
		call.Future.Resolve(payload)
	})
}

// WithDelayedReply resolves every call with payload after delay.
func WithDelayedReply(payload []byte, delay time.Duration) Option {
	return WithResponder(func(call Call) {
		time.AfterFunc(delay, func() {
			call.Future.Resolve(payload)
		})
	})
}

// WithFailure fails every call with err.
func WithFailure(err error) Option {
	return WithResponder(func(call Call) {
		call.Future.Fail(err)
	})
}

func WithResponder(responder Responder) Option {
	return func(s *Stream) {
		s.responder = responder
	}
}

func (s *Stream) Send(ctx context.Context, kind protocol.MessageType, payload []byte) *stream.Future {
	call := Call{
		Kind:    kind,
		Payload: slices.Clone(payload),
		Future:  stream.NewFuture(),
	}

	s.mu.Lock()
	s.calls = append(s.calls, call)
	responder := s.responder
	s.mu.Unlock()

	responder(call)
	return call.Future
}

// Calls returns the recorded sends in order.
func (s *Stream) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

func (s *Stream) SendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// LastCall returns the most recent send.
func (s *Stream) LastCall() (Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return Call{}, false
	}
	return s.calls[len(s.calls)-1], true
}
