package stream

import "github.com/tailored-agentic-units/statecontext/observability"

const (
	EventSend         observability.EventType = "stream.send"
	EventReply        observability.EventType = "stream.reply"
	EventReplyDropped observability.EventType = "stream.reply.dropped"
	EventClosed       observability.EventType = "stream.closed"
)
