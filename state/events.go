package state

import "github.com/tailored-agentic-units/statecontext/observability"

// Accessor event types.
const (
	EventGetStart    observability.EventType = "state.get.start"
	EventGetComplete observability.EventType = "state.get.complete"
	EventSetStart    observability.EventType = "state.set.start"
	EventSetComplete observability.EventType = "state.set.complete"
	EventWaitRetry   observability.EventType = "state.wait.retry"
	EventError       observability.EventType = "state.error"
)
