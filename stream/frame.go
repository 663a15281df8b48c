package stream

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/statecontext/protocol"
)

// Frame is one message on a stream together with its correlation ID.
type Frame struct {
	CorrelationID string
	Type          protocol.MessageType
	Payload       []byte
	Timestamp     time.Time
}

func NewFrame(kind protocol.MessageType, payload []byte) *Frame {
	return &Frame{
		CorrelationID: generateID(),
		Type:          kind,
		Payload:       payload,
		Timestamp:     time.Now(),
	}
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{ID: %s, Type: %s, Size: %d}", f.CorrelationID, f.Type, len(f.Payload))
}

func generateID() string {
	return uuid.Must(uuid.NewV7()).String()
}
