// Package protocol defines the state context wire messages exchanged with the
// remote context manager: GET and SET requests scoped to a context ID and their
// responses. Messages encode to the protobuf wire format of the validator's
// state_context.proto so they interoperate with existing services.
package protocol

import "fmt"

// MessageType distinguishes request and response kinds at the framing level.
type MessageType int32

const (
	MessageTypeUnset       MessageType = 0
	MessageTypeGetRequest  MessageType = 4003
	MessageTypeGetResponse MessageType = 4004
	MessageTypeSetRequest  MessageType = 4005
	MessageTypeSetResponse MessageType = 4006
)

func (t MessageType) String() string {
	switch t {
	case MessageTypeGetRequest:
		return "TP_STATE_GET_REQUEST"
	case MessageTypeGetResponse:
		return "TP_STATE_GET_RESPONSE"
	case MessageTypeSetRequest:
		return "TP_STATE_SET_REQUEST"
	case MessageTypeSetResponse:
		return "TP_STATE_SET_RESPONSE"
	case MessageTypeUnset:
		return "DEFAULT"
	default:
		return fmt.Sprintf("MessageType(%d)", int32(t))
	}
}

// ResponseType returns the reply kind paired with a request kind.
func (t MessageType) ResponseType() (MessageType, bool) {
	switch t {
	case MessageTypeGetRequest:
		return MessageTypeGetResponse, true
	case MessageTypeSetRequest:
		return MessageTypeSetResponse, true
	default:
		return MessageTypeUnset, false
	}
}

// Status is reported by the context manager alongside GET and SET responses.
type Status int32

const (
	StatusUnset              Status = 0
	StatusOK                 Status = 1
	StatusAuthorizationError Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusUnset:
		return "STATUS_UNSET"
	case StatusOK:
		return "OK"
	case StatusAuthorizationError:
		return "AUTHORIZATION_ERROR"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Entry is one address/data pair.
type Entry struct {
	Address string
	Data    []byte
}

// GetRequest asks for the values stored at Addresses within ContextID.
type GetRequest struct {
	ContextID string
	Addresses []string
}

// GetResponse carries one Entry per address the context holds a value for.
type GetResponse struct {
	Entries []Entry
	Status  Status
}

// SetRequest writes Entries within ContextID.
type SetRequest struct {
	ContextID string
	Entries   []Entry
}

// SetResponse lists the addresses the context manager actually wrote.
type SetResponse struct {
	Addresses []string
	Status    Status
}
