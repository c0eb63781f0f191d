package transport

import (
	"encoding/json"

	"quantum-relay/domain/event"
)

// Client frame names. These are the wire contract with deployed clients,
// renaming one breaks them.
const (
	frameJoinChat    = "join_chat"
	frameLeaveChat   = "leave_chat"
	frameSendMessage = "send_message"
	frameTypingStart = "typing_start"
	frameTypingStop  = "typing_stop"
	frameMessageRead = "message_read"
	frameCallSignal  = "call_signal"
)

// Frame is the envelope of every frame in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinPayload struct {
	RoomID string `json:"room_id" validate:"required"`
}

type sendMessagePayload struct {
	RoomID  string          `json:"room_id" validate:"required"`
	Type    string          `json:"type" validate:"required,oneof=text image video audio file"`
	Content contentPayload  `json:"content"`
	ReplyTo string          `json:"replyTo,omitempty"`
}

type contentPayload struct {
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

type messageReadPayload struct {
	MessageID string `json:"message_id" validate:"required,uuid4"`
	RoomID    string `json:"room_id" validate:"required"`
}

type callSignalPayload struct {
	TargetUserID string          `json:"targetUserId" validate:"required"`
	Signal       json.RawMessage `json:"signal" validate:"required"`
	Type         string          `json:"type" validate:"required"`
}

// ErrorEvent is pushed to a client whose own request failed. Fan-out
// failures never produce one.
type ErrorEvent struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (ErrorEvent) Name() string { return "error" }

// encodeEvent wraps a domain event in its envelope.
func encodeEvent(e event.DomainEvent) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: e.Name(), Data: data})
}
