// Package event defines the server-to-client event vocabulary.
// Event names are the wire contract, renaming one breaks deployed clients.
package event

import (
	"encoding/json"
	"time"

	"quantum-relay/domain"

	"github.com/google/uuid"
)

// DomainEvent is anything the relay can push to a connected client.
type DomainEvent interface {
	Name() string
}

type NewMessage struct {
	Message domain.Message `json:"message"`
}

func (NewMessage) Name() string { return "new_message" }

// MessageDelivered is the acknowledgement returned to the sender,
// distinct from the room fan-out.
type MessageDelivered struct {
	MessageID uuid.UUID `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

func (MessageDelivered) Name() string { return "message_delivered" }

type UserTyping struct {
	UserID   string        `json:"userId"`
	Room     domain.RoomID `json:"room_id"`
	IsTyping bool          `json:"isTyping"`
}

func (UserTyping) Name() string { return "user_typing" }

type MessageRead struct {
	MessageID uuid.UUID `json:"messageId"`
	ReadBy    string    `json:"readBy"`
	Timestamp time.Time `json:"timestamp"`
}

func (MessageRead) Name() string { return "message_read" }

type UserStatusChange struct {
	UserID   string    `json:"userId"`
	IsOnline bool      `json:"isOnline"`
	LastSeen time.Time `json:"lastSeen"`
}

func (UserStatusChange) Name() string { return "user_status_change" }

type CallSignal struct {
	FromUserID string          `json:"fromUserId"`
	Signal     json.RawMessage `json:"signal"`
	Type       string          `json:"type"`
}

func (CallSignal) Name() string { return "call_signal" }
