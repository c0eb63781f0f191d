package domain

import "encoding/json"

// SendCommand is an intent to post a message into a room.
// The relay owns id generation and timestamps, the sender does not.
type SendCommand struct {
	Room     RoomID
	SenderID string
	Type     MessageType
	Content  Content
	ReplyTo  string
}

// ReadCommand marks a message as read by one identity.
type ReadCommand struct {
	Room      RoomID
	MessageID string
	ReaderID  string
}

// TypingCommand is a transient typing indicator, never persisted.
type TypingCommand struct {
	Room     RoomID
	UserID   string
	IsTyping bool
}

// SignalCommand carries call-setup signaling to one target identity.
// The payload is forwarded verbatim.
type SignalCommand struct {
	From       string
	TargetUser string
	SignalType string
	Signal     json.RawMessage
}
