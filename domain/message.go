// Package domain contains core concepts of the relay.
// This file defines Message records and related rules.
// Messages are immutable once created, except for the append-only
// delivered/read sets.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageVideo MessageType = "video"
	MessageAudio MessageType = "audio"
	MessageFile  MessageType = "file"
)

// Content is the opaque payload of a message as seen by clients.
// Text carries the body for text messages, Data an inline base64
// attachment for the other types.
type Content struct {
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// Message is one chat event. DeliveredTo and ReadBy only ever grow,
// they never shrink and never contain duplicates.
type Message struct {
	ID          uuid.UUID   `json:"id"`
	Room        RoomID      `json:"room_id"`
	SenderID    string      `json:"sender_id"`
	Type        MessageType `json:"type"`
	Content     Content     `json:"content"`
	ReplyTo     string      `json:"replyTo,omitempty"`
	CreatedAt   time.Time   `json:"timestamp"`
	DeliveredTo []string    `json:"delivered_to"`
	ReadBy      []string    `json:"read_by"`
}
