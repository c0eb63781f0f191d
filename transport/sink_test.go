package transport

import (
	"context"
	"encoding/json"
	"testing"

	"quantum-relay/domain"
	"quantum-relay/domain/event"
	qerrors "quantum-relay/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConnectionSink_BuffersWithoutBlocking(t *testing.T) {
	req := require.New(t)
	sink := NewConnectionSink(2)

	req.NoError(sink.Consume(context.Background(), event.UserTyping{UserID: "alice"}))
	req.NoError(sink.Consume(context.Background(), event.UserTyping{UserID: "alice"}))

	// A full buffer fails fast instead of stalling the fan-out
	err := sink.Consume(context.Background(), event.UserTyping{UserID: "alice"})
	req.ErrorIs(err, qerrors.ErrStaleConnectionWrite)

	// Draining one slot makes room again
	<-sink.Out()
	req.NoError(sink.Consume(context.Background(), event.UserTyping{UserID: "alice"}))
}

func TestConnectionSink_ClosedSinkRefusesWrites(t *testing.T) {
	req := require.New(t)
	sink := NewConnectionSink(8)

	sink.Close()
	sink.Close() // idempotent

	err := sink.Consume(context.Background(), event.UserTyping{UserID: "alice"})
	req.ErrorIs(err, qerrors.ErrStaleConnectionWrite)

	select {
	case <-sink.Done():
	default:
		req.FailNow("Done must be closed after Close")
	}
}

func TestEncodeEvent_Envelope(t *testing.T) {
	req := require.New(t)
	messageID := uuid.New()

	raw, err := encodeEvent(event.NewMessage{Message: domain.Message{
		ID:       messageID,
		Room:     "room-1",
		SenderID: "alice",
		Type:     domain.MessageText,
		Content:  domain.Content{Text: "hello"},
	}})
	req.NoError(err)

	var frame Frame
	req.NoError(json.Unmarshal(raw, &frame))
	req.Equal("new_message", frame.Event)

	var payload event.NewMessage
	req.NoError(json.Unmarshal(frame.Data, &payload))
	req.Equal(messageID, payload.Message.ID)
	req.Equal("hello", payload.Message.Content.Text)
}
