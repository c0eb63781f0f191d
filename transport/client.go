package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"quantum-relay/contract"
	"quantum-relay/domain"
	"quantum-relay/domain/event"
	qerrors "quantum-relay/errors"
	"quantum-relay/runtime"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 20 // inline attachments travel base64-encoded
)

// Client is one authenticated websocket session. The read pump dispatches
// client frames into the relay, the write pump drains the connection's sink.
// Both pumps exit when the socket dies or the sink is closed by a
// superseding connection.
type Client struct {
	socket     *websocket.Conn
	relay      *runtime.Relay
	connection *contract.Connection
	sink       *ConnectionSink
	validate   *validator.Validate
	log        *slog.Logger
}

func NewClient(socket *websocket.Conn, relay *runtime.Relay, identity string, buffer int, log *slog.Logger) *Client {
	sink := NewConnectionSink(buffer)
	return &Client{
		socket: socket,
		relay:  relay,
		connection: &contract.Connection{
			ID:       uuid.New(),
			Identity: identity,
			Sink:     sink,
			OpenedAt: time.Now().UTC(),
		},
		sink:     sink,
		validate: validator.New(),
		log:      log.With("identity", identity),
	}
}

// Run registers the connection and blocks until the session ends.
// A superseded connection's sink is closed here so its write pump exits and
// its eventual unregister is recognized as stale.
func (c *Client) Run(ctx context.Context) {
	if superseded := c.relay.Connect(c.connection); superseded != nil {
		if old, ok := superseded.Sink.(*ConnectionSink); ok {
			old.Close()
		}
	}

	go c.writePump(ctx)
	c.readPump(ctx)

	c.relay.Disconnect(c.connection)
	c.sink.Close()
	_ = c.socket.Close()
}

func (c *Client) readPump(ctx context.Context) {
	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("Socket closed unexpectedly", "error", err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.pushError(ctx, "malformed frame", 400)
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.sink.Done():
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "superseded"))
			_ = c.socket.Close()
			return
		case evt := <-c.sink.Out():
			payload, err := encodeEvent(evt)
			if err != nil {
				c.log.Warn("Failed to encode event", "event", evt.Name(), "error", err)
				continue
			}
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(ctx context.Context, frame Frame) {
	identity := c.connection.Identity

	switch frame.Event {
	case frameJoinChat:
		var p joinPayload
		if !c.decode(ctx, frame.Data, &p) {
			return
		}
		c.relay.JoinRoom(domain.RoomID(p.RoomID), identity)
		c.replayBacklog(ctx, domain.RoomID(p.RoomID))

	case frameLeaveChat:
		var p joinPayload
		if !c.decode(ctx, frame.Data, &p) {
			return
		}
		c.relay.LeaveRoom(domain.RoomID(p.RoomID), identity)

	case frameSendMessage:
		var p sendMessagePayload
		if !c.decode(ctx, frame.Data, &p) {
			return
		}
		_, err := c.relay.Send(ctx, domain.SendCommand{
			Room:     domain.RoomID(p.RoomID),
			SenderID: identity,
			Type:     domain.MessageType(p.Type),
			Content: domain.Content{
				Text:     p.Content.Text,
				Data:     p.Content.Data,
				MimeType: p.Content.MimeType,
				Caption:  p.Content.Caption,
			},
			ReplyTo: p.ReplyTo,
		})
		if err != nil {
			c.pushError(ctx, err.Error(), qerrors.MapToHTTPStatus(err))
		}

	case frameTypingStart, frameTypingStop:
		var p joinPayload
		if !c.decode(ctx, frame.Data, &p) {
			return
		}
		_ = c.relay.Typing(ctx, domain.TypingCommand{
			Room:     domain.RoomID(p.RoomID),
			UserID:   identity,
			IsTyping: frame.Event == frameTypingStart,
		})

	case frameMessageRead:
		var p messageReadPayload
		if !c.decode(ctx, frame.Data, &p) {
			return
		}
		err := c.relay.MarkRead(ctx, domain.ReadCommand{
			Room:      domain.RoomID(p.RoomID),
			MessageID: p.MessageID,
			ReaderID:  identity,
		})
		if err != nil {
			c.pushError(ctx, err.Error(), qerrors.MapToHTTPStatus(err))
		}

	case frameCallSignal:
		var p callSignalPayload
		if !c.decode(ctx, frame.Data, &p) {
			return
		}
		err := c.relay.RelaySignal(ctx, domain.SignalCommand{
			From:       identity,
			TargetUser: p.TargetUserID,
			SignalType: p.Type,
			Signal:     p.Signal,
		})
		if errors.Is(err, qerrors.ErrNotReachable) {
			c.pushError(ctx, err.Error(), qerrors.MapToHTTPStatus(err))
		}

	default:
		c.log.Debug("Unknown frame", "event", frame.Event)
		c.pushError(ctx, "unknown event", 400)
	}
}

// replayBacklog pushes the room's recent timeline so a joining client has
// context before live traffic arrives.
func (c *Client) replayBacklog(ctx context.Context, room domain.RoomID) {
	for _, message := range c.relay.Recent(room) {
		if err := c.sink.Consume(ctx, event.NewMessage{Message: message}); err != nil {
			c.log.Debug("Backlog replay truncated", "room", room, "error", err)
			return
		}
	}
}

func (c *Client) decode(ctx context.Context, data json.RawMessage, out any) bool {
	if err := json.Unmarshal(data, out); err != nil {
		c.pushError(ctx, "malformed payload", 400)
		return false
	}
	if err := c.validate.Struct(out); err != nil {
		c.pushError(ctx, err.Error(), 400)
		return false
	}
	return true
}

func (c *Client) pushError(ctx context.Context, message string, code int) {
	if err := c.sink.Consume(ctx, ErrorEvent{Message: message, Code: code}); err != nil {
		c.log.Debug("Error frame dropped", "error", err)
	}
}
