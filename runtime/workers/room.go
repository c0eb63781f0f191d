package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"quantum-relay/contract"
	"quantum-relay/domain"
	"quantum-relay/domain/event"
	qerrors "quantum-relay/errors"
	"quantum-relay/moderation"
	"quantum-relay/observability"
	"quantum-relay/repositories"

	"github.com/google/uuid"
)

// SendRequest carries one send command into the room's worker together with
// the channel its synchronous outcome goes back on.
type SendRequest struct {
	Cmd   domain.SendCommand
	Reply chan SendResult
}

type SendResult struct {
	Message domain.Message
	Err     error
}

type ReadRequest struct {
	Cmd   domain.ReadCommand
	Reply chan error
}

type TypingRequest struct {
	Cmd domain.TypingCommand
}

// RoomWorker is the single goroutine that owns one room's delivery order.
// Every send, read receipt and typing signal for the room flows through its
// channel, so two messages to the same room can never interleave their
// persist and fan-out steps.
type RoomWorker struct {
	room      domain.RoomID
	requests  chan any
	registry  contract.IRegistry
	rooms     contract.IRooms
	messages  repositories.IMessageRepository
	moderator *moderation.Moderator
	taps      []contract.EventSink
	health    *observability.HealthManager
	log       *slog.Logger
}

func NewRoomWorker(
	room domain.RoomID,
	bufferSize int,
	registry contract.IRegistry,
	rooms contract.IRooms,
	messages repositories.IMessageRepository,
	moderator *moderation.Moderator,
	taps []contract.EventSink,
	health *observability.HealthManager,
	log *slog.Logger,
) *RoomWorker {
	return &RoomWorker{
		room:      room,
		requests:  make(chan any, bufferSize),
		registry:  registry,
		rooms:     rooms,
		messages:  messages,
		moderator: moderator,
		taps:      taps,
		health:    health,
		log:       log.With("room", room),
	}
}

// Submit hands a request to the worker. It blocks while the room's queue is
// full, which is the backpressure senders are supposed to feel.
func (w *RoomWorker) Submit(ctx context.Context, request any) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case w.requests <- request:
		return nil
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room worker")
			return nil
		case request := <-w.requests:
			switch req := request.(type) {
			case SendRequest:
				req.Reply <- w.handleSend(ctx, req.Cmd)
			case ReadRequest:
				req.Reply <- w.handleRead(ctx, req.Cmd)
			case TypingRequest:
				w.handleTyping(ctx, req.Cmd)
			}
		}
	}
}

// handleSend runs the full delivery pipeline for one message:
// membership check, moderation, persist, fan-out, receipts, sender ack.
// Persistence comes strictly before fan-out, a storage failure means no
// member ever sees the message.
func (w *RoomWorker) handleSend(ctx context.Context, cmd domain.SendCommand) SendResult {
	start := time.Now()

	if !w.rooms.IsMember(cmd.Room, cmd.SenderID) {
		w.health.IncrError()
		return SendResult{Err: qerrors.ErrNotAMember}
	}

	content := cmd.Content
	if cmd.Type == domain.MessageText {
		sanitized, foundWords := w.moderator.Censor(content.Text)
		if len(foundWords) > 0 {
			w.log.Warn("Message censored",
				"author", cmd.SenderID,
				"words", len(foundWords),
				"lang", moderation.DetectLanguage(content.Text))
			content.Text = sanitized
		}
	}

	message := domain.Message{
		ID:          uuid.New(),
		Room:        cmd.Room,
		SenderID:    cmd.SenderID,
		Type:        cmd.Type,
		Content:     content,
		ReplyTo:     cmd.ReplyTo,
		CreatedAt:   time.Now().UTC(),
		DeliveredTo: []string{},
		ReadBy:      []string{},
	}

	if err := w.messages.StoreMessage(message); err != nil {
		w.health.IncrError()
		return SendResult{Err: fmt.Errorf("%w: %v", qerrors.ErrPersistenceFailure, err)}
	}

	delivered := w.broadcast(ctx, cmd.Room, event.NewMessage{Message: message})
	message.DeliveredTo = delivered
	if len(delivered) > 0 {
		if err := w.messages.AddDelivered(message.ID, delivered); err != nil {
			w.log.Warn("Failed to record delivery receipts", "messageId", message.ID, "error", err)
		}
	}

	for _, tap := range w.taps {
		if err := tap.Consume(ctx, event.NewMessage{Message: message}); err != nil {
			w.log.Warn("Permanent sink rejected event", "messageId", message.ID, "error", err)
		}
	}

	// The ack is sender-only and distinct from the room fan-out.
	if conn, ok := w.registry.Lookup(cmd.SenderID); ok {
		ack := event.MessageDelivered{MessageID: message.ID, Timestamp: message.CreatedAt}
		if err := conn.Sink.Consume(ctx, ack); err != nil {
			w.log.Debug("Sender ack lost", "identity", cmd.SenderID, "error", err)
		}
	}

	w.health.IncrRequest()
	w.health.ObserveLatency(time.Since(start))
	return SendResult{Message: message}
}

func (w *RoomWorker) handleRead(ctx context.Context, cmd domain.ReadCommand) error {
	messageID, err := uuid.Parse(cmd.MessageID)
	if err != nil {
		return qerrors.ErrMessageNotFound
	}

	updated, err := w.messages.AddRead(messageID, cmd.ReaderID)
	if err != nil {
		return err
	}

	w.broadcast(ctx, cmd.Room, event.MessageRead{
		MessageID: updated.ID,
		ReadBy:    cmd.ReaderID,
		Timestamp: time.Now().UTC(),
	})
	return nil
}

// handleTyping relays the indicator to everyone but its author.
// Typing state is transient, nothing is persisted.
func (w *RoomWorker) handleTyping(ctx context.Context, cmd domain.TypingCommand) {
	evt := event.UserTyping{UserID: cmd.UserID, Room: cmd.Room, IsTyping: cmd.IsTyping}
	for _, identity := range w.rooms.Members(cmd.Room) {
		if identity == cmd.UserID {
			continue
		}
		w.push(ctx, identity, evt)
	}
}

// broadcast pushes the event to every connected member of the room and
// returns the identities that accepted it. Disconnected members are skipped,
// failed pushes are logged and dropped, never retried.
func (w *RoomWorker) broadcast(ctx context.Context, room domain.RoomID, evt event.DomainEvent) []string {
	var reached []string
	for _, identity := range w.rooms.Members(room) {
		if w.push(ctx, identity, evt) {
			reached = append(reached, identity)
		}
	}
	return reached
}

func (w *RoomWorker) push(ctx context.Context, identity string, evt event.DomainEvent) bool {
	conn, ok := w.registry.Lookup(identity)
	if !ok {
		return false
	}
	if err := conn.Sink.Consume(ctx, evt); err != nil {
		w.log.Debug("Dropped event for slow or closed connection",
			"identity", identity, "event", evt.Name(), "error", err)
		return false
	}
	return true
}
