// Package runtime orchestrates connections, rooms and delivery.
// It wires the workers together without containing transport concerns.
package runtime

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"sync"

	"quantum-relay/contract"
	"quantum-relay/domain"
	"quantum-relay/domain/event"
	qerrors "quantum-relay/errors"
	"quantum-relay/moderation"
	"quantum-relay/observability"
	"quantum-relay/projection"
	"quantum-relay/repositories"
	"quantum-relay/runtime/workers"

	"github.com/gabriel-vasile/mimetype"
)

// Relay is the façade the transport talks to. It owns the per-room workers
// and spawns one, under supervision, the first time a room sees traffic.
type Relay struct {
	mu          sync.Mutex
	log         *slog.Logger
	registry    contract.IRegistry
	rooms       contract.IRooms
	supervisor  contract.ISupervisor
	messages    repositories.IMessageRepository
	moderator   *moderation.Moderator
	timeline    *projection.Timeline
	taps        []contract.EventSink
	health      *observability.HealthManager
	roomWorkers map[domain.RoomID]*workers.RoomWorker
	bufferSize  int
	runCtx      context.Context
}

func NewRelay(
	log *slog.Logger,
	registry contract.IRegistry,
	rooms contract.IRooms,
	supervisor contract.ISupervisor,
	messages repositories.IMessageRepository,
	moderator *moderation.Moderator,
	timeline *projection.Timeline,
	health *observability.HealthManager,
	bufferSize int,
) *Relay {
	return &Relay{
		log:         log,
		registry:    registry,
		rooms:       rooms,
		supervisor:  supervisor,
		messages:    messages,
		moderator:   moderator,
		timeline:    timeline,
		taps:        []contract.EventSink{timeline},
		health:      health,
		roomWorkers: make(map[domain.RoomID]*workers.RoomWorker),
		bufferSize:  bufferSize,
	}
}

// AddSink registers a permanent sink fed with every delivered message.
// Must be called before Start.
func (r *Relay) AddSink(sinks ...contract.EventSink) {
	r.taps = append(r.taps, sinks...)
}

// Start captures the lifecycle context under which room workers are spawned.
func (r *Relay) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runCtx = ctx
}

// Connect puts the connection on file and closes over the superseded one.
func (r *Relay) Connect(conn *contract.Connection) *contract.Connection {
	superseded := r.registry.Register(conn)
	r.health.ConnOpened()
	if superseded != nil {
		r.health.ConnClosed()
	}
	return superseded
}

// Disconnect takes the connection off file. The gauge only moves when the
// registry actually removed the mapping: a superseded connection's teardown
// was already counted when its replacement arrived.
func (r *Relay) Disconnect(conn *contract.Connection) {
	if r.registry.Unregister(conn) {
		r.health.ConnClosed()
	}
}

func (r *Relay) JoinRoom(room domain.RoomID, identity string) {
	r.rooms.Join(room, identity)
	r.ensureRoom(room)
}

func (r *Relay) LeaveRoom(room domain.RoomID, identity string) {
	r.rooms.Leave(room, identity)
	if len(r.rooms.Members(room)) == 0 {
		r.timeline.Drop(room)
	}
}

// Send pushes one message through the room's pipeline and blocks until the
// synchronous outcome is known: the persisted message or the reason it was
// refused.
func (r *Relay) Send(ctx context.Context, cmd domain.SendCommand) (domain.Message, error) {
	if err := validateAttachment(cmd.Type, cmd.Content); err != nil {
		r.health.IncrError()
		return domain.Message{}, err
	}

	worker := r.ensureRoom(cmd.Room)
	reply := make(chan workers.SendResult, 1)
	if err := worker.Submit(ctx, workers.SendRequest{Cmd: cmd, Reply: reply}); err != nil {
		return domain.Message{}, err
	}

	select {
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	case result := <-reply:
		return result.Message, result.Err
	}
}

// MarkRead records a read receipt and broadcasts it to the room.
func (r *Relay) MarkRead(ctx context.Context, cmd domain.ReadCommand) error {
	worker := r.ensureRoom(cmd.Room)
	reply := make(chan error, 1)
	if err := worker.Submit(ctx, workers.ReadRequest{Cmd: cmd, Reply: reply}); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-reply:
		return err
	}
}

// Typing relays a transient typing indicator, fire and forget.
func (r *Relay) Typing(ctx context.Context, cmd domain.TypingCommand) error {
	worker := r.ensureRoom(cmd.Room)
	return worker.Submit(ctx, workers.TypingRequest{Cmd: cmd})
}

// RelaySignal forwards call signaling to its single target, verbatim.
// No queueing: an unreachable target is reported straight back to the caller.
func (r *Relay) RelaySignal(ctx context.Context, cmd domain.SignalCommand) error {
	conn, ok := r.registry.Lookup(cmd.TargetUser)
	if !ok {
		return qerrors.ErrNotReachable
	}
	evt := event.CallSignal{FromUserID: cmd.From, Signal: cmd.Signal, Type: cmd.SignalType}
	if err := conn.Sink.Consume(ctx, evt); err != nil {
		return qerrors.ErrNotReachable
	}
	return nil
}

func (r *Relay) GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	return r.messages.GetMessages(room, cursor)
}

// Recent returns the in-memory backlog replayed to a client joining a room.
func (r *Relay) Recent(room domain.RoomID) []domain.Message {
	return r.timeline.Recent(room)
}

// ensureRoom returns the room's worker, spawning it under supervision on
// first use. Workers are never torn down while the relay runs, an idle one
// costs a goroutine parked on its channel.
func (r *Relay) ensureRoom(room domain.RoomID) *workers.RoomWorker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if worker, ok := r.roomWorkers[room]; ok {
		return worker
	}

	worker := workers.NewRoomWorker(
		room, r.bufferSize, r.registry, r.rooms, r.messages,
		r.moderator, r.taps, r.health, r.log,
	)
	r.roomWorkers[room] = worker
	r.log.Info("Room worker started", "room", room)
	r.supervisor.Start(r.runCtx, worker)
	return worker
}

// validateAttachment rejects payloads whose bytes disagree with the declared
// message type. Type file accepts anything, text skips the check entirely.
func validateAttachment(messageType domain.MessageType, content domain.Content) error {
	var expectedPrefix string
	switch messageType {
	case domain.MessageImage:
		expectedPrefix = "image/"
	case domain.MessageVideo:
		expectedPrefix = "video/"
	case domain.MessageAudio:
		expectedPrefix = "audio/"
	default:
		return nil
	}

	if content.Data == "" {
		return qerrors.ErrContentMismatch
	}
	data, err := base64.StdEncoding.DecodeString(content.Data)
	if err != nil {
		return qerrors.ErrContentMismatch
	}
	detected := mimetype.Detect(data)
	if !strings.HasPrefix(detected.String(), expectedPrefix) {
		return qerrors.ErrContentMismatch
	}
	return nil
}
