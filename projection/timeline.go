// Package projection builds local read models from observed events.
// Projections never emit events and never talk to the transport directly.
package projection

import (
	"context"
	"sync"

	"quantum-relay/domain"
	"quantum-relay/domain/event"
)

// Timeline keeps the most recent messages of every room in memory so that a
// client joining a room gets an instant backlog without a storage round trip.
// Depth bounds the per-room history, older entries are evicted in order.
type Timeline struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID][]domain.Message
	depth int
}

func NewTimeline(depth int) *Timeline {
	return &Timeline{
		rooms: make(map[domain.RoomID][]domain.Message),
		depth: depth,
	}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.NewMessage)
	if !ok {
		return nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	messages := append(t.rooms[evt.Message.Room], evt.Message)
	if len(messages) > t.depth {
		messages = messages[len(messages)-t.depth:]
	}
	t.rooms[evt.Message.Room] = messages
	return nil
}

// Recent returns a copy of the room's backlog, oldest first.
func (t *Timeline) Recent(room domain.RoomID) []domain.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	messages := t.rooms[room]
	out := make([]domain.Message, len(messages))
	copy(out, messages)
	return out
}

// Drop removes the room's backlog, called when the last member leaves.
func (t *Timeline) Drop(room domain.RoomID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.rooms, room)
}
