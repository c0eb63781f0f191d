package runtime

import (
	"sync"

	"quantum-relay/domain"
)

type Set map[string]struct{}

// Rooms is the membership index: which identities belong to which room.
// Membership survives disconnects, it only changes on explicit join and
// leave. Delivery resolves membership here, then liveness in the Registry.
type Rooms struct {
	mu      sync.RWMutex
	members map[domain.RoomID]Set
	byUser  map[string]map[domain.RoomID]struct{}
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[domain.RoomID]Set),
		byUser:  make(map[string]map[domain.RoomID]struct{}),
	}
}

// Join adds the identity to the room, idempotently.
func (r *Rooms) Join(roomID domain.RoomID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[roomID]; !ok {
		r.members[roomID] = make(Set)
	}
	r.members[roomID][identity] = struct{}{}

	if _, ok := r.byUser[identity]; !ok {
		r.byUser[identity] = make(map[domain.RoomID]struct{})
	}
	r.byUser[identity][roomID] = struct{}{}
}

// Leave removes the identity from the room. Empty entries are pruned so the
// index never leaks rooms nobody belongs to.
func (r *Rooms) Leave(roomID domain.RoomID, identity string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.members[roomID]; ok {
		delete(members, identity)
		if len(members) == 0 {
			delete(r.members, roomID)
		}
	}
	if rooms, ok := r.byUser[identity]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(r.byUser, identity)
		}
	}
}

// Members returns a snapshot of the room's membership. Mutating the result
// does not touch the index.
func (r *Rooms) Members(roomID domain.RoomID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.members[roomID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(members))
	for identity := range members {
		out = append(out, identity)
	}
	return out
}

// RoomsOf returns every room the identity belongs to.
func (r *Rooms) RoomsOf(identity string) []domain.RoomID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms, ok := r.byUser[identity]
	if !ok {
		return nil
	}
	out := make([]domain.RoomID, 0, len(rooms))
	for roomID := range rooms {
		out = append(out, roomID)
	}
	return out
}

// IsMember reports whether the identity belongs to the room.
func (r *Rooms) IsMember(roomID domain.RoomID, identity string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[roomID][identity]
	return ok
}
