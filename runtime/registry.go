package runtime

import (
	"log/slog"
	"sync"
	"time"

	"quantum-relay/contract"
)

// Registry is the authoritative directory of live connections, one per
// identity. A fresh connection for an identity already on file supersedes the
// old one, and an unregister only takes effect if the connection on file is
// still the caller's. That guard keeps the reconnect race (new socket opens
// before the old close handler runs) from wiping out the live entry.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*contract.Connection
	events      chan contract.RegistryEvent
	log         *slog.Logger
}

func NewRegistry(log *slog.Logger, eventBuffer int) *Registry {
	return &Registry{
		connections: make(map[string]*contract.Connection),
		events:      make(chan contract.RegistryEvent, eventBuffer),
		log:         log,
	}
}

// Register puts the connection on file for its identity and returns the
// superseded connection, if any, so the transport can close it.
func (r *Registry) Register(conn *contract.Connection) *contract.Connection {
	r.mu.Lock()
	previous := r.connections[conn.Identity]
	r.connections[conn.Identity] = conn
	r.mu.Unlock()

	if previous != nil {
		r.log.Debug("Connection superseded", "identity", conn.Identity, "old", previous.ID, "new", conn.ID)
	}
	r.emit(contract.RegistryEvent{Kind: contract.Registered, Identity: conn.Identity, At: time.Now().UTC()})
	return previous
}

// Unregister removes the connection only when it is still the one on file and
// reports whether it did. A stale unregister from a superseded connection is a
// no-op, so callers can skip their own bookkeeping when it returns false.
func (r *Registry) Unregister(conn *contract.Connection) bool {
	r.mu.Lock()
	current, ok := r.connections[conn.Identity]
	if !ok || current.ID != conn.ID {
		r.mu.Unlock()
		r.log.Debug("Ignoring stale unregister", "identity", conn.Identity, "connection", conn.ID)
		return false
	}
	delete(r.connections, conn.Identity)
	r.mu.Unlock()

	r.emit(contract.RegistryEvent{Kind: contract.Unregistered, Identity: conn.Identity, At: time.Now().UTC()})
	return true
}

func (r *Registry) Lookup(identity string) (*contract.Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.connections[identity]
	return conn, ok
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections)
}

// Events exposes the churn feed consumed by the presence worker.
func (r *Registry) Events() <-chan contract.RegistryEvent {
	return r.events
}

func (r *Registry) emit(e contract.RegistryEvent) {
	select {
	case r.events <- e:
	default:
		r.log.Warn("Registry event dropped, presence feed is full", "identity", e.Identity)
	}
}
