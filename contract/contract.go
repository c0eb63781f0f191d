//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
	"time"

	"quantum-relay/domain"
	"quantum-relay/domain/event"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself, the supervisor does.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes, avoiding the need
// for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one consumer of pushed events. Connection sinks wrap a live
// transport channel, permanent sinks feed projections and indexes.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Connection is the ephemeral binding between one identity and one live
// transport channel. The ID disambiguates reconnect races: two connections
// for the same identity are never equal.
type Connection struct {
	ID       uuid.UUID
	Identity string
	Sink     EventSink
	OpenedAt time.Time
}

type RegistryEventKind int

const (
	Registered RegistryEventKind = iota
	Unregistered
)

// RegistryEvent notifies the presence propagator of registry churn.
type RegistryEvent struct {
	Kind     RegistryEventKind
	Identity string
	At       time.Time
}

type IRegistry interface {
	Register(conn *Connection) (superseded *Connection)
	Unregister(conn *Connection) (removed bool)
	Lookup(identity string) (*Connection, bool)
	ActiveCount() int
}

type IRooms interface {
	Join(roomID domain.RoomID, identity string)
	Leave(roomID domain.RoomID, identity string)
	Members(roomID domain.RoomID) []string
	RoomsOf(identity string) []domain.RoomID
	IsMember(roomID domain.RoomID, identity string) bool
}

// Cache is the narrow surface of the optional distributed cache.
// Implementations degrade to a no-op when no backend is configured,
// callers never check for nil.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
