package workers

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"quantum-relay/contract"
	"quantum-relay/domain"
	"quantum-relay/domain/event"

	"github.com/samber/lo"
)

// presenceState tracks one identity through the debounce state machine:
// offline -> online -> pending_offline -> offline. The pending window absorbs
// page refreshes and flaky networks so rooms never see a blip.
type presenceState struct {
	status   domain.PresenceStatus
	lastSeen time.Time
	timer    *time.Timer
}

// PresenceWorker consumes registry churn and broadcasts user_status_change
// to every room the identity belongs to. A disconnect only becomes a
// visible offline transition after the grace period expires without a
// reconnect. Records are mirrored into the distributed cache with a TTL,
// so a crashed instance's records age out on their own.
type PresenceWorker struct {
	mu       sync.Mutex
	source   <-chan contract.RegistryEvent
	registry contract.IRegistry
	rooms    contract.IRooms
	cache    contract.Cache
	grace    time.Duration
	ttl      time.Duration
	log      *slog.Logger
	states   map[string]*presenceState
}

func NewPresenceWorker(
	source <-chan contract.RegistryEvent,
	registry contract.IRegistry,
	rooms contract.IRooms,
	cache contract.Cache,
	grace time.Duration,
	ttl time.Duration,
	log *slog.Logger,
) *PresenceWorker {
	return &PresenceWorker{
		source:   source,
		registry: registry,
		rooms:    rooms,
		cache:    cache,
		grace:    grace,
		ttl:      ttl,
		log:      log,
		states:   make(map[string]*presenceState),
	}
}

func (w *PresenceWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping presence worker")
			return nil
		case e, ok := <-w.source:
			if !ok {
				return nil
			}
			switch e.Kind {
			case contract.Registered:
				w.handleOnline(ctx, e)
			case contract.Unregistered:
				w.handleDisconnect(ctx, e)
			}
		}
	}
}

// handleOnline cancels any pending offline for the identity. A reconnect
// inside the grace window produces no transition at all, members never saw
// the identity leave.
func (w *PresenceWorker) handleOnline(ctx context.Context, e contract.RegistryEvent) {
	w.mu.Lock()
	state, ok := w.states[e.Identity]
	if ok && state.status == domain.StatusPendingOffline {
		state.timer.Stop()
		state.status = domain.StatusOnline
		state.lastSeen = e.At
		w.mu.Unlock()
		w.log.Debug("Reconnect within grace period", "identity", e.Identity)
		return
	}

	wasOnline := ok && state.status == domain.StatusOnline
	w.states[e.Identity] = &presenceState{status: domain.StatusOnline, lastSeen: e.At}
	w.mu.Unlock()

	// A superseding connection for an already-online identity is invisible
	// to the rooms.
	if wasOnline {
		return
	}
	w.propagate(ctx, e.Identity, true, e.At)
}

func (w *PresenceWorker) handleDisconnect(ctx context.Context, e contract.RegistryEvent) {
	w.mu.Lock()
	state, ok := w.states[e.Identity]
	if !ok || state.status != domain.StatusOnline {
		w.mu.Unlock()
		return
	}
	state.status = domain.StatusPendingOffline
	state.lastSeen = e.At
	state.timer = time.AfterFunc(w.grace, func() {
		w.confirmOffline(ctx, e.Identity)
	})
	w.mu.Unlock()
}

// confirmOffline fires when the grace period elapsed without a reconnect.
func (w *PresenceWorker) confirmOffline(ctx context.Context, identity string) {
	w.mu.Lock()
	state, ok := w.states[identity]
	if !ok || state.status != domain.StatusPendingOffline {
		w.mu.Unlock()
		return
	}
	if _, stillConnected := w.registry.Lookup(identity); stillConnected {
		// Late reconnect beat the timer, keep the identity online.
		state.status = domain.StatusOnline
		w.mu.Unlock()
		return
	}
	state.status = domain.StatusOffline
	lastSeen := state.lastSeen
	w.mu.Unlock()

	w.propagate(ctx, identity, false, lastSeen)
}

// Snapshot returns the identity's current presence record.
func (w *PresenceWorker) Snapshot(identity string) domain.PresenceRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	state, ok := w.states[identity]
	if !ok {
		return domain.PresenceRecord{Identity: identity, IsOnline: false}
	}
	// Pending offline still reads as online, the transition has not been
	// confirmed yet.
	return domain.PresenceRecord{
		Identity: identity,
		IsOnline: state.status != domain.StatusOffline,
		LastSeen: state.lastSeen,
	}
}

// propagate pushes the status change to every connected member sharing a room
// with the identity, and mirrors the record in the cache.
func (w *PresenceWorker) propagate(ctx context.Context, identity string, isOnline bool, lastSeen time.Time) {
	record := domain.PresenceRecord{Identity: identity, IsOnline: isOnline, LastSeen: lastSeen}
	if data, err := json.Marshal(record); err == nil {
		if err = w.cache.SetWithTTL(ctx, "presence:"+identity, data, w.ttl); err != nil {
			w.log.Warn("Presence cache write failed", "identity", identity, "error", err)
		}
	}

	evt := event.UserStatusChange{UserID: identity, IsOnline: isOnline, LastSeen: lastSeen}

	// An identity sharing several rooms with the same member is notified once.
	var audience []string
	for _, roomID := range w.rooms.RoomsOf(identity) {
		audience = append(audience, w.rooms.Members(roomID)...)
	}
	notified := 0
	for _, member := range lo.Uniq(audience) {
		if member == identity {
			continue
		}
		conn, ok := w.registry.Lookup(member)
		if !ok {
			continue
		}
		notified++
		if err := conn.Sink.Consume(ctx, evt); err != nil {
			w.log.Debug("Presence push dropped", "identity", member, "error", err)
		}
	}
	w.log.Debug("Presence propagated", "identity", identity, "online", isOnline, "notified", notified)
}
