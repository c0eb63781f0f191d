package domain

import "time"

type PresenceStatus string

const (
	StatusOnline         PresenceStatus = "online"
	StatusOffline        PresenceStatus = "offline"
	StatusPendingOffline PresenceStatus = "pending_offline"
)

// PresenceRecord is the externally visible online state of one identity.
// PENDING_OFFLINE is internal to the propagator and never leaves it: the
// outside world only ever observes online or offline.
type PresenceRecord struct {
	Identity string    `json:"identity"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen"`
}
