// Package domain contains core concepts of the relay.
// No runtime, network, or UI logic should be added here.
package domain

// RoomID identifies one conversation, the unit of fan-out.
// Rooms are created implicitly on first join and survive disconnects,
// membership only changes through explicit join/leave events.
type RoomID string
