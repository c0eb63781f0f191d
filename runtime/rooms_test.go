package runtime

import (
	"testing"

	"quantum-relay/domain"

	"github.com/stretchr/testify/require"
)

func TestRooms_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()
	roomID := domain.RoomID("room-1")

	// When alice joins the same room twice
	rooms.Join(roomID, "alice")
	rooms.Join(roomID, "alice")

	// Then she appears once
	req.Equal([]string{"alice"}, rooms.Members(roomID))
	req.True(rooms.IsMember(roomID, "alice"))
}

func TestRooms_LeavePrunesEmptyRooms(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()
	roomID := domain.RoomID("room-1")

	rooms.Join(roomID, "alice")
	rooms.Leave(roomID, "alice")

	// Then nothing is left behind
	req.Nil(rooms.Members(roomID))
	req.Nil(rooms.RoomsOf("alice"))
	req.False(rooms.IsMember(roomID, "alice"))

	// Leaving again is a harmless no-op
	rooms.Leave(roomID, "alice")
}

func TestRooms_RoomsOf(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()

	rooms.Join("room-1", "alice")
	rooms.Join("room-2", "alice")
	rooms.Join("room-1", "bob")

	req.ElementsMatch([]domain.RoomID{"room-1", "room-2"}, rooms.RoomsOf("alice"))
	req.ElementsMatch([]domain.RoomID{"room-1"}, rooms.RoomsOf("bob"))
}

func TestRooms_MembersIsASnapshot(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()
	roomID := domain.RoomID("room-1")

	rooms.Join(roomID, "alice")
	snapshot := rooms.Members(roomID)
	snapshot[0] = "mallory"

	// Mutating the returned slice never touches the index
	req.Equal([]string{"alice"}, rooms.Members(roomID))
}

func TestRooms_MembershipSurvivesAcrossRooms(t *testing.T) {
	req := require.New(t)
	rooms := NewRooms()

	rooms.Join("room-1", "alice")
	rooms.Join("room-2", "alice")
	rooms.Leave("room-1", "alice")

	// Leaving one room leaves the other membership intact
	req.ElementsMatch([]domain.RoomID{"room-2"}, rooms.RoomsOf("alice"))
	req.True(rooms.IsMember("room-2", "alice"))
}
