package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellivod/Lounge/internal/domain"
)

func newTestRegistry() (*Registry, *Gateway) {
	g := NewGateway()
	return NewRegistry(g), g
}

func ident(uid string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(uid), Username: uid}
}

func TestJoinCreatesUnknownRoom(t *testing.T) {
	r, _ := newTestRegistry()

	view, err := r.Join("room-1", ident("a"))
	require.NoError(t, err)
	assert.Equal(t, domain.RoomID("room-1"), view.Room.ID)
	assert.Equal(t, domain.RoomChat, view.Room.Type)
	assert.Equal(t, 1, view.Count)

	got, ok := r.Get("room-1")
	require.True(t, ok)
	assert.Equal(t, 1, got.Count)
}

func TestJoinIsIdempotent(t *testing.T) {
	r, _ := newTestRegistry()

	r.Join("room-1", ident("a"))
	view, err := r.Join("room-1", ident("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, view.Count)
}

func TestJoinMovesUserBetweenRooms(t *testing.T) {
	r, _ := newTestRegistry()

	r.Join("room-1", ident("a"))
	r.Join("room-2", ident("a"))

	// No orphan membership: the old room emptied out and was deleted.
	_, ok := r.Get("room-1")
	assert.False(t, ok)

	roomID, ok := r.RoomOf("a")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("room-2"), roomID)
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	r, _ := newTestRegistry()

	r.Join("room-1", ident("a"))
	r.Join("room-1", ident("b"))

	view := r.Leave("room-1", "a")
	require.NotNil(t, view)
	assert.Equal(t, 1, view.Count)

	view = r.Leave("room-1", "b")
	assert.Nil(t, view)
	_, ok := r.Get("room-1")
	assert.False(t, ok, "empty room must be absent from the registry")
}

func TestLeaveUnknownIsNoop(t *testing.T) {
	r, _ := newTestRegistry()
	assert.Nil(t, r.Leave("missing", "a"))

	r.Join("room-1", ident("a"))
	assert.Nil(t, r.Leave("room-1", "not-a-member"))

	got, ok := r.Get("room-1")
	require.True(t, ok)
	assert.Equal(t, 1, got.Count)
}

func TestJoinLeaveNotifyOtherMembers(t *testing.T) {
	r, g := newTestRegistry()
	a, b := &fakeSink{}, &fakeSink{}
	g.Register("a", a)
	g.Register("b", b)

	r.Join("room-1", ident("a"))
	r.Join("room-1", ident("b"))

	// Only the pre-existing member hears about the join.
	assert.Contains(t, a.eventTypes(t), "user_joined")
	assert.NotContains(t, b.eventTypes(t), "user_joined")

	r.Leave("room-1", "b")
	assert.Contains(t, a.eventTypes(t), "user_left")

	var left map[string]any
	for _, e := range a.events(t) {
		if e["type"] == "user_left" {
			left = e
		}
	}
	require.NotNil(t, left)
	assert.Equal(t, "b", left["user"])
	assert.Equal(t, float64(1), left["count"])
}

func TestListFiltersByType(t *testing.T) {
	r, _ := newTestRegistry()

	r.Create("general", domain.RoomVoice, domain.DefaultRoomSettings())
	r.Join("text-room", ident("a"))

	all := r.List("")
	assert.Len(t, all, 2)

	voice := r.List(domain.RoomVoice)
	require.Len(t, voice, 1)
	assert.Equal(t, domain.RoomVoice, voice[0].Room.Type)
}

func TestLeaveAll(t *testing.T) {
	r, _ := newTestRegistry()
	r.Join("room-1", ident("a"))

	r.LeaveAll("a")
	_, ok := r.RoomOf("a")
	assert.False(t, ok)
	_, ok = r.Get("room-1")
	assert.False(t, ok)
}

func TestOnDestroyFiresWhenRoomEmpties(t *testing.T) {
	r, _ := newTestRegistry()
	var destroyed []domain.RoomID
	r.OnDestroy(func(id domain.RoomID) { destroyed = append(destroyed, id) })

	r.Join("room-1", ident("a"))
	r.Join("room-1", ident("b"))

	r.Leave("room-1", "a")
	assert.Empty(t, destroyed, "room still has a member")

	r.Leave("room-1", "b")
	assert.Equal(t, []domain.RoomID{"room-1"}, destroyed)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	r, _ := newTestRegistry()

	settings := domain.DefaultRoomSettings()
	settings.MaxUsers = 1
	room := r.Create("cosy", domain.RoomChat, settings)
	_, err := r.Join(room.ID, ident("a"))
	require.NoError(t, err)

	// b stays in its current room when the target is full.
	r.Join("room-2", ident("b"))
	_, err = r.Join(room.ID, ident("b"))
	assert.ErrorIs(t, err, ErrRoomFull)

	roomID, ok := r.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, domain.RoomID("room-2"), roomID)

	// Re-joining a full room you are already in stays idempotent.
	view, err := r.Join(room.ID, ident("a"))
	require.NoError(t, err)
	assert.Equal(t, 1, view.Count)
}
