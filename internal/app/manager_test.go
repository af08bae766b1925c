package app

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellivod/Lounge/internal/core"
	"github.com/mellivod/Lounge/internal/domain"
)

type sink struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (s *sink) TrySend(f core.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, append(core.Frame(nil), f...))
	return nil
}

func (s *sink) Close() {}

func (s *sink) events(t *testing.T) []map[string]any {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.frames))
	for _, f := range s.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(f, &m))
		out = append(out, m)
	}
	return out
}

func (s *sink) has(t *testing.T, typ string) bool {
	t.Helper()
	for _, e := range s.events(t) {
		if e["type"] == typ {
			return true
		}
	}
	return false
}

func (s *sink) last(t *testing.T, typ string) map[string]any {
	t.Helper()
	var out map[string]any
	for _, e := range s.events(t) {
		if e["type"] == typ {
			out = e
		}
	}
	return out
}

func newTestManager(disconnectGrace, finishedGrace time.Duration) (*Manager, *core.Gateway) {
	g := core.NewGateway()
	m := NewManager(g, NewAntiCheat(10*time.Second, 1000), disconnectGrace, finishedGrace)

	// Deterministic join ordering regardless of wall-clock resolution.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	m.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return m, g
}

func player(uid string) domain.Identity {
	return domain.Identity{UserID: domain.UserID(uid), Username: uid}
}

func connect(g *core.Gateway, uid string) *sink {
	s := &sink{}
	g.Register(domain.UserID(uid), s)
	return s
}

func assertOneHost(t *testing.T, room domain.GameRoom) {
	t.Helper()
	hosts := 0
	for _, p := range room.Players {
		if p.IsHost {
			hosts++
			assert.Equal(t, p.ID, room.HostID)
		}
	}
	assert.Equal(t, 1, hosts, "exactly one host while room is non-empty")
}

func TestCreateAutoJoinsHost(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	room := m.Create(player("host"), "trivia", domain.DefaultGameSettings())
	assert.Equal(t, domain.GameWaiting, room.Status)
	assert.Equal(t, domain.UserID("host"), room.HostID)
	require.Len(t, room.Players, 1)
	assert.True(t, room.Players["host"].IsHost)
	assertOneHost(t, room)
}

func TestJoinRejectsWhenFull(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	hostSink := connect(g, "host")

	settings := domain.DefaultGameSettings()
	settings.MaxPlayers = 2
	room := m.Create(player("host"), "trivia", settings)
	_, err := m.Join(room.ID, player("b"))
	require.NoError(t, err)

	_, err = m.Join(room.ID, player("c"))
	assert.ErrorIs(t, err, ErrRoomFull)

	got, ok := m.Room(room.ID)
	require.True(t, ok)
	assert.Len(t, got.Players, 2, "rejected join must not mutate the roster")

	// Rejection reaches nobody else.
	for _, e := range hostSink.events(t) {
		if e["type"] == "player_joined" {
			assert.NotEqual(t, "c", e["player"].(map[string]any)["id"])
		}
	}
}

func TestJoinRejectsRunningGameWithoutSpectators(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	settings := domain.DefaultGameSettings()
	settings.AllowSpectators = false
	room := m.Create(player("host"), "trivia", settings)
	m.SetReady("host", true)
	require.True(t, m.Start(room.ID, "host"))

	_, err := m.Join(room.ID, player("b"))
	assert.ErrorIs(t, err, ErrGameInProgress)
}

func TestJoinAllowsSpectatorsMidGame(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	room := m.Create(player("host"), "trivia", domain.DefaultGameSettings())
	m.SetReady("host", true)
	require.True(t, m.Start(room.ID, "host"))

	_, err := m.Join(room.ID, player("b"))
	assert.NoError(t, err)
}

func TestJoinMovesPlayerOutOfPreviousRoom(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	first := m.Create(player("host"), "trivia", domain.DefaultGameSettings())
	m.Join(first.ID, player("b"))

	second := m.Create(player("other"), "quiz", domain.DefaultGameSettings())
	_, err := m.Join(second.ID, player("b"))
	require.NoError(t, err)

	got, ok := m.Room(first.ID)
	require.True(t, ok)
	_, stillThere := got.Players["b"]
	assert.False(t, stillThere)

	roomID, ok := m.RoomOf("b")
	require.True(t, ok)
	assert.Equal(t, second.ID, roomID)
}

func TestStartRequiresHostAndAllReady(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	hostSink := connect(g, "host")
	bSink := connect(g, "b")

	room := m.Create(player("host"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	// Non-host cannot start.
	assert.False(t, m.Start(room.ID, "b"))
	// Host cannot start until everyone is ready.
	m.SetReady("host", true)
	assert.False(t, m.Start(room.ID, "host"))

	got, _ := m.Room(room.ID)
	assert.Equal(t, domain.GameWaiting, got.Status, "refused start leaves state unchanged")
	assert.False(t, hostSink.has(t, "game_started"), "refused start emits nothing")

	m.SetReady("b", true)
	require.True(t, m.Start(room.ID, "host"))

	got, _ = m.Room(room.ID)
	assert.Equal(t, domain.GamePlaying, got.Status)
	assert.True(t, hostSink.has(t, "game_started"))
	assert.True(t, bSink.has(t, "game_started"))

	// No way back: starting again is refused.
	assert.False(t, m.Start(room.ID, "host"))
}

func TestHostMigrationPicksEarliestJoined(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	bSink := connect(g, "b")
	cSink := connect(g, "c")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))
	m.Join(room.ID, player("c"))

	m.Leave("a")

	got, ok := m.Room(room.ID)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("b"), got.HostID)
	assertOneHost(t, got)

	for _, s := range []*sink{bSink, cSink} {
		ev := s.last(t, "host_changed")
		require.NotNil(t, ev)
		assert.Equal(t, "b", ev["newHost"])
	}
}

func TestLeaveDeletesEmptyRoom(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Leave("a")

	_, ok := m.Room(room.ID)
	assert.False(t, ok)
	assert.Empty(t, m.RoomList())
}

func TestUpdateStateRelaysToOthersOnly(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	aSink := connect(g, "a")
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	upd := domain.StateUpdate{
		Timestamp: time.Now().UnixMilli(),
		Seq:       1,
		GameState: json.RawMessage(`{"score":10}`),
	}
	require.True(t, m.UpdateState("a", upd))

	assert.True(t, bSink.has(t, "game_state_update"))
	assert.False(t, aSink.has(t, "game_state_update"), "no echo back to sender")

	ev := bSink.last(t, "game_state_update")
	assert.Equal(t, "a", ev["from"])
	assert.Equal(t, float64(upd.Timestamp), ev["timestamp"])

	got, _ := m.Room(room.ID)
	assert.JSONEq(t, `{"score":10}`, string(got.Players["a"].GameState))
}

func TestUpdateStateDropsImplausibleSilently(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	aSink := connect(g, "a")
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	upd := domain.StateUpdate{
		Timestamp: time.Now().UnixMilli(),
		Seq:       1,
		GameState: json.RawMessage(`{"score":-1}`),
	}
	assert.False(t, m.UpdateState("a", upd))
	assert.False(t, bSink.has(t, "game_state_update"))
	// The sender gets no hint either.
	assert.Empty(t, aSink.events(t))
}

func TestUpdateStateSkipsValidatorWhenDisabled(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	settings := domain.DefaultGameSettings()
	settings.AntiCheatEnabled = false
	m.Create(player("a"), "trivia", settings)

	// No timestamp, negative score: accepted with the gate off.
	assert.True(t, m.UpdateState("a", domain.StateUpdate{GameState: json.RawMessage(`{"score":-5}`)}))
}

func TestEndGameSchedulesTeardown(t *testing.T) {
	m, g := newTestManager(time.Hour, 50*time.Millisecond)
	aSink := connect(g, "a")
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	assert.False(t, m.End(room.ID, "b", nil), "only host may end")
	require.True(t, m.End(room.ID, "a", json.RawMessage(`{"winner":"a"}`)))

	assert.True(t, aSink.has(t, "game_ended"))
	assert.True(t, bSink.has(t, "game_ended"))

	// Results stay readable during the grace window.
	got, ok := m.Room(room.ID)
	require.True(t, ok)
	assert.Equal(t, domain.GameFinished, got.Status)

	assert.Eventually(t, func() bool {
		_, ok := m.Room(room.ID)
		return !ok
	}, time.Second, 10*time.Millisecond, "room torn down after the grace window")
}

func TestReconnectWithinGrace(t *testing.T) {
	m, g := newTestManager(100*time.Millisecond, time.Hour)
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	m.HandleDisconnect("a")
	got, _ := m.Room(room.ID)
	assert.False(t, got.Players["a"].IsConnected)

	time.Sleep(20 * time.Millisecond)
	restored, ok := m.Reconnect(room.ID, "a")
	require.True(t, ok)
	assert.True(t, restored.Players["a"].IsConnected)
	assert.True(t, bSink.has(t, "player_reconnected"))

	// The grace timer was cancelled; the player stays.
	time.Sleep(200 * time.Millisecond)
	got, _ = m.Room(room.ID)
	_, stillThere := got.Players["a"]
	assert.True(t, stillThere)
	assert.False(t, bSink.has(t, "player_left"), "no player_left is ever broadcast for a reconnected player")
}

func TestReconnectAfterGraceFails(t *testing.T) {
	m, g := newTestManager(50*time.Millisecond, time.Hour)
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	m.HandleDisconnect("a")

	assert.Eventually(t, func() bool {
		got, ok := m.Room(room.ID)
		if !ok {
			return false
		}
		_, there := got.Players["a"]
		return !there
	}, time.Second, 10*time.Millisecond, "player removed once the window elapses")

	_, ok := m.Reconnect(room.ID, "a")
	assert.False(t, ok)
	assert.True(t, bSink.has(t, "player_left"))

	// The departing player was host, so the survivor took over.
	got, _ := m.Room(room.ID)
	assert.Equal(t, domain.UserID("b"), got.HostID)
}

func TestKickIsHostOnly(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	assert.False(t, m.Kick(room.ID, "b", "a"), "non-host cannot kick")
	assert.False(t, m.Kick(room.ID, "a", "a"), "host cannot kick itself")
	assert.False(t, m.Kick(room.ID, "a", "ghost"))

	require.True(t, m.Kick(room.ID, "a", "b"))
	assert.True(t, bSink.has(t, "kicked_from_room"))

	got, _ := m.Room(room.ID)
	_, there := got.Players["b"]
	assert.False(t, there)
}

func TestChatReachesWholeRoom(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	aSink := connect(g, "a")
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	m.Chat("a", "glhf")

	for _, s := range []*sink{aSink, bSink} {
		ev := s.last(t, "chat_message")
		require.NotNil(t, ev)
		assert.Equal(t, "glhf", ev["message"])
		assert.Equal(t, "a", ev["from"])
	}
}

func TestRoomListSkipsPrivate(t *testing.T) {
	m, _ := newTestManager(time.Hour, time.Hour)

	m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	private := domain.DefaultGameSettings()
	private.IsPrivate = true
	m.Create(player("b"), "secret", private)

	list := m.RoomList()
	require.Len(t, list, 1)
	assert.Equal(t, "trivia", list[0].GameID)
}

func TestCloseIdle(t *testing.T) {
	m, g := newTestManager(time.Hour, time.Hour)
	aSink := connect(g, "a")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())

	// Fresh room survives a sweep with a cutoff in the past.
	assert.Equal(t, 0, m.CloseIdle(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)))

	// A cutoff beyond its lastActivity reaps it, members notified first.
	assert.Equal(t, 1, m.CloseIdle(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, aSink.has(t, "room_closed"))
	assert.Equal(t, "idle", aSink.last(t, "room_closed")["reason"])

	_, ok := m.Room(room.ID)
	assert.False(t, ok)
	_, ok = m.RoomOf("a")
	assert.False(t, ok, "player-to-room index entries removed with the room")
}

// The end-to-end flow from the activity's perspective: create, join, ready
// up, start, migrate host, end, and fall off the room list.
func TestFullSessionLifecycle(t *testing.T) {
	m, g := newTestManager(time.Hour, 50*time.Millisecond)
	aSink := connect(g, "a")
	bSink := connect(g, "b")

	settings := domain.DefaultGameSettings()
	settings.MaxPlayers = 4
	room := m.Create(player("a"), "kart", settings)
	_, err := m.Join(room.ID, player("b"))
	require.NoError(t, err)

	m.SetReady("a", true)
	m.SetReady("b", true)
	require.True(t, m.Start(room.ID, "a"))
	assert.True(t, aSink.has(t, "game_started"))
	assert.True(t, bSink.has(t, "game_started"))

	m.Leave("a")
	ev := bSink.last(t, "host_changed")
	require.NotNil(t, ev)
	assert.Equal(t, "b", ev["newHost"])

	require.True(t, m.End(room.ID, "b", json.RawMessage(`{"winner":"b"}`)))
	assert.True(t, bSink.has(t, "game_ended"))

	assert.Eventually(t, func() bool {
		return len(m.RoomList()) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestStaleDisconnectDoesNotEvictLivePlayer(t *testing.T) {
	m, g := newTestManager(50*time.Millisecond, time.Hour)
	connect(g, "a")
	bSink := connect(g, "b")

	room := m.Create(player("a"), "trivia", domain.DefaultGameSettings())
	m.Join(room.ID, player("b"))

	// Network blip: the replacement socket reconnects, then the old
	// socket's teardown lands late and re-arms the grace timer.
	m.HandleDisconnect("a")
	_, ok := m.Reconnect(room.ID, "a")
	require.True(t, ok)
	m.HandleDisconnect("a")

	time.Sleep(150 * time.Millisecond)

	got, ok := m.Room(room.ID)
	require.True(t, ok)
	p, there := got.Players["a"]
	require.True(t, there, "live player survives the stale grace expiry")
	assert.True(t, p.IsConnected, "liveness restored from the registered sink")
	assert.False(t, bSink.has(t, "player_left"))
	assert.Equal(t, domain.UserID("a"), got.HostID)
}
