// Package app hosts the multiplayer session coordination: game rooms, host
// migration, state-sync relay with anti-cheat gating, and the idle reaper.
package app

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/core"
	"github.com/mellivod/Lounge/internal/domain"
)

var (
	ErrRoomNotFound   = errors.New("room not found")
	ErrRoomFull       = errors.New("room full")
	ErrGameInProgress = errors.New("game already in progress")
)

// Manager owns all game rooms and their player rosters. Per room there is a
// small state machine (waiting -> playing -> finished, no way back) plus the
// anti-cheat gate in front of state-sync relay. All maps are owned
// exclusively by the manager; other components only see notifications
// through the gateway.
type Manager struct {
	mu       sync.Mutex
	rooms    map[domain.RoomID]*domain.GameRoom
	byPlayer map[domain.UserID]domain.RoomID

	// graceTimers holds pending disconnect removals, cancelled on reconnect.
	graceTimers map[domain.UserID]*time.Timer

	gateway   *core.Gateway
	validator *AntiCheat

	disconnectGrace time.Duration
	finishedGrace   time.Duration

	now func() time.Time
}

func NewManager(gateway *core.Gateway, validator *AntiCheat, disconnectGrace, finishedGrace time.Duration) *Manager {
	return &Manager{
		rooms:           make(map[domain.RoomID]*domain.GameRoom),
		byPlayer:        make(map[domain.UserID]domain.RoomID),
		graceTimers:     make(map[domain.UserID]*time.Timer),
		gateway:         gateway,
		validator:       validator,
		disconnectGrace: disconnectGrace,
		finishedGrace:   finishedGrace,
		now:             time.Now,
	}
}

// Create opens a room in the waiting state with the host auto-joined as its
// first player. If the host currently occupies another game room it leaves
// that one first.
func (m *Manager) Create(host domain.Identity, gameID string, settings domain.GameSettings) domain.GameRoom {
	if settings.MaxPlayers <= 0 {
		settings.MaxPlayers = domain.DefaultGameSettings().MaxPlayers
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.byPlayer[host.UserID]; ok {
		m.leaveLocked(prev, host.UserID, "switched room")
	}

	now := m.now()
	p := domain.NewPlayer(host, now)
	p.IsHost = true

	room := &domain.GameRoom{
		ID:           domain.RoomID(uuid.NewString()),
		GameID:       gameID,
		HostID:       host.UserID,
		Players:      map[domain.UserID]*domain.Player{host.UserID: p},
		Settings:     settings,
		Status:       domain.GameWaiting,
		CreatedAt:    now,
		LastActivity: now,
	}
	m.rooms[room.ID] = room
	m.byPlayer[host.UserID] = room.ID

	log.Info().Str("module", "app.game").Str("room", string(room.ID)).Str("game", gameID).Str("host", string(host.UserID)).Msg("game room created")
	return cloneRoom(room)
}

// Join adds a player, rejecting on capacity or on a running game that does
// not allow spectators. Rejection causes no state mutation and no broadcast.
func (m *Manager) Join(roomID domain.RoomID, id domain.Identity) (domain.GameRoom, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return domain.GameRoom{}, ErrRoomNotFound
	}
	if _, already := room.Players[id.UserID]; already {
		return cloneRoom(room), nil
	}
	if len(room.Players) >= room.Settings.MaxPlayers {
		return domain.GameRoom{}, ErrRoomFull
	}
	if room.Status == domain.GamePlaying && !room.Settings.AllowSpectators {
		return domain.GameRoom{}, ErrGameInProgress
	}

	if prev, ok := m.byPlayer[id.UserID]; ok && prev != roomID {
		m.leaveLocked(prev, id.UserID, "switched room")
	}

	p := domain.NewPlayer(id, m.now())
	room.Players[id.UserID] = p
	m.byPlayer[id.UserID] = roomID
	room.LastActivity = m.now()

	m.gateway.ToUsers(otherPlayerIDs(room, id.UserID), playerJoined{
		Type:   "player_joined",
		Room:   roomID,
		Player: *p,
	})
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Str("player", string(id.UserID)).Msg("player joined")
	return cloneRoom(room), nil
}

// Leave runs the departure path: host migration to the earliest-joined
// remaining player, deletion when the roster empties.
func (m *Manager) Leave(uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if roomID, ok := m.byPlayer[uid]; ok {
		m.leaveLocked(roomID, uid, "left")
	}
}

func (m *Manager) leaveLocked(roomID domain.RoomID, uid domain.UserID, reason string) {
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	p, ok := room.Players[uid]
	if !ok {
		return
	}
	delete(room.Players, uid)
	delete(m.byPlayer, uid)
	m.cancelGraceLocked(uid)

	if len(room.Players) == 0 {
		delete(m.rooms, roomID)
		log.Info().Str("module", "app.game").Str("room", string(roomID)).Msg("game room destroyed")
		return
	}

	if p.IsHost {
		next := earliestJoined(room)
		next.IsHost = true
		room.HostID = next.ID
		m.gateway.ToUsers(playerIDs(room), hostChanged{
			Type:    "host_changed",
			Room:    roomID,
			NewHost: next.ID,
		})
		log.Info().Str("module", "app.game").Str("room", string(roomID)).Str("host", string(next.ID)).Msg("host migrated")
	}

	m.gateway.ToUsers(playerIDs(room), playerLeft{
		Type:   "player_left",
		Room:   roomID,
		Player: uid,
		Reason: reason,
	})
}

// earliestJoined picks the deterministic promotion target.
func earliestJoined(room *domain.GameRoom) *domain.Player {
	var next *domain.Player
	for _, p := range room.Players {
		if next == nil || p.JoinedAt.Before(next.JoinedAt) {
			next = p
		}
	}
	return next
}

// SetReady flips the player's ready flag and tells the room.
func (m *Manager) SetReady(uid domain.UserID, ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	room := m.rooms[roomID]
	p, ok := room.Players[uid]
	if !ok {
		return
	}
	p.IsReady = ready
	room.LastActivity = m.now()
	m.gateway.ToUsers(playerIDs(room), playerReadyChanged{
		Type:   "player_ready_changed",
		Room:   roomID,
		Player: uid,
		Ready:  ready,
	})
}

// Start transitions waiting -> playing iff the caller is host and every
// player is ready. Anything else leaves state untouched and emits nothing;
// the caller surfaces the failure to its own connection.
func (m *Manager) Start(roomID domain.RoomID, hostID domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok || room.Status != domain.GameWaiting || room.HostID != hostID {
		return false
	}
	for _, p := range room.Players {
		if !p.IsReady {
			return false
		}
	}
	room.Status = domain.GamePlaying
	room.LastActivity = m.now()
	m.gateway.ToUsers(playerIDs(room), gameStarted{
		Type:      "game_started",
		Room:      roomID,
		GameState: room.GameState,
		Settings:  room.Settings,
	})
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Msg("game started")
	return true
}

// UpdateState is the per-tick sync path. The validator runs first when the
// room has anti-cheat on; a rejected update is dropped from the relay
// without any feedback to the sender, but logged for out-of-band review.
func (m *Manager) UpdateState(uid domain.UserID, upd domain.StateUpdate) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return false
	}
	room := m.rooms[roomID]
	p, ok := room.Players[uid]
	if !ok {
		return false
	}

	if room.Settings.AntiCheatEnabled {
		if err := m.validator.Validate(upd); err != nil {
			log.Warn().Str("module", "app.game").Str("room", string(roomID)).Str("player", string(uid)).Err(err).Msg("state update rejected")
			return false
		}
	}

	p.GameState = upd.GameState
	room.LastActivity = m.now()

	m.gateway.ToUsers(otherPlayerIDs(room, uid), gameStateUpdate{
		Type:      "game_state_update",
		Room:      roomID,
		From:      uid,
		Timestamp: upd.Timestamp,
		Seq:       upd.Seq,
		GameState: upd.GameState,
	})
	return true
}

// RelayInput forwards raw player input to the rest of the room unchanged.
func (m *Manager) RelayInput(uid domain.UserID, input json.RawMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	room := m.rooms[roomID]
	room.LastActivity = m.now()
	m.gateway.ToUsers(otherPlayerIDs(room, uid), playerInput{
		Type:  "player_input",
		Room:  roomID,
		From:  uid,
		Input: input,
	})
}

// End is host-only; it finishes the game and keeps the room readable for a
// grace window so clients can fetch final results before teardown.
func (m *Manager) End(roomID domain.RoomID, hostID domain.UserID, results json.RawMessage) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok || room.HostID != hostID || room.Status == domain.GameFinished {
		return false
	}
	room.Status = domain.GameFinished
	room.LastActivity = m.now()
	m.gateway.ToUsers(playerIDs(room), gameEnded{
		Type:    "game_ended",
		Room:    roomID,
		Results: results,
	})
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Msg("game ended")

	time.AfterFunc(m.finishedGrace, func() {
		m.deleteRoom(roomID)
	})
	return true
}

func (m *Manager) deleteRoom(roomID domain.RoomID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return
	}
	for uid := range room.Players {
		delete(m.byPlayer, uid)
		m.cancelGraceLocked(uid)
	}
	delete(m.rooms, roomID)
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Msg("game room removed")
}

// Kick is host-only moderation: the target is told, then runs the normal
// leave path. The live connection itself survives; the target just no
// longer belongs to the room.
func (m *Manager) Kick(roomID domain.RoomID, hostID, target domain.UserID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok || room.HostID != hostID || hostID == target {
		return false
	}
	if _, ok := room.Players[target]; !ok {
		return false
	}
	m.gateway.ToUser(target, kickedFromRoom{
		Type: "kicked_from_room",
		Room: roomID,
	})
	m.leaveLocked(roomID, target, "kicked")
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Str("player", string(target)).Msg("player kicked")
	return true
}

// HandleDisconnect marks the player disconnected and arms the grace timer.
// The roster entry survives until the window elapses, so a reconnect can
// restore it without the room ever seeing a player_left.
func (m *Manager) HandleDisconnect(uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	p, ok := m.rooms[roomID].Players[uid]
	if !ok {
		return
	}
	p.IsConnected = false
	m.cancelGraceLocked(uid)
	m.graceTimers[uid] = time.AfterFunc(m.disconnectGrace, func() {
		m.expireGrace(uid)
	})
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Str("player", string(uid)).Msg("player disconnected, grace armed")
}

func (m *Manager) expireGrace(uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.graceTimers, uid)
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	p, ok := m.rooms[roomID].Players[uid]
	if !ok || p.IsConnected {
		return
	}
	// A live sink means the user reconnected but a stale disconnect re-armed
	// the timer; restore instead of evicting.
	if m.gateway.Connected(uid) {
		p.IsConnected = true
		return
	}
	m.leaveLocked(roomID, uid, "disconnected")
}

// Reconnect restores a player that is still within the grace window. The
// returned snapshot carries the room's current game state for replay. Once
// the window has elapsed the player record is gone and reconnect reports
// failure.
func (m *Manager) Reconnect(roomID domain.RoomID, uid domain.UserID) (domain.GameRoom, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return domain.GameRoom{}, false
	}
	p, ok := room.Players[uid]
	if !ok {
		return domain.GameRoom{}, false
	}
	p.IsConnected = true
	m.cancelGraceLocked(uid)
	room.LastActivity = m.now()

	m.gateway.ToUsers(otherPlayerIDs(room, uid), playerReconnected{
		Type:   "player_reconnected",
		Room:   roomID,
		Player: uid,
	})
	log.Info().Str("module", "app.game").Str("room", string(roomID)).Str("player", string(uid)).Msg("player reconnected")
	return cloneRoom(room), true
}

func (m *Manager) cancelGraceLocked(uid domain.UserID) {
	if t, ok := m.graceTimers[uid]; ok {
		t.Stop()
		delete(m.graceTimers, uid)
	}
}

// Ping refreshes liveness bookkeeping for the player and its room.
func (m *Manager) Ping(uid domain.UserID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	room := m.rooms[roomID]
	if p, ok := room.Players[uid]; ok {
		p.LastPing = m.now()
		room.LastActivity = m.now()
	}
}

// UpdatePerformance stores client-reported telemetry on the player.
func (m *Manager) UpdatePerformance(uid domain.UserID, perf domain.Performance) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	if p, ok := m.rooms[roomID].Players[uid]; ok {
		p.Performance = perf
	}
}

// Chat relays a room-scoped chat line to every member, sender included.
func (m *Manager) Chat(uid domain.UserID, message string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	if !ok {
		return
	}
	room := m.rooms[roomID]
	username := ""
	if p, ok := room.Players[uid]; ok {
		username = p.Username
	}
	room.LastActivity = m.now()
	m.gateway.ToUsers(playerIDs(room), chatMessage{
		Type:      "chat_message",
		Room:      roomID,
		From:      uid,
		Username:  username,
		Message:   message,
		Timestamp: m.now().UnixMilli(),
	})
}

// RoomSummary is the get_room_list view.
type RoomSummary struct {
	ID         domain.RoomID     `json:"id"`
	GameID     string            `json:"gameId"`
	HostID     domain.UserID     `json:"hostId"`
	Players    int               `json:"players"`
	MaxPlayers int               `json:"maxPlayers"`
	Status     domain.GameStatus `json:"status"`
}

// RoomList snapshots the non-private rooms.
func (m *Manager) RoomList() []RoomSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RoomSummary, 0, len(m.rooms))
	for _, room := range m.rooms {
		if room.Settings.IsPrivate {
			continue
		}
		out = append(out, RoomSummary{
			ID:         room.ID,
			GameID:     room.GameID,
			HostID:     room.HostID,
			Players:    len(room.Players),
			MaxPlayers: room.Settings.MaxPlayers,
			Status:     room.Status,
		})
	}
	return out
}

// Room returns a deep snapshot of one room.
func (m *Manager) Room(roomID domain.RoomID) (domain.GameRoom, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[roomID]
	if !ok {
		return domain.GameRoom{}, false
	}
	return cloneRoom(room), true
}

// RoomOf reports the room the player currently occupies.
func (m *Manager) RoomOf(uid domain.UserID) (domain.RoomID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	roomID, ok := m.byPlayer[uid]
	return roomID, ok
}

// CloseIdle force-closes every room whose last activity predates cutoff,
// notifying members before deletion. Used by the reaper sweep.
func (m *Manager) CloseIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	closed := 0
	for roomID, room := range m.rooms {
		if !room.LastActivity.Before(cutoff) {
			continue
		}
		m.gateway.ToUsers(playerIDs(room), roomClosed{
			Type:   "room_closed",
			Room:   roomID,
			Reason: "idle",
		})
		for uid := range room.Players {
			delete(m.byPlayer, uid)
			m.cancelGraceLocked(uid)
		}
		delete(m.rooms, roomID)
		closed++
		log.Info().Str("module", "app.game").Str("room", string(roomID)).Msg("idle room reaped")
	}
	return closed
}

func playerIDs(room *domain.GameRoom) []domain.UserID {
	out := make([]domain.UserID, 0, len(room.Players))
	for uid := range room.Players {
		out = append(out, uid)
	}
	return out
}

func otherPlayerIDs(room *domain.GameRoom, except domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(room.Players))
	for uid := range room.Players {
		if uid != except {
			out = append(out, uid)
		}
	}
	return out
}

func cloneRoom(room *domain.GameRoom) domain.GameRoom {
	out := *room
	out.Players = make(map[domain.UserID]*domain.Player, len(room.Players))
	for uid, p := range room.Players {
		cp := *p
		out.Players[uid] = &cp
	}
	return out
}
