package domain

import (
	"encoding/json"
	"time"
)

type GameStatus string

const (
	GameWaiting  GameStatus = "waiting"
	GamePlaying  GameStatus = "playing"
	GameFinished GameStatus = "finished"
)

type GameSettings struct {
	MaxPlayers       int    `json:"maxPlayers"`
	Difficulty       string `json:"difficulty"`
	GameMode         string `json:"gameMode"`
	IsPrivate        bool   `json:"isPrivate"`
	AllowSpectators  bool   `json:"allowSpectators"`
	AntiCheatEnabled bool   `json:"antiCheatEnabled"`
}

func DefaultGameSettings() GameSettings {
	return GameSettings{
		MaxPlayers:       4,
		Difficulty:       "normal",
		GameMode:         "classic",
		AllowSpectators:  true,
		AntiCheatEnabled: true,
	}
}

// Performance is client-reported telemetry, stored per player.
type Performance struct {
	FPS        float64 `json:"fps"`
	Latency    float64 `json:"latency"`
	PacketLoss float64 `json:"packetLoss"`
}

// Player is the per-user participation record inside a GameRoom.
// GameState is an opaque per-game payload; this layer never interprets it
// beyond anti-cheat plausibility checks.
type Player struct {
	ID          UserID          `json:"id"`
	Username    string          `json:"username"`
	Avatar      string          `json:"avatar,omitempty"`
	IsHost      bool            `json:"isHost"`
	IsReady     bool            `json:"isReady"`
	IsConnected bool            `json:"isConnected"`
	JoinedAt    time.Time       `json:"joinedAt"`
	LastPing    time.Time       `json:"lastPing"`
	Performance Performance     `json:"performance"`
	GameState   json.RawMessage `json:"gameState,omitempty"`
}

func NewPlayer(id Identity, now time.Time) *Player {
	return &Player{
		ID:          id.UserID,
		Username:    id.Username,
		Avatar:      id.Avatar,
		IsConnected: true,
		JoinedAt:    now,
		LastPing:    now,
	}
}

// GameRoom is the multiplayer session variant of a room. While non-empty,
// exactly one player has IsHost set.
type GameRoom struct {
	ID           RoomID             `json:"id"`
	GameID       string             `json:"gameId"`
	HostID       UserID             `json:"hostId"`
	Players      map[UserID]*Player `json:"players"`
	GameState    json.RawMessage    `json:"gameState,omitempty"`
	Settings     GameSettings       `json:"settings"`
	Status       GameStatus         `json:"status"`
	CreatedAt    time.Time          `json:"createdAt"`
	LastActivity time.Time          `json:"lastActivity"`
}

// StateUpdate is one tick of a player's state-sync stream. Timestamp is
// unix milliseconds as reported by the client clock.
type StateUpdate struct {
	Timestamp int64           `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	GameState json.RawMessage `json:"gameState"`
}
