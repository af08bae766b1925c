package app

import (
	"encoding/json"

	"github.com/mellivod/Lounge/internal/domain"
)

// Broadcast payloads. Every event carries its wire name in Type so a single
// idempotent message is enough for clients to dispatch on.

type playerJoined struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Player domain.Player `json:"player"`
}

type playerLeft struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Player domain.UserID `json:"player"`
	Reason string        `json:"reason,omitempty"`
}

type hostChanged struct {
	Type    string        `json:"type"`
	Room    domain.RoomID `json:"room"`
	NewHost domain.UserID `json:"newHost"`
}

type playerReadyChanged struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Player domain.UserID `json:"player"`
	Ready  bool          `json:"ready"`
}

type gameStarted struct {
	Type      string              `json:"type"`
	Room      domain.RoomID       `json:"room"`
	GameState json.RawMessage     `json:"gameState,omitempty"`
	Settings  domain.GameSettings `json:"settings"`
}

type gameStateUpdate struct {
	Type      string          `json:"type"`
	Room      domain.RoomID   `json:"room"`
	From      domain.UserID   `json:"from"`
	Timestamp int64           `json:"timestamp"`
	Seq       uint64          `json:"seq"`
	GameState json.RawMessage `json:"gameState"`
}

type playerInput struct {
	Type  string          `json:"type"`
	Room  domain.RoomID   `json:"room"`
	From  domain.UserID   `json:"from"`
	Input json.RawMessage `json:"input"`
}

type gameEnded struct {
	Type    string          `json:"type"`
	Room    domain.RoomID   `json:"room"`
	Results json.RawMessage `json:"results,omitempty"`
}

type kickedFromRoom struct {
	Type string        `json:"type"`
	Room domain.RoomID `json:"room"`
}

type playerReconnected struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Player domain.UserID `json:"player"`
}

type chatMessage struct {
	Type      string        `json:"type"`
	Room      domain.RoomID `json:"room"`
	From      domain.UserID `json:"from"`
	Username  string        `json:"username"`
	Message   string        `json:"message"`
	Timestamp int64         `json:"timestamp"`
}

type roomClosed struct {
	Type   string        `json:"type"`
	Room   domain.RoomID `json:"room"`
	Reason string        `json:"reason"`
}
