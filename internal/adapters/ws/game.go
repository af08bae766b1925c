package ws

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/app"
	"github.com/mellivod/Lounge/internal/domain"
)

func (ctl *Controller) handleCreateGame(id domain.Identity, c *wsConn, data []byte) {
	var p struct {
		Type     string               `json:"type"`
		GameID   string               `json:"gameId"`
		Settings *domain.GameSettings `json:"settings"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.GameID == "" {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	settings := domain.DefaultGameSettings()
	if p.Settings != nil {
		settings = *p.Settings
	}

	room := ctl.Games.Create(id, p.GameID, settings)
	ctl.sendJSON(c, struct {
		Type string          `json:"type"`
		Room domain.GameRoom `json:"room"`
	}{
		Type: "room_created",
		Room: room,
	})
}

func (ctl *Controller) joinGame(id domain.Identity, c *wsConn, roomID domain.RoomID) {
	room, err := ctl.Games.Join(roomID, id)
	if err != nil {
		switch err {
		case app.ErrRoomFull:
			ctl.sendError(c, "join_room_error", "room is full")
		case app.ErrGameInProgress:
			ctl.sendError(c, "join_room_error", "game already in progress")
		default:
			ctl.sendError(c, "join_room_error", "room not found")
		}
		return
	}
	ctl.sendJSON(c, struct {
		Type string          `json:"type"`
		Room domain.GameRoom `json:"room"`
	}{
		Type: "room_joined",
		Room: room,
	})
	// Late joiners get the current state immediately instead of waiting for
	// the next player tick.
	if len(room.GameState) > 0 {
		ctl.sendJSON(c, struct {
			Type      string          `json:"type"`
			Room      domain.RoomID   `json:"room"`
			GameState json.RawMessage `json:"gameState"`
		}{
			Type:      "game_state_sync",
			Room:      roomID,
			GameState: room.GameState,
		})
	}
	log.Info().Str("module", "ws").Str("user", string(id.UserID)).Str("room", string(roomID)).Msg("joined game room")
}

func (ctl *Controller) handlePlayerReady(id domain.Identity, data []byte) {
	var p struct {
		Type  string `json:"type"`
		Ready bool   `json:"ready"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ctl.Games.SetReady(id.UserID, p.Ready)
}

func (ctl *Controller) handleStartGame(id domain.Identity, c *wsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)
	if roomID == "" {
		roomID, _ = ctl.Games.RoomOf(id.UserID)
	}
	if !ctl.Games.Start(roomID, id.UserID) {
		// The manager mutates nothing and stays silent on a refused start;
		// the requester alone hears about it.
		ctl.sendError(c, "room_error", "cannot start: not host or not all players ready")
	}
}

func (ctl *Controller) handleGameStateUpdate(id domain.Identity, data []byte) {
	var p struct {
		Type   string             `json:"type"`
		Update domain.StateUpdate `json:"update"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	// Rejections (anti-cheat or no room) are deliberately silent.
	ctl.Games.UpdateState(id.UserID, p.Update)
}

func (ctl *Controller) handlePlayerInput(id domain.Identity, data []byte) {
	var p struct {
		Type  string          `json:"type"`
		Input json.RawMessage `json:"input"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ctl.Games.RelayInput(id.UserID, p.Input)
}

func (ctl *Controller) handleGameEnd(id domain.Identity, c *wsConn, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		Room    string          `json:"room"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)
	if roomID == "" {
		roomID, _ = ctl.Games.RoomOf(id.UserID)
	}
	if !ctl.Games.End(roomID, id.UserID, p.Results) {
		ctl.sendError(c, "room_error", "cannot end: not host")
	}
}

func (ctl *Controller) handleRoomList(c *wsConn) {
	ctl.sendJSON(c, struct {
		Type  string            `json:"type"`
		Rooms []app.RoomSummary `json:"rooms"`
	}{
		Type:  "room_list",
		Rooms: ctl.Games.RoomList(),
	})
}

func (ctl *Controller) handlePing(id domain.Identity, c *wsConn) {
	ctl.Games.Ping(id.UserID)
	ctl.sendJSON(c, struct {
		Type       string `json:"type"`
		ServerTime int64  `json:"serverTime"`
	}{
		Type:       "ping_response",
		ServerTime: time.Now().UnixMilli(),
	})
}

func (ctl *Controller) handlePerformance(id domain.Identity, data []byte) {
	var p struct {
		Type        string             `json:"type"`
		Performance domain.Performance `json:"performance"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	ctl.Games.UpdatePerformance(id.UserID, p.Performance)
}

func (ctl *Controller) handleChat(id domain.Identity, data []byte) {
	var p struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Message == "" {
		return
	}
	ctl.Games.Chat(id.UserID, p.Message)
}

func (ctl *Controller) handleKick(id domain.Identity, c *wsConn, data []byte) {
	var p struct {
		Type   string `json:"type"`
		Room   string `json:"room"`
		Target string `json:"target"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Target == "" {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)
	if roomID == "" {
		roomID, _ = ctl.Games.RoomOf(id.UserID)
	}
	if !ctl.Games.Kick(roomID, id.UserID, domain.UserID(p.Target)) {
		ctl.sendError(c, "room_error", "cannot kick: not host or no such player")
	}
}

func (ctl *Controller) handleReconnect(id domain.Identity, c *wsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	room, ok := ctl.Games.Reconnect(domain.RoomID(p.Room), id.UserID)
	if !ok {
		// Grace window elapsed, the player record is gone; the client has
		// to join fresh.
		ctl.sendError(c, "room_error", "reconnect window expired")
		return
	}
	ctl.sendJSON(c, struct {
		Type string          `json:"type"`
		Room domain.GameRoom `json:"room"`
	}{
		Type: "reconnected_to_room",
		Room: room,
	})
}
