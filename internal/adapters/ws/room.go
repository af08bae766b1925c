package ws

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/domain"
)

// join_room covers both generic rooms and game rooms; a payload with
// game=true (or a room id the game manager knows) takes the game path.
func (ctl *Controller) handleJoinRoom(id domain.Identity, c *wsConn, data []byte) {
	var p struct {
		Type string `json:"type"`
		Room string `json:"room"`
		Game bool   `json:"game,omitempty"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Room == "" {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	roomID := domain.RoomID(p.Room)

	if p.Game {
		ctl.joinGame(id, c, roomID)
		return
	}
	if _, ok := ctl.Games.Room(roomID); ok {
		ctl.joinGame(id, c, roomID)
		return
	}

	view, err := ctl.Rooms.Join(roomID, id)
	if err != nil {
		ctl.sendError(c, "room_error", err.Error())
		return
	}
	ctl.sendJSON(c, struct {
		Type    string               `json:"type"`
		Room    domain.Room          `json:"room"`
		Members any                  `json:"members"`
		Count   int                  `json:"count"`
		State   domain.PlaybackState `json:"state"`
	}{
		Type:    "room_joined",
		Room:    view.Room,
		Members: view.Members,
		Count:   view.Count,
		State:   ctl.Playback.Snapshot(roomID),
	})
	log.Info().Str("module", "ws").Str("user", string(id.UserID)).Str("room", p.Room).Msg("joined room")
}

// leave_room leaves whichever kind of room the user is in. Leaving a room
// that is already gone is a benign no-op.
func (ctl *Controller) handleLeaveRoom(id domain.Identity, c *wsConn) {
	if _, ok := ctl.Games.RoomOf(id.UserID); ok {
		ctl.Games.Leave(id.UserID)
		ctl.sendJSON(c, map[string]any{"type": "left_room"})
		return
	}
	if roomID, ok := ctl.Rooms.RoomOf(id.UserID); ok {
		ctl.Rooms.Leave(roomID, id.UserID)
	}
	ctl.sendJSON(c, map[string]any{"type": "left_room"})
}

// sync_request lets a client that missed broadcasts rebuild everything from
// one response.
func (ctl *Controller) handleSyncRequest(id domain.Identity, c *wsConn) {
	resp := struct {
		Type       string                `json:"type"`
		ServerTime int64                 `json:"serverTime"`
		Room       *domain.Room          `json:"room,omitempty"`
		State      *domain.PlaybackState `json:"state,omitempty"`
		GameRoom   *domain.GameRoom      `json:"gameRoom,omitempty"`
	}{
		Type:       "sync_response",
		ServerTime: time.Now().UnixMilli(),
	}
	if roomID, ok := ctl.Rooms.RoomOf(id.UserID); ok {
		if view, ok := ctl.Rooms.Get(roomID); ok {
			resp.Room = &view.Room
			st := ctl.Playback.Snapshot(roomID)
			resp.State = &st
		}
	}
	if roomID, ok := ctl.Games.RoomOf(id.UserID); ok {
		if room, ok := ctl.Games.Room(roomID); ok {
			resp.GameRoom = &room
		}
	}
	ctl.sendJSON(c, resp)
}
