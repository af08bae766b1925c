package ws

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/mellivod/Lounge/internal/domain"
)

// currentRoom resolves which room a playback command applies to. Commands
// from a user outside any room get an error event on their own connection
// and no broadcast.
func (ctl *Controller) currentRoom(id domain.Identity, c *wsConn) (domain.RoomID, bool) {
	roomID, ok := ctl.Rooms.RoomOf(id.UserID)
	if !ok {
		ctl.sendError(c, "room_error", "not in a room")
	}
	return roomID, ok
}

// broadcastState emits the one idempotent full-state event every mutating
// playback command produces.
func (ctl *Controller) broadcastState(roomID domain.RoomID, state domain.PlaybackState) {
	ctl.Gateway.ToUsers(ctl.Rooms.MemberIDs(roomID), struct {
		Type       string               `json:"type"`
		Room       domain.RoomID        `json:"room"`
		State      domain.PlaybackState `json:"state"`
		ServerTime int64                `json:"serverTime"`
	}{
		Type:       "music_state_update",
		Room:       roomID,
		State:      state,
		ServerTime: time.Now().UnixMilli(),
	})
}

func (ctl *Controller) handleMusicPlay(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type  string `json:"type"`
		Track struct {
			ID       string  `json:"id"`
			Title    string  `json:"title"`
			URL      string  `json:"url"`
			Duration float64 `json:"duration"`
		} `json:"track"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Track.URL == "" {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	track := domain.Track{
		ID:       p.Track.ID,
		Title:    p.Track.Title,
		URL:      p.Track.URL,
		Duration: p.Track.Duration,
		AddedBy:  id.UserID,
		AddedAt:  time.Now(),
	}
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	ctl.broadcastState(roomID, ctl.Playback.Play(roomID, track))
}

// handleMusicSimple covers the zero-payload commands (pause/resume/skip).
func (ctl *Controller) handleMusicSimple(id domain.Identity, c *wsConn, op func(domain.RoomID) domain.PlaybackState) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	ctl.broadcastState(roomID, op(roomID))
}

func (ctl *Controller) handleMusicSeek(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type     string  `json:"type"`
		Position float64 `json:"position"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	ctl.broadcastState(roomID, ctl.Playback.Seek(roomID, p.Position))
}

func (ctl *Controller) handleMusicVolume(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type   string `json:"type"`
		Volume int    `json:"volume"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	ctl.broadcastState(roomID, ctl.Playback.SetVolume(roomID, p.Volume))
}

func (ctl *Controller) handleMusicShuffle(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type    string `json:"type"`
		Shuffle bool   `json:"shuffle"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	ctl.broadcastState(roomID, ctl.Playback.SetShuffle(roomID, p.Shuffle))
}

func (ctl *Controller) handleMusicRepeat(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type   string `json:"type"`
		Repeat string `json:"repeat"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	ctl.broadcastState(roomID, ctl.Playback.SetRepeat(roomID, domain.RepeatMode(p.Repeat)))
}

func (ctl *Controller) handlePlaylistAdd(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type  string `json:"type"`
		Track struct {
			ID       string  `json:"id"`
			Title    string  `json:"title"`
			URL      string  `json:"url"`
			Duration float64 `json:"duration"`
		} `json:"track"`
	}
	if err := json.Unmarshal(data, &p); err != nil || p.Track.URL == "" {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	track := domain.Track{
		ID:       p.Track.ID,
		Title:    p.Track.Title,
		URL:      p.Track.URL,
		Duration: p.Track.Duration,
		AddedBy:  id.UserID,
		AddedAt:  time.Now(),
	}
	if track.ID == "" {
		track.ID = uuid.NewString()
	}
	ctl.broadcastState(roomID, ctl.Playback.AddToQueue(roomID, track))
}

func (ctl *Controller) handlePlaylistRemove(id domain.Identity, c *wsConn, data []byte) {
	roomID, ok := ctl.currentRoom(id, c)
	if !ok {
		return
	}
	var p struct {
		Type  string `json:"type"`
		Index int    `json:"index"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "room_error", "bad_payload")
		return
	}
	ctl.broadcastState(roomID, ctl.Playback.RemoveFromQueue(roomID, p.Index))
}
