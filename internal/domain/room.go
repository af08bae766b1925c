package domain

import "time"

type (
	RoomID   string
	RoomName string
)

const MaxRoomNameLen = 36

type RoomType string

const (
	RoomChat  RoomType = "chat"
	RoomVoice RoomType = "voice"
	RoomGame  RoomType = "game"
)

type RoomSettings struct {
	MaxUsers int  `json:"maxUsers"`
	Private  bool `json:"private"`
}

func DefaultRoomSettings() RoomSettings {
	return RoomSettings{MaxUsers: 50}
}

// Room is a generic chat/voice grouping of identities. Game sessions use
// GameRoom instead.
type Room struct {
	ID        RoomID       `json:"id"`
	Name      RoomName     `json:"name"`
	Type      RoomType     `json:"type"`
	Settings  RoomSettings `json:"settings"`
	CreatedAt time.Time    `json:"createdAt"`
}
