package domain

import "time"

type RepeatMode string

const (
	RepeatNone RepeatMode = "none"
	RepeatOne  RepeatMode = "one"
	RepeatAll  RepeatMode = "all"
)

const (
	MinVolume = 0
	MaxVolume = 100
)

type Track struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	URL      string    `json:"url"`
	Duration float64   `json:"duration,omitempty"`
	AddedBy  UserID    `json:"addedBy"`
	AddedAt  time.Time `json:"addedAt"`
}

// PlaybackState is the canonical room-scoped player state. Invariants:
// Position >= 0 and Playing implies CurrentTrack != nil.
type PlaybackState struct {
	Playing      bool       `json:"playing"`
	CurrentTrack *Track     `json:"currentTrack"`
	Queue        []Track    `json:"queue"`
	Volume       int        `json:"volume"`
	Position     float64    `json:"position"`
	Repeat       RepeatMode `json:"repeat"`
	Shuffle      bool       `json:"shuffle"`
}

func NewPlaybackState() *PlaybackState {
	return &PlaybackState{
		Queue:  make([]Track, 0),
		Volume: 50,
		Repeat: RepeatNone,
	}
}
