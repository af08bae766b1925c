package core

import (
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/domain"
)

// Playback owns the per-room shared player state. State is created lazily
// on the first playback command for a room and lives exactly as long as the
// room is registered; nothing here touches durable storage, so a process
// restart loses it. Every mutating call returns the entire current state so
// one idempotent state-update event per command is enough for any client to
// reconstruct the session.
type Playback struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*domain.PlaybackState
}

func NewPlayback() *Playback {
	return &Playback{rooms: make(map[domain.RoomID]*domain.PlaybackState)}
}

func (p *Playback) stateLocked(roomID domain.RoomID) *domain.PlaybackState {
	st, ok := p.rooms[roomID]
	if !ok {
		st = domain.NewPlaybackState()
		p.rooms[roomID] = st
	}
	return st
}

// Play sets an explicit track and resets position. Queue advancement never
// happens here; it is Skip's job.
func (p *Playback) Play(roomID domain.RoomID, track domain.Track) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	st.CurrentTrack = &track
	st.Playing = true
	st.Position = 0
	log.Info().Str("module", "core.playback").Str("room", string(roomID)).Str("track", track.ID).Msg("play")
	return cloneState(st)
}

func (p *Playback) Pause(roomID domain.RoomID) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	st.Playing = false
	return cloneState(st)
}

// Resume flips playing back on; without a current track it is a no-op.
func (p *Playback) Resume(roomID domain.RoomID) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	if st.CurrentTrack != nil {
		st.Playing = true
	}
	return cloneState(st)
}

// Seek clamps negative positions to zero. Seeking past the track duration
// is accepted; clients treat it as end-of-track.
func (p *Playback) Seek(roomID domain.RoomID, position float64) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	if position < 0 {
		position = 0
	}
	st.Position = position
	return cloneState(st)
}

func (p *Playback) SetVolume(roomID domain.RoomID, volume int) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	if volume < domain.MinVolume {
		volume = domain.MinVolume
	}
	if volume > domain.MaxVolume {
		volume = domain.MaxVolume
	}
	st.Volume = volume
	return cloneState(st)
}

func (p *Playback) SetShuffle(roomID domain.RoomID, shuffle bool) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	st.Shuffle = shuffle
	return cloneState(st)
}

func (p *Playback) SetRepeat(roomID domain.RoomID, mode domain.RepeatMode) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	switch mode {
	case domain.RepeatNone, domain.RepeatOne, domain.RepeatAll:
		st.Repeat = mode
	}
	return cloneState(st)
}

func (p *Playback) AddToQueue(roomID domain.RoomID, track domain.Track) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	st.Queue = append(st.Queue, track)
	log.Info().Str("module", "core.playback").Str("room", string(roomID)).Str("track", track.ID).Int("queue", len(st.Queue)).Msg("queued")
	return cloneState(st)
}

// RemoveFromQueue drops the entry at index; out-of-range indexes are a no-op.
func (p *Playback) RemoveFromQueue(roomID domain.RoomID, index int) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)
	if index >= 0 && index < len(st.Queue) {
		st.Queue = append(st.Queue[:index], st.Queue[index+1:]...)
	}
	return cloneState(st)
}

// Skip advances to the next queued track. Repeat-one replays the current
// track; repeat-all re-queues it behind the rest. With an empty queue the
// player simply stops.
func (p *Playback) Skip(roomID domain.RoomID) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := p.stateLocked(roomID)

	if st.Repeat == domain.RepeatOne && st.CurrentTrack != nil {
		st.Position = 0
		st.Playing = true
		return cloneState(st)
	}
	if st.Repeat == domain.RepeatAll && st.CurrentTrack != nil {
		st.Queue = append(st.Queue, *st.CurrentTrack)
	}

	if len(st.Queue) == 0 {
		st.CurrentTrack = nil
		st.Playing = false
		st.Position = 0
		return cloneState(st)
	}

	i := 0
	if st.Shuffle {
		i = rand.IntN(len(st.Queue))
	}
	next := st.Queue[i]
	st.Queue = append(st.Queue[:i], st.Queue[i+1:]...)
	st.CurrentTrack = &next
	st.Playing = true
	st.Position = 0
	log.Info().Str("module", "core.playback").Str("room", string(roomID)).Str("track", next.ID).Msg("skip")
	return cloneState(st)
}

// Snapshot returns the current state without mutating, creating it lazily
// like every other operation.
func (p *Playback) Snapshot(roomID domain.RoomID) domain.PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return cloneState(p.stateLocked(roomID))
}

// Stop tears the room's player state down; called when the room itself goes.
func (p *Playback) Stop(roomID domain.RoomID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.rooms, roomID)
}

// PlayingRoom pairs a room id with its state for the sync heartbeat.
type PlayingRoom struct {
	RoomID domain.RoomID
	State  domain.PlaybackState
}

func (p *Playback) PlayingRooms() []PlayingRoom {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PlayingRoom, 0, len(p.rooms))
	for id, st := range p.rooms {
		if st.Playing {
			out = append(out, PlayingRoom{RoomID: id, State: cloneState(st)})
		}
	}
	return out
}

func cloneState(st *domain.PlaybackState) domain.PlaybackState {
	out := *st
	out.Queue = append([]domain.Track(nil), st.Queue...)
	if st.CurrentTrack != nil {
		t := *st.CurrentTrack
		out.CurrentTrack = &t
	}
	return out
}
