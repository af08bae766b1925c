package core

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/domain"
)

var ErrRoomFull = errors.New("room is full")

// roomEntry keeps membership in join order so snapshots are deterministic.
type roomEntry struct {
	room    domain.Room
	members []domain.Identity
}

func (e *roomEntry) indexOf(uid domain.UserID) int {
	for i, m := range e.members {
		if m.UserID == uid {
			return i
		}
	}
	return -1
}

// RoomView is a read-only snapshot handed to adapters.
type RoomView struct {
	Room    domain.Room `json:"room"`
	Members []MemberDTO `json:"members"`
	Count   int         `json:"count"`
}

// Registry owns the set of generic chat/voice rooms and their membership.
// A user occupies at most one registry room at a time; a room with no
// members is deleted immediately, so no orphan rooms persist.
type Registry struct {
	mu        sync.RWMutex
	rooms     map[domain.RoomID]*roomEntry
	byUser    map[domain.UserID]domain.RoomID
	gateway   *Gateway
	onDestroy func(domain.RoomID)
}

func NewRegistry(gateway *Gateway) *Registry {
	return &Registry{
		rooms:   make(map[domain.RoomID]*roomEntry),
		byUser:  make(map[domain.UserID]domain.RoomID),
		gateway: gateway,
	}
}

// OnDestroy registers a hook invoked whenever a room is deleted, so state
// keyed by room id elsewhere is torn down with it. Set once during wiring,
// before any traffic.
func (r *Registry) OnDestroy(fn func(domain.RoomID)) {
	r.onDestroy = fn
}

// Create registers an empty room with an explicit type and settings.
func (r *Registry) Create(name domain.RoomName, typ domain.RoomType, settings domain.RoomSettings) domain.Room {
	if len(name) > domain.MaxRoomNameLen {
		name = name[:domain.MaxRoomNameLen]
	}
	room := domain.Room{
		ID:        domain.RoomID(uuid.NewString()),
		Name:      name,
		Type:      typ,
		Settings:  settings,
		CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.rooms[room.ID] = &roomEntry{room: room}
	r.mu.Unlock()
	log.Info().Str("module", "core.registry").Str("room", string(room.ID)).Str("type", string(typ)).Msg("room created")
	return room
}

// Join inserts the identity into the room, creating the room with defaults
// if the id is unknown. Re-joining the current room is an idempotent no-op.
// If the identity is a member of a different room it first leaves that room,
// with the normal leave side effects.
func (r *Registry) Join(roomID domain.RoomID, id domain.Identity) (RoomView, error) {
	r.mu.Lock()

	e, ok := r.rooms[roomID]
	if ok {
		if e.indexOf(id.UserID) >= 0 {
			view := snapshotLocked(e)
			r.mu.Unlock()
			return view, nil
		}
		// Capacity is checked before any mutation, so a rejected join does
		// not evict the user from their current room either.
		if max := e.room.Settings.MaxUsers; max > 0 && len(e.members) >= max {
			r.mu.Unlock()
			return RoomView{}, ErrRoomFull
		}
	}

	if prev, ok := r.byUser[id.UserID]; ok && prev != roomID {
		r.leaveLocked(prev, id.UserID)
	}

	if e == nil {
		e = &roomEntry{room: domain.Room{
			ID:        roomID,
			Name:      domain.RoomName(roomID),
			Type:      domain.RoomChat,
			Settings:  domain.DefaultRoomSettings(),
			CreatedAt: time.Now(),
		}}
		r.rooms[roomID] = e
	}

	e.members = append(e.members, id)
	r.byUser[id.UserID] = roomID
	others := r.otherMemberIDsLocked(e, id.UserID)
	view := snapshotLocked(e)
	r.mu.Unlock()

	log.Info().Str("module", "core.registry").Str("room", string(roomID)).Str("user", string(id.UserID)).Msg("member joined")
	r.gateway.ToUsers(others, userJoined{
		Type:  "user_joined",
		Room:  roomID,
		User:  MemberDTO{ID: id.UserID, Username: id.Username, Avatar: id.Avatar},
		Count: view.Count,
	})
	return view, nil
}

// Leave removes the member and deletes the room once it is empty. Unknown
// room or member is a benign no-op returning nil.
func (r *Registry) Leave(roomID domain.RoomID, uid domain.UserID) *RoomView {
	r.mu.Lock()
	e, ok := r.rooms[roomID]
	if !ok || e.indexOf(uid) < 0 {
		r.mu.Unlock()
		return nil
	}
	r.leaveLocked(roomID, uid)
	var view *RoomView
	if e, ok := r.rooms[roomID]; ok {
		v := snapshotLocked(e)
		view = &v
	}
	r.mu.Unlock()
	return view
}

// LeaveAll runs the leave path for wherever the user currently is. Used by
// the disconnect path.
func (r *Registry) LeaveAll(uid domain.UserID) {
	r.mu.Lock()
	if roomID, ok := r.byUser[uid]; ok {
		r.leaveLocked(roomID, uid)
	}
	r.mu.Unlock()
}

// leaveLocked mutates under the registry lock and queues the user_left
// notification. Emission is non-blocking, so sending under the lock is safe.
func (r *Registry) leaveLocked(roomID domain.RoomID, uid domain.UserID) {
	e, ok := r.rooms[roomID]
	if !ok {
		return
	}
	i := e.indexOf(uid)
	if i < 0 {
		return
	}
	e.members = append(e.members[:i], e.members[i+1:]...)
	delete(r.byUser, uid)

	if len(e.members) == 0 {
		delete(r.rooms, roomID)
		if r.onDestroy != nil {
			r.onDestroy(roomID)
		}
		log.Info().Str("module", "core.registry").Str("room", string(roomID)).Msg("room destroyed")
		return
	}

	r.gateway.ToUsers(memberIDsLocked(e), userLeft{
		Type:  "user_left",
		Room:  roomID,
		User:  uid,
		Count: len(e.members),
	})
	log.Info().Str("module", "core.registry").Str("room", string(roomID)).Str("user", string(uid)).Msg("member left")
}

// List returns a read-only snapshot, optionally filtered by room type.
func (r *Registry) List(typ domain.RoomType) []RoomView {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomView, 0, len(r.rooms))
	for _, e := range r.rooms {
		if typ != "" && e.room.Type != typ {
			continue
		}
		out = append(out, snapshotLocked(e))
	}
	return out
}

func (r *Registry) Get(roomID domain.RoomID) (RoomView, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[roomID]
	if !ok {
		return RoomView{}, false
	}
	return snapshotLocked(e), true
}

// RoomOf reports which room the user currently occupies.
func (r *Registry) RoomOf(uid domain.UserID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.byUser[uid]
	return roomID, ok
}

// MemberIDs is used by the gateway for room-scoped fan-out.
func (r *Registry) MemberIDs(roomID domain.RoomID) []domain.UserID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	return memberIDsLocked(e)
}

func (r *Registry) otherMemberIDsLocked(e *roomEntry, except domain.UserID) []domain.UserID {
	out := make([]domain.UserID, 0, len(e.members))
	for _, m := range e.members {
		if m.UserID != except {
			out = append(out, m.UserID)
		}
	}
	return out
}

func memberIDsLocked(e *roomEntry) []domain.UserID {
	out := make([]domain.UserID, 0, len(e.members))
	for _, m := range e.members {
		out = append(out, m.UserID)
	}
	return out
}

func snapshotLocked(e *roomEntry) RoomView {
	members := make([]MemberDTO, 0, len(e.members))
	for _, m := range e.members {
		members = append(members, MemberDTO{ID: m.UserID, Username: m.Username, Avatar: m.Avatar})
	}
	return RoomView{Room: e.room, Members: members, Count: len(members)}
}

type userJoined struct {
	Type  string        `json:"type"`
	Room  domain.RoomID `json:"room"`
	User  MemberDTO     `json:"user"`
	Count int           `json:"count"`
}

type userLeft struct {
	Type  string        `json:"type"`
	Room  domain.RoomID `json:"room"`
	User  domain.UserID `json:"user"`
	Count int           `json:"count"`
}
