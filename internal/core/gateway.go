package core

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/domain"
)

// Gateway owns the set of live connections and fans room-scoped and
// user-scoped events out to them. Delivery is fire-and-forget: a sink that
// is gone or backpressured at emission time simply misses the event, and
// the client resyncs on reconnect.
type Gateway struct {
	mu    sync.RWMutex
	conns map[domain.UserID]Sink
}

func NewGateway() *Gateway {
	return &Gateway{conns: make(map[domain.UserID]Sink)}
}

// Register binds a user's live connection. A previous sink for the same
// user (stale tab, reconnect race) is closed and replaced.
func (g *Gateway) Register(uid domain.UserID, s Sink) {
	g.mu.Lock()
	old := g.conns[uid]
	g.conns[uid] = s
	g.mu.Unlock()
	if old != nil && old != s {
		old.Close()
	}
	log.Info().Str("module", "core.gateway").Str("user", string(uid)).Msg("connection registered")
}

// Unregister removes the binding only if it still points at s, so a fresh
// reconnect is never torn down by the old connection's cleanup. It reports
// whether the binding was actually removed; callers must skip their own
// user-level cleanup when it was not, because the user is still live on a
// newer connection.
func (g *Gateway) Unregister(uid domain.UserID, s Sink) bool {
	g.mu.Lock()
	removed := false
	if cur, ok := g.conns[uid]; ok && cur == s {
		delete(g.conns, uid)
		removed = true
	}
	g.mu.Unlock()
	if removed {
		log.Info().Str("module", "core.gateway").Str("user", string(uid)).Msg("connection unregistered")
	}
	return removed
}

func (g *Gateway) Connected(uid domain.UserID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.conns[uid]
	return ok
}

// ToUser emits a single user-scoped event (personal notices, direct replies).
func (g *Gateway) ToUser(uid domain.UserID, v any) {
	f, err := marshalFrame(v)
	if err != nil {
		return
	}
	g.mu.RLock()
	s, ok := g.conns[uid]
	g.mu.RUnlock()
	if !ok {
		return
	}
	if err := s.TrySend(f); err != nil {
		log.Debug().Str("module", "core.gateway").Str("user", string(uid)).Err(err).Msg("send dropped")
	}
}

// ToUsers emits one room-scoped event to every listed member, marshaling once.
func (g *Gateway) ToUsers(uids []domain.UserID, v any) {
	if len(uids) == 0 {
		return
	}
	f, err := marshalFrame(v)
	if err != nil {
		return
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, uid := range uids {
		s, ok := g.conns[uid]
		if !ok {
			continue
		}
		if err := s.TrySend(f); err != nil {
			log.Debug().Str("module", "core.gateway").Str("user", string(uid)).Err(err).Msg("send dropped")
		}
	}
}

func marshalFrame(v any) (Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "core.gateway").Msg("marshal frame")
		return nil, err
	}
	return Frame(b), nil
}

// RunSync pushes a playback heartbeat to every room that is currently
// playing, carrying server time so clients can reconcile drift. A failing
// tick is logged and never stops the loop.
func (g *Gateway) RunSync(ctx context.Context, interval time.Duration, playback *Playback, rooms *Registry) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "core.gateway").Msg("sync loop stopped")
			return
		case <-ticker.C:
			g.syncTick(playback, rooms)
		}
	}
}

func (g *Gateway) syncTick(playback *Playback, rooms *Registry) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("module", "core.gateway").Msg("sync tick panicked")
		}
	}()
	now := time.Now().UnixMilli()
	for _, pr := range playback.PlayingRooms() {
		members := rooms.MemberIDs(pr.RoomID)
		if len(members) == 0 {
			continue
		}
		g.ToUsers(members, musicSync{
			Type:       "music_sync",
			Room:       pr.RoomID,
			State:      pr.State,
			ServerTime: now,
		})
	}
}

type musicSync struct {
	Type       string               `json:"type"`
	Room       domain.RoomID        `json:"room"`
	State      domain.PlaybackState `json:"state"`
	ServerTime int64                `json:"serverTime"`
}
