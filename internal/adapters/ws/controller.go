// Package ws is the real-time transport adapter: it upgrades authenticated
// connections, pumps frames, and translates wire commands into calls on the
// core components.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/mellivod/Lounge/internal/app"
	"github.com/mellivod/Lounge/internal/auth"
	"github.com/mellivod/Lounge/internal/core"
	"github.com/mellivod/Lounge/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Auth     *auth.Authenticator
	Gateway  *core.Gateway
	Rooms    *core.Registry
	Playback *core.Playback
	Games    *app.Manager

	ReadLimit    int64
	PingPeriod   time.Duration
	CommandRate  rate.Limit
	CommandBurst int
}

type wsConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWS authenticates the presented credential and only then upgrades.
// A connection without a verifiable identity is refused outright; no
// command is processed for it.
func (ctl *Controller) HandleWS(ctx context.Context, c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.GetHeader("Authorization"))
	}
	id, err := ctl.Auth.Verify(token)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("connection refused")
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}

	socket, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		socket.SetReadLimit(ctl.ReadLimit)
	}

	conn := &wsConn{
		conn: socket,
		send: make(chan core.Frame, 32),
	}
	ctl.Gateway.Register(id.UserID, conn)
	log.Info().Str("module", "ws").Str("user", string(id.UserID)).Msg("connection established")

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ctl.writePump(ctx, conn)
		cancel()
	}()
	go func() {
		ctl.readPump(ctx, *id, conn)
		cancel()
	}()
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):]
	}
	return ""
}

// pingPeriod is the protocol-level keepalive interval; pongWait derives the
// matching read deadline, slightly longer so a healthy peer always answers
// in time.
func (ctl *Controller) pingPeriod() time.Duration {
	if ctl.PingPeriod > 0 {
		return ctl.PingPeriod
	}
	return 54 * time.Second
}

func pongWait(pingPeriod time.Duration) time.Duration {
	return pingPeriod * 10 / 9
}

func (ctl *Controller) writePump(ctx context.Context, c *wsConn) {
	ticker := time.NewTicker(ctl.pingPeriod())
	defer ticker.Stop()
	// Closing here unblocks a readPump stuck in ReadMessage on a dead peer,
	// so cleanup runs as soon as a ping write fails instead of waiting for
	// TCP timeouts.
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				return
			}
		}
	}
}

func (ctl *Controller) readPump(ctx context.Context, id domain.Identity, c *wsConn) {
	limiter := rate.NewLimiter(ctl.CommandRate, ctl.CommandBurst)

	wait := pongWait(ctl.pingPeriod())
	_ = c.conn.SetReadDeadline(time.Now().Add(wait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(wait))
	})

	defer func() {
		log.Info().Str("module", "ws").Str("user", string(id.UserID)).Msg("readPump closing")
		// Room-level cleanup only when this connection still owned the
		// binding. A replaced connection's teardown must not touch the
		// user's room state; the user is live on the newer socket.
		if ctl.Gateway.Unregister(id.UserID, c) {
			ctl.Rooms.LeaveAll(id.UserID)
			ctl.Games.HandleDisconnect(id.UserID)
		}
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				return
			}
			if !limiter.Allow() {
				log.Warn().Str("module", "ws").Str("user", string(id.UserID)).Msg("command rate exceeded, dropped")
				continue
			}
			ctl.dispatch(id, c, data)
		}
	}
}

func (ctl *Controller) dispatch(id domain.Identity, c *wsConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad json")
		return
	}

	switch env.Type {
	case "join_room":
		ctl.handleJoinRoom(id, c, data)
	case "leave_room":
		ctl.handleLeaveRoom(id, c)
	case "sync_request":
		ctl.handleSyncRequest(id, c)

	case "music_play":
		ctl.handleMusicPlay(id, c, data)
	case "music_pause":
		ctl.handleMusicSimple(id, c, ctl.Playback.Pause)
	case "music_resume":
		ctl.handleMusicSimple(id, c, ctl.Playback.Resume)
	case "music_skip":
		ctl.handleMusicSimple(id, c, ctl.Playback.Skip)
	case "music_seek":
		ctl.handleMusicSeek(id, c, data)
	case "music_volume":
		ctl.handleMusicVolume(id, c, data)
	case "music_shuffle":
		ctl.handleMusicShuffle(id, c, data)
	case "music_repeat":
		ctl.handleMusicRepeat(id, c, data)
	case "playlist_add":
		ctl.handlePlaylistAdd(id, c, data)
	case "playlist_remove":
		ctl.handlePlaylistRemove(id, c, data)

	case "create_room":
		ctl.handleCreateGame(id, c, data)
	case "player_ready":
		ctl.handlePlayerReady(id, data)
	case "start_game":
		ctl.handleStartGame(id, c, data)
	case "game_state_update":
		ctl.handleGameStateUpdate(id, data)
	case "player_input":
		ctl.handlePlayerInput(id, data)
	case "game_end":
		ctl.handleGameEnd(id, c, data)
	case "get_room_list":
		ctl.handleRoomList(c)
	case "ping":
		ctl.handlePing(id, c)
	case "performance_update":
		ctl.handlePerformance(id, data)
	case "chat_message":
		ctl.handleChat(id, data)
	case "kick_player":
		ctl.handleKick(id, c, data)
	case "reconnect_to_room":
		ctl.handleReconnect(id, c, data)

	default:
		log.Warn().Str("module", "ws").Str("type", env.Type).Msg("unknown command")
	}
}

func (ctl *Controller) sendJSON(c *wsConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *Controller) sendError(c *wsConn, event, msg string) {
	ctl.sendJSON(c, map[string]any{
		"type":  event,
		"error": msg,
	})
}
