package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/mellivod/Lounge/internal/adapters/ws"
	"github.com/mellivod/Lounge/internal/auth"
	"github.com/mellivod/Lounge/internal/clients"
	"github.com/mellivod/Lounge/internal/config"
	"github.com/mellivod/Lounge/internal/domain"
)

type Deps struct {
	Controller *ws.Controller
	Auth       *auth.Authenticator
	Exchange   clients.CredentialExchanger
	Chat       clients.ChatResponder
	Store      clients.Store
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LoungeSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	// Credential exchange: authorization code in, session token out. The
	// token also lands in the cookie session so a page reload can pick it
	// back up without re-running the OAuth dance.
	api.POST("/token", func(c *gin.Context) {
		var p struct {
			Code string `json:"code" binding:"required"`
		}
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		id, err := deps.Exchange.Exchange(c.Request.Context(), p.Code)
		if err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Msg("credential exchange failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "exchange_failed", "retryable": true})
			return
		}
		token, err := deps.Auth.IssueToken(*id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
			return
		}
		s := sessions.Default(c)
		s.Set("token", token)
		_ = s.Save()
		c.JSON(http.StatusOK, gin.H{"token": token, "user": id})
	})

	// AI chat responder relay; the responder itself is an external service.
	api.POST("/chat", func(c *gin.Context) {
		var p struct {
			UserID  string `json:"userId" binding:"required"`
			Message string `json:"message" binding:"required"`
		}
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		reply, err := deps.Chat.Respond(c.Request.Context(), p.UserID, p.Message)
		if err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "responder_unavailable", "retryable": true})
			return
		}
		c.JSON(http.StatusOK, gin.H{"reply": reply})
	})

	// Economy/marketplace reads are a thin pass-through to the bot's store.
	api.GET("/store/*path", func(c *gin.Context) {
		var out any
		if err := deps.Store.Get(c.Request.Context(), c.Param("path"), &out); err != nil {
			c.JSON(http.StatusBadGateway, gin.H{"error": "store_unavailable", "retryable": true})
			return
		}
		c.JSON(http.StatusOK, out)
	})

	// Explicit create path for rooms with non-default type or settings;
	// joining an unknown id over the socket still creates a default chat
	// room on the fly.
	api.POST("/rooms", func(c *gin.Context) {
		var p struct {
			Name     string               `json:"name" binding:"required"`
			Type     string               `json:"type"`
			Settings *domain.RoomSettings `json:"settings"`
		}
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad_payload"})
			return
		}
		typ := domain.RoomType(p.Type)
		if typ == "" {
			typ = domain.RoomChat
		}
		settings := domain.DefaultRoomSettings()
		if p.Settings != nil {
			settings = *p.Settings
		}
		room := deps.Controller.Rooms.Create(domain.RoomName(p.Name), typ, settings)
		c.JSON(http.StatusCreated, room)
	})

	// Read-only snapshots for the activity's browser screens.
	api.GET("/rooms", func(c *gin.Context) {
		typ := domain.RoomType(c.Query("type"))
		c.JSON(http.StatusOK, deps.Controller.Rooms.List(typ))
	})
	api.GET("/games", func(c *gin.Context) {
		c.JSON(http.StatusOK, deps.Controller.Games.RoomList())
	})

	api.GET("/ws", func(c *gin.Context) {
		deps.Controller.HandleWS(ctx, c)
	})

	return r
}
