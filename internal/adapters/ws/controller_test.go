package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mellivod/Lounge/internal/auth"
	"github.com/mellivod/Lounge/internal/core"
)

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc.def", bearerToken("Bearer abc.def"))
	assert.Equal(t, "", bearerToken(""))
	assert.Equal(t, "", bearerToken("Bearer"))
	assert.Equal(t, "", bearerToken("Basic abc"))
}

func TestTrySendBackpressure(t *testing.T) {
	c := &wsConn{send: make(chan core.Frame, 1)}

	require.NoError(t, c.TrySend(core.Frame(`{"type":"ping_response"}`)))
	assert.ErrorIs(t, c.TrySend(core.Frame(`{"type":"ping_response"}`)), ErrBackpressure)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	assert.Error(t, c.TrySend(core.Frame(`{}`)))
}

func TestHandleWSRefusesBadToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	ctl := &Controller{Auth: auth.NewAuthenticator(auth.DefaultConfig("test-secret"))}
	r := gin.New()
	r.GET("/api/ws", func(c *gin.Context) {
		ctl.HandleWS(context.Background(), c)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/ws?token=not-a-jwt", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/ws", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "no credential at all is refused too")
}

func TestKeepaliveIntervals(t *testing.T) {
	ctl := &Controller{}
	assert.Equal(t, 54*time.Second, ctl.pingPeriod(), "zero config falls back to the default")

	ctl.PingPeriod = 9 * time.Second
	assert.Equal(t, 9*time.Second, ctl.pingPeriod())
	assert.Equal(t, 10*time.Second, pongWait(ctl.pingPeriod()), "read deadline outlasts the ping interval")
}
