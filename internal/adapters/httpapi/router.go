// Package httpapi exposes the viewer over HTTP: open/close a viewer,
// inspect its state, and stream state changes and frames to the web UI.
package httpapi

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/config"
	"github.com/openyouth/livehall/internal/viewer"
)

func genViewerToken() string {
	return uuid.NewString()
}

// ViewerTokenMiddleware pins a browser to one viewer identity, which is
// what makes "one active session per viewer" enforceable.
func ViewerTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("vt")
		if token == "" {
			token = genViewerToken()
			c.SetCookie("vt", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("viewer_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, mgr *viewer.Manager) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("LivehallSessions", store))
	r.Use(ViewerTokenMiddleware())

	log.Info().Str("module", "adapters.httpapi").Msg("router setup")

	h := &handlers{mgr: mgr}

	api := r.Group("/api")
	api.POST("/sessions/:id/view", h.openViewer)
	api.DELETE("/view", h.closeViewer)
	api.GET("/view/state", h.viewerState)
	api.GET("/view/ws/state", func(c *gin.Context) { h.streamState(ctx, c) })
	api.GET("/view/ws/media", func(c *gin.Context) { h.streamMedia(ctx, c) })

	return r
}
