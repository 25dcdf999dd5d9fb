package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/adapters/render"
	"github.com/openyouth/livehall/internal/domain"
	"github.com/openyouth/livehall/internal/viewer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamState pushes every projection snapshot to the UI until the
// socket or the server context ends.
func (h *handlers) streamState(ctx context.Context, c *gin.Context) {
	vid := domain.ViewerID(c.GetString("viewer_token"))
	v, ok := h.mgr.Get(vid)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no active viewer"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("ws upgrade")
		return
	}
	defer ws.Close()

	snapshots := make(chan viewer.Snapshot, 16)
	unsub := v.Client.State().Observe(func(snap viewer.Snapshot) {
		select {
		case snapshots <- snap:
		default:
			// Slow UI socket; the next snapshot carries newer state
			// anyway.
		}
	})
	defer unsub()

	// Current state first so the UI never renders blind.
	if err := writeSnapshot(ws, v.Client.State().Snapshot()); err != nil {
		return
	}

	go discardReads(ws)

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-snapshots:
			if err := writeSnapshot(ws, snap); err != nil {
				log.Info().Err(err).Str("module", "adapters.httpapi").Msg("state stream ended")
				return
			}
		}
	}
}

// streamMedia forwards the bound video frames to the UI as binary
// messages.
func (h *handlers) streamMedia(ctx context.Context, c *gin.Context) {
	vid := domain.ViewerID(c.GetString("viewer_token"))
	v, ok := h.mgr.Get(vid)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no active viewer"})
		return
	}
	surface, ok := v.Surface.(*render.StreamSurface)
	if !ok {
		c.JSON(http.StatusConflict, errorResponse{Error: "viewer has no streamable surface"})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.httpapi").Msg("ws upgrade")
		return
	}
	defer ws.Close()

	frames, detach := surface.Watch()
	defer detach()

	go discardReads(ws)

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Info().Err(err).Str("module", "adapters.httpapi").Msg("media stream ended")
				return
			}
		}
	}
}

func writeSnapshot(ws *websocket.Conn, snap viewer.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return err
	}
	return ws.WriteMessage(websocket.TextMessage, b)
}

// discardReads drains control frames so pings and close handshakes are
// processed.
func discardReads(ws *websocket.Conn) {
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return
		}
	}
}
