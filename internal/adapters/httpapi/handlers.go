package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/domain"
	"github.com/openyouth/livehall/internal/viewer"
)

type handlers struct {
	mgr *viewer.Manager
}

type errorResponse struct {
	Error string `json:"error"`
	// Retryable tells the UI to offer a retry affordance instead of a
	// dead "unavailable" panel.
	Retryable bool `json:"retryable"`
}

func (h *handlers) openViewer(c *gin.Context) {
	vid := domain.ViewerID(c.GetString("viewer_token"))
	sid := domain.SessionID(c.Param("id"))

	v, err := h.mgr.Open(c.Request.Context(), vid, sid)
	if err != nil {
		status, resp := mapOpenError(err)
		log.Warn().
			Err(err).
			Str("module", "adapters.httpapi").
			Str("viewer", string(vid)).
			Str("session", string(sid)).
			Msg("open viewer failed")
		c.JSON(status, resp)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session": v.Descriptor,
		"state":   v.Client.State().Snapshot(),
	})
}

func mapOpenError(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, domain.ErrDescriptorNotFound):
		return http.StatusNotFound, errorResponse{Error: "session unavailable", Retryable: true}
	case errors.Is(err, domain.ErrSessionNotLive):
		return http.StatusGone, errorResponse{Error: "session is not live", Retryable: false}
	case errors.Is(err, domain.ErrNoRealtimeTransport):
		return http.StatusConflict, errorResponse{Error: "session has no live stream", Retryable: false}
	case errors.Is(err, domain.ErrCredentialExpired), errors.Is(err, domain.ErrCredentialDenied):
		return http.StatusUnauthorized, errorResponse{Error: "credential rejected", Retryable: true}
	case errors.Is(err, domain.ErrJoinRejected):
		return http.StatusBadGateway, errorResponse{Error: "join rejected", Retryable: true}
	case errors.Is(err, domain.ErrSessionActive):
		return http.StatusConflict, errorResponse{Error: "viewer already active", Retryable: false}
	default:
		return http.StatusBadGateway, errorResponse{Error: "session unavailable", Retryable: true}
	}
}

// closeViewer always reports success; teardown failures are logged
// inside the client, never surfaced.
func (h *handlers) closeViewer(c *gin.Context) {
	vid := domain.ViewerID(c.GetString("viewer_token"))
	h.mgr.Close(vid)
	c.JSON(http.StatusOK, gin.H{"closed": true})
}

func (h *handlers) viewerState(c *gin.Context) {
	vid := domain.ViewerID(c.GetString("viewer_token"))
	v, ok := h.mgr.Get(vid)
	if !ok {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no active viewer"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"session":      v.Descriptor,
		"state":        v.Client.State().Snapshot(),
		"participants": participantsView(v),
	})
}

type participantView struct {
	ID    string   `json:"id"`
	Kinds []string `json:"kinds"`
}

func participantsView(v *viewer.Viewer) []participantView {
	parts := v.Client.Participants()
	out := make([]participantView, 0, len(parts))
	for _, p := range parts {
		pv := participantView{ID: string(p.ID)}
		for kind := range p.PublishedKinds {
			pv.Kinds = append(pv.Kinds, kind.String())
		}
		out = append(out, pv)
	}
	return out
}
