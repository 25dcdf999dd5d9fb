package domain

import "errors"

// Fatal errors replace the media area with a retry affordance.
var (
	ErrDescriptorNotFound = errors.New("session descriptor not found")
	ErrCredentialExpired  = errors.New("join credential expired")
	ErrCredentialDenied   = errors.New("join credential denied")
	ErrJoinRejected       = errors.New("join rejected by transport")
	ErrSessionActive      = errors.New("viewer already has an active session")
	ErrSessionClosed      = errors.New("session already closed")
)

// ErrRenderStall is advisory: the subscription is accepted but no frame
// has arrived by the deadline. Playback may still begin later.
var ErrRenderStall = errors.New("no frame observed before deadline")

// Fatal reports whether err must tear down the media area, as opposed to
// being overlaid on an otherwise connected session.
func Fatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrRenderStall)
}
