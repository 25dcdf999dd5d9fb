package rtc

import (
	"io"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/openyouth/livehall/internal/domain"
)

// remoteSource adapts a pion TrackRemote to core.MediaSource. Close
// only marks the source; the underlying receiver is shut down with the
// peer connection.
type remoteSource struct {
	track  *webrtc.TrackRemote
	kind   domain.MediaKind
	closed atomic.Bool
}

func newRemoteSource(track *webrtc.TrackRemote, kind domain.MediaKind) *remoteSource {
	return &remoteSource{track: track, kind: kind}
}

func (s *remoteSource) Kind() domain.MediaKind {
	return s.kind
}

func (s *remoteSource) ReadRTP() (*rtp.Packet, error) {
	if s.closed.Load() {
		return nil, io.EOF
	}
	pkt, _, err := s.track.ReadRTP()
	if err != nil {
		return nil, err
	}
	if s.closed.Load() {
		return nil, io.EOF
	}
	return pkt, nil
}

func (s *remoteSource) Close() {
	s.closed.Store(true)
}
