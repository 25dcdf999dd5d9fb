// Package rtc connects the viewer to a broadcast channel over WebRTC,
// translating signaling envelopes and peer-connection callbacks into
// the closed transport event set.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

var (
	ErrJoinTimeout = errors.New("signaling join timed out")
	ErrRejected    = errors.New("join rejected by signaling server")
)

type Config struct {
	SignalURL  string
	ICEServers []string
	ReadLimit  int64
	PingPeriod time.Duration
	// JoinTimeout bounds the wait for the signaling join ack.
	JoinTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.JoinTimeout <= 0 {
		c.JoinTimeout = 10 * time.Second
	}
	if c.PingPeriod <= 0 {
		c.PingPeriod = 54 * time.Second
	}
	return c
}

// Transport implements core.Transport for one audience session.
type Transport struct {
	cfg Config
	log zerolog.Logger

	mu        sync.RWMutex
	pc        *webrtc.PeerConnection
	sig       *signalConn
	closed    bool
	prevState domain.ConnectionState

	joined  chan struct{}
	joinErr chan error
	events  chan core.TransportEvent

	cancel    context.CancelFunc
	leaveOnce sync.Once
}

func New(cfg Config) *Transport {
	return &Transport{
		cfg:       cfg.withDefaults(),
		log:       log.With().Str("module", "rtc").Logger(),
		prevState: domain.StateIdle,
		joined:    make(chan struct{}),
		joinErr:   make(chan error, 1),
		events:    make(chan core.TransportEvent, 64),
	}
}

func (t *Transport) Events() <-chan core.TransportEvent {
	return t.events
}

// Join dials the signaling server, sets up a recvonly peer connection
// and waits for the join ack. Blocking; honors ctx. The ctx bounds only
// the handshake: the signaling pumps run on the transport's own
// lifetime and end at Leave, not when the caller's request finishes.
func (t *Transport) Join(ctx context.Context, cred domain.JoinCredential) error {
	runCtx, cancel := context.WithCancel(context.Background())

	sig, err := dialSignal(ctx, t.cfg, cred)
	if err != nil {
		cancel()
		return fmt.Errorf("dial signaling: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtcConfig(t.cfg.ICEServers))
	if err != nil {
		sig.Close()
		cancel()
		return fmt.Errorf("new peer connection: %w", err)
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			_ = pc.Close()
			sig.Close()
			cancel()
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}

	t.mu.Lock()
	t.pc = pc
	t.sig = sig
	t.cancel = cancel
	t.mu.Unlock()

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		t.log.Info().Str("peer_connection_state", s.String()).Msg("peer state")
		cur, ok := mapPeerState(s)
		if !ok {
			return
		}
		t.mu.Lock()
		prev := t.prevState
		t.prevState = cur
		t.mu.Unlock()
		t.emit(core.ConnectionStateChanged{Previous: prev, Current: cur})
	})

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		ci := cand.ToJSON()
		env := envelope{Type: "candidate", Candidate: ci.Candidate}
		if ci.SDPMid != nil {
			env.SDPMid = *ci.SDPMid
		}
		env.SDPMLineIndex = ci.SDPMLineIndex
		sig.sendJSON(env)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		kind, ok := mapCodecType(track.Kind())
		if !ok {
			t.log.Warn().Str("kind", track.Kind().String()).Msg("unknown track kind")
			return
		}
		t.log.Info().
			Str("kind", kind.String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		t.emit(core.SubscriptionAccepted{
			Participant: domain.ParticipantID(track.StreamID()),
			Kind:        kind,
			Source:      newRemoteSource(track, kind),
		})
	})

	go sig.writePump(runCtx, t.cfg.PingPeriod)
	go t.readPump(runCtx, sig)

	sig.sendJSON(envelope{
		Type:     "join",
		Channel:  string(cred.ChannelName),
		Token:    cred.Token,
		Identity: string(cred.ViewerIdentity),
		Role:     "audience",
	})

	select {
	case <-t.joined:
		return nil
	case err := <-t.joinErr:
		t.teardownJoin()
		return err
	case <-time.After(t.cfg.JoinTimeout):
		t.teardownJoin()
		return ErrJoinTimeout
	case <-ctx.Done():
		t.teardownJoin()
		return ctx.Err()
	}
}

// teardownJoin releases what Join acquired when the ack never came. The
// event channel stays open; Leave owns closing it.
func (t *Transport) teardownJoin() {
	t.mu.Lock()
	pc, sig, cancel := t.pc, t.sig, t.cancel
	t.pc, t.sig, t.cancel = nil, nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pc != nil {
		_ = pc.Close()
	}
	if sig != nil {
		sig.Close()
	}
}

// Subscribe asks the broadcaster side to deliver a published track. The
// media itself arrives later via OnTrack.
func (t *Transport) Subscribe(p domain.ParticipantID, kind domain.MediaKind) error {
	t.mu.RLock()
	sig := t.sig
	closed := t.closed
	t.mu.RUnlock()
	if closed || sig == nil {
		return domain.ErrSessionClosed
	}
	sig.sendJSON(envelope{
		Type:        "subscribe",
		Participant: string(p),
		Kind:        kind.String(),
	})
	return nil
}

// Leave disconnects and closes the event channel. Idempotent.
func (t *Transport) Leave() error {
	var first error
	t.leaveOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		pc, sig, cancel := t.pc, t.sig, t.cancel
		t.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if pc != nil {
			if err := pc.Close(); err != nil {
				first = err
				t.log.Error().Err(err).Msg("close peer connection")
			}
		}
		if sig != nil {
			sig.Close()
		}
		close(t.events)
		t.log.Info().Msg("transport closed")
	})
	return first
}

// emit delivers an event unless the transport is closed. A full channel
// drops the event with a warning rather than blocking a pion callback.
func (t *Transport) emit(ev core.TransportEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		if acc, ok := ev.(core.SubscriptionAccepted); ok {
			acc.Source.Close()
		}
		return
	}
	select {
	case t.events <- ev:
	default:
		t.log.Warn().Msg("event channel full, dropping event")
	}
}

func webrtcConfig(servers []string) webrtc.Configuration {
	if len(servers) == 0 {
		servers = []string{"stun:stun.l.google.com:19302"}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: servers}},
	}
}

func mapPeerState(s webrtc.PeerConnectionState) (domain.ConnectionState, bool) {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return domain.StateConnecting, true
	case webrtc.PeerConnectionStateConnected:
		return domain.StateConnected, true
	case webrtc.PeerConnectionStateDisconnected:
		return domain.StateDisconnected, true
	case webrtc.PeerConnectionStateFailed:
		return domain.StateFailed, true
	case webrtc.PeerConnectionStateClosed:
		return domain.StateClosed, true
	}
	return 0, false
}

func mapCodecType(k webrtc.RTPCodecType) (domain.MediaKind, bool) {
	switch k {
	case webrtc.RTPCodecTypeAudio:
		return domain.MediaAudio, true
	case webrtc.RTPCodecTypeVideo:
		return domain.MediaVideo, true
	}
	return 0, false
}
