package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

var errBackpressure = errors.New("backpressure")

// envelope is the signaling wire format. Everything loose stops here;
// above the adapter only the typed event variants exist.
type envelope struct {
	Type string `json:"type"`

	Channel  string `json:"channel,omitempty"`
	Token    string `json:"token,omitempty"`
	Identity string `json:"identity,omitempty"`
	Role     string `json:"role,omitempty"`

	Participant string `json:"participant,omitempty"`
	Kind        string `json:"kind,omitempty"`

	SDP           string  `json:"sdp,omitempty"`
	Candidate     string  `json:"candidate,omitempty"`
	SDPMid        string  `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`

	Code    int    `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type signalConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func dialSignal(ctx context.Context, cfg Config, cred domain.JoinCredential) (*signalConn, error) {
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.SignalURL, http.Header{
		"Authorization": []string{"Bearer " + cred.Token},
	})
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return nil, domain.ErrCredentialDenied
		}
		return nil, err
	}
	if cfg.ReadLimit > 0 {
		ws.SetReadLimit(cfg.ReadLimit)
	}
	return &signalConn{
		conn: ws,
		send: make(chan []byte, 32),
	}, nil
}

func (c *signalConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return errBackpressure
	}
	return nil
}

func (c *signalConn) sendJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc.signal").Msg("sendJSON marshal")
		return
	}
	if err := c.trySend(b); err != nil {
		log.Warn().Err(err).Str("module", "rtc.signal").Msg("sendJSON dropped")
	}
}

func (c *signalConn) Close() {
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

func (c *signalConn) writePump(ctx context.Context, pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
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
				log.Error().Err(err).Str("module", "rtc.signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "rtc.signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump translates signaling envelopes into transport events and
// peer-connection operations until the connection ends.
func (t *Transport) readPump(ctx context.Context, c *signalConn) {
	defer c.Close()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			t.log.Info().Err(err).Msg("signaling read ended")
			return
		}
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.log.Error().Err(err).Msg("bad signaling json")
			continue
		}
		t.handleEnvelope(env)
	}
}

func (t *Transport) handleEnvelope(env envelope) {
	switch env.Type {
	case "joined":
		select {
		case <-t.joined:
		default:
			close(t.joined)
		}
	case "rejected":
		select {
		case t.joinErr <- fmt.Errorf("%w: %s", ErrRejected, env.Message):
		default:
		}
	case "user-joined":
		t.emit(core.ParticipantJoined{Participant: domain.ParticipantID(env.Participant)})
	case "user-published":
		kind, ok := domain.ParseMediaKind(env.Kind)
		if !ok {
			t.log.Warn().Str("kind", env.Kind).Msg("unknown published kind")
			return
		}
		t.emit(core.TrackPublished{
			Participant: domain.ParticipantID(env.Participant),
			Kind:        kind,
		})
	case "user-unpublished":
		kind, ok := domain.ParseMediaKind(env.Kind)
		if !ok {
			t.log.Warn().Str("kind", env.Kind).Msg("unknown unpublished kind")
			return
		}
		t.emit(core.TrackUnpublished{
			Participant: domain.ParticipantID(env.Participant),
			Kind:        kind,
		})
	case "offer":
		t.handleOffer(env)
	case "candidate":
		t.handleCandidate(env)
	case "exception":
		t.emit(core.TransportException{Code: env.Code, Message: env.Message})
	default:
		t.log.Warn().Str("type", env.Type).Msg("unknown signal")
	}
}

// handleOffer answers the broadcaster-side offer that carries the
// subscribed media sections.
func (t *Transport) handleOffer(env envelope) {
	t.mu.RLock()
	pc, sig := t.pc, t.sig
	t.mu.RUnlock()
	if pc == nil || sig == nil {
		return
	}

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: env.SDP}
	if err := pc.SetRemoteDescription(offer); err != nil {
		t.log.Error().Err(err).Msg("set remote description")
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		t.log.Error().Err(err).Msg("create answer")
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		t.log.Error().Err(err).Msg("set local description")
		return
	}
	sig.sendJSON(envelope{Type: "answer", SDP: answer.SDP})
}

func (t *Transport) handleCandidate(env envelope) {
	t.mu.RLock()
	pc := t.pc
	t.mu.RUnlock()
	if pc == nil {
		return
	}

	cand := webrtc.ICECandidateInit{Candidate: env.Candidate}
	if env.SDPMid != "" {
		mid := env.SDPMid
		cand.SDPMid = &mid
	}
	cand.SDPMLineIndex = env.SDPMLineIndex
	if err := pc.AddICECandidate(cand); err != nil {
		t.log.Error().Err(err).Msg("add ice candidate")
	}
}
