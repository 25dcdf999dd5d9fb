package viewer

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

type trackKey struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
}

// trackHandle is live between the publish event and the matching
// unpublish or teardown, whichever comes first.
type trackHandle struct {
	key       trackKey
	bindingID BindingID
	src       core.MediaSource
	stopAudio context.CancelFunc
}

// TrackManager deduplicates publish/unpublish events per (participant,
// kind), issues subscribe requests, and routes accepted subscriptions:
// video to the surface binder, audio straight to playout. Out-of-order
// and duplicate events are absorbed here so nothing above sees them.
type TrackManager struct {
	transport core.Transport
	binder    *SurfaceBinder
	guard     *LifecycleGuard
	log       zerolog.Logger

	mu         sync.Mutex
	handles    map[trackKey]*trackHandle
	videoBound bool
}

func newTrackManager(transport core.Transport, binder *SurfaceBinder, guard *LifecycleGuard, logger zerolog.Logger) *TrackManager {
	return &TrackManager{
		transport: transport,
		binder:    binder,
		guard:     guard,
		log:       logger,
		handles:   make(map[trackKey]*trackHandle),
	}
}

// HandlePublished creates a live handle and issues a subscribe request.
// A duplicate publish for an existing handle is ignored.
func (m *TrackManager) HandlePublished(p domain.ParticipantID, kind domain.MediaKind) {
	key := trackKey{participant: p, kind: kind}

	m.mu.Lock()
	if _, ok := m.handles[key]; ok {
		m.mu.Unlock()
		m.log.Debug().
			Str("module", "viewer.tracks").
			Str("participant", string(p)).
			Str("kind", kind.String()).
			Msg("duplicate publish, ignoring")
		return
	}
	m.handles[key] = &trackHandle{key: key}
	m.mu.Unlock()

	m.log.Info().
		Str("module", "viewer.tracks").
		Str("participant", string(p)).
		Str("kind", kind.String()).
		Msg("track published, subscribing")
	if err := m.transport.Subscribe(p, kind); err != nil {
		m.log.Error().
			Err(err).
			Str("module", "viewer.tracks").
			Str("participant", string(p)).
			Msg("subscribe request failed")
	}
}

// HandleUnpublished releases the handle and anything bound to it. An
// unpublish for an unknown handle is a no-op; delivery may be out of
// order.
func (m *TrackManager) HandleUnpublished(p domain.ParticipantID, kind domain.MediaKind) {
	key := trackKey{participant: p, kind: kind}

	m.mu.Lock()
	h, ok := m.handles[key]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.handles, key)
	if h.bindingID != "" {
		m.videoBound = false
	}
	m.mu.Unlock()

	m.releaseHandle(h)
	m.log.Info().
		Str("module", "viewer.tracks").
		Str("participant", string(p)).
		Str("kind", kind.String()).
		Msg("track unpublished, handle removed")
}

// HandleAccepted routes an accepted subscription. Video binds to the
// surface only if no other video is already rendered; the runner-up
// stays subscribed but unrendered. Audio starts playout immediately.
// An acceptance for a handle that is no longer live closes the source
// and is otherwise a no-op.
func (m *TrackManager) HandleAccepted(p domain.ParticipantID, kind domain.MediaKind, src core.MediaSource) {
	key := trackKey{participant: p, kind: kind}

	m.mu.Lock()
	h, ok := m.handles[key]
	if !ok {
		m.mu.Unlock()
		m.log.Info().
			Str("module", "viewer.tracks").
			Str("participant", string(p)).
			Str("kind", kind.String()).
			Msg("acceptance for dead handle, closing source")
		src.Close()
		return
	}

	if h.src != nil || h.bindingID != "" {
		// Duplicate acceptance; the handle already carries a stream.
		m.mu.Unlock()
		src.Close()
		return
	}

	if kind == domain.MediaVideo {
		// First accepted video owns the single surface.
		if m.videoBound {
			h.src = src
			m.mu.Unlock()
			m.log.Info().
				Str("module", "viewer.tracks").
				Str("participant", string(p)).
				Msg("surface occupied, keeping subscription unrendered")
			return
		}
		m.videoBound = true
		m.mu.Unlock()

		id := m.binder.Bind(src)

		m.mu.Lock()
		if cur, ok := m.handles[key]; ok && cur == h {
			h.bindingID = id
		} else {
			// Unpublished while we were binding.
			m.mu.Unlock()
			m.binder.Unbind(id)
			m.mu.Lock()
			m.videoBound = false
		}
		m.mu.Unlock()
		return
	}

	h.src = src
	ctx, cancel := context.WithCancel(m.guard.Context())
	h.stopAudio = cancel
	m.mu.Unlock()

	go m.audioPump(ctx, p, src)
}

// audioPump drains the audio stream; media flows only while it is read,
// so draining is what starts playout. No surface is involved.
func (m *TrackManager) audioPump(ctx context.Context, p domain.ParticipantID, src core.MediaSource) {
	m.log.Info().
		Str("module", "viewer.tracks").
		Str("participant", string(p)).
		Msg("audio playout started")
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if _, err := src.ReadRTP(); err != nil {
			m.log.Info().
				Str("module", "viewer.tracks").
				Str("participant", string(p)).
				Err(err).
				Msg("audio stream ended")
			return
		}
	}
}

// LiveCount returns how many live handles exist for the participant.
func (m *TrackManager) LiveCount(p domain.ParticipantID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.handles {
		if key.participant == p {
			n++
		}
	}
	return n
}

// Participants returns the currently publishing participants and kinds.
func (m *TrackManager) Participants() []domain.RemoteParticipant {
	m.mu.Lock()
	defer m.mu.Unlock()
	byID := make(map[domain.ParticipantID]*domain.RemoteParticipant)
	for key := range m.handles {
		rp, ok := byID[key.participant]
		if !ok {
			rp = &domain.RemoteParticipant{
				ID:             key.participant,
				PublishedKinds: make(map[domain.MediaKind]struct{}),
			}
			byID[key.participant] = rp
		}
		rp.PublishedKinds[key.kind] = struct{}{}
	}
	out := make([]domain.RemoteParticipant, 0, len(byID))
	for _, rp := range byID {
		out = append(out, *rp)
	}
	return out
}

// ReleaseAll drops every handle and its resources. Called at teardown.
func (m *TrackManager) ReleaseAll() {
	m.mu.Lock()
	handles := m.handles
	m.handles = make(map[trackKey]*trackHandle)
	m.videoBound = false
	m.mu.Unlock()

	for _, h := range handles {
		m.releaseHandle(h)
	}
	m.binder.ReleaseAll()
}

func (m *TrackManager) releaseHandle(h *trackHandle) {
	if h.stopAudio != nil {
		h.stopAudio()
	}
	if h.bindingID != "" {
		m.binder.Unbind(h.bindingID)
	} else if h.src != nil {
		h.src.Close()
	}
}
