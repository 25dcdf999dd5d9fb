package viewer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

// Viewer is one mounted viewer instance: its descriptor, client and
// join handle. A Viewer with a nil Client is a slot reservation for an
// open still in flight, never handed out.
type Viewer struct {
	ID         domain.ViewerID
	Descriptor domain.SessionDescriptor
	Client     *Client
	Surface    core.RenderSurface

	handle *SessionHandle

	// touchedAt is guarded by the manager's mutex.
	touchedAt time.Time
}

// Manager tracks active viewers and enforces one live session per
// viewer identity. It glues the directory and credential collaborators
// to the session client.
type Manager struct {
	resolver     core.DescriptorResolver
	creds        core.CredentialProvider
	newTransport func() core.Transport
	newSurface   func() core.RenderSurface
	opts         Options

	mu      sync.RWMutex
	viewers map[domain.ViewerID]*Viewer
}

func NewManager(
	resolver core.DescriptorResolver,
	creds core.CredentialProvider,
	newTransport func() core.Transport,
	newSurface func() core.RenderSurface,
	opts Options,
) *Manager {
	return &Manager{
		resolver:     resolver,
		creds:        creds,
		newTransport: newTransport,
		newSurface:   newSurface,
		opts:         opts,
		viewers:      make(map[domain.ViewerID]*Viewer),
	}
}

// Open resolves the session, mints an audience credential and joins.
// Credentials are single-use; a failed join needs a fresh Open.
func (m *Manager) Open(ctx context.Context, vid domain.ViewerID, sid domain.SessionID) (*Viewer, error) {
	reservation := &Viewer{ID: vid}

	m.mu.Lock()
	if _, ok := m.viewers[vid]; ok {
		m.mu.Unlock()
		return nil, domain.ErrSessionActive
	}
	// Reserve the slot before the slow path so concurrent opens for
	// the same viewer are rejected, not doubled.
	m.viewers[vid] = reservation
	m.mu.Unlock()

	v, err := m.open(ctx, vid, sid)

	m.mu.Lock()
	cur := m.viewers[vid]
	if err != nil {
		if cur == reservation {
			delete(m.viewers, vid)
		}
		m.mu.Unlock()
		return nil, err
	}
	if cur != reservation {
		// Closed while the open was in flight. The close wins: the
		// freshly joined session is torn down, not reinstated.
		m.mu.Unlock()
		v.Client.Close()
		return nil, domain.ErrSessionClosed
	}
	v.touchedAt = time.Now()
	m.viewers[vid] = v
	m.mu.Unlock()
	return v, nil
}

func (m *Manager) open(ctx context.Context, vid domain.ViewerID, sid domain.SessionID) (*Viewer, error) {
	desc, err := m.resolver.Resolve(ctx, sid)
	if err != nil {
		return nil, err
	}
	if !desc.IsLive {
		return nil, domain.ErrSessionNotLive
	}

	cred, err := m.creds.Issue(ctx, desc.ChannelName, vid)
	if err != nil {
		return nil, err
	}

	surface := m.newSurface()
	client := NewClient(m.newTransport(), surface, m.opts)
	handle, err := client.Join(ctx, desc, cred)
	if err != nil {
		client.Close()
		return nil, err
	}

	log.Info().
		Str("module", "viewer.manager").
		Str("viewer", string(vid)).
		Str("session", string(sid)).
		Msg("viewer opened")
	return &Viewer{ID: vid, Descriptor: desc, Client: client, Surface: surface, handle: handle}, nil
}

// Get returns the active viewer, if any, and marks it as recently used.
func (m *Manager) Get(vid domain.ViewerID) (*Viewer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.viewers[vid]
	if !ok || v.Client == nil {
		return nil, false
	}
	v.touchedAt = time.Now()
	return v, true
}

// Close tears the viewer down. Closing an unknown viewer is a no-op;
// closing one whose open is still in flight drops the reservation, and
// the open's commit tears the session down instead.
func (m *Manager) Close(vid domain.ViewerID) {
	m.mu.Lock()
	v := m.viewers[vid]
	delete(m.viewers, vid)
	m.mu.Unlock()
	if v == nil || v.Client == nil {
		return
	}
	if err := v.Client.Leave(v.handle); err != nil {
		log.Error().Err(err).Str("module", "viewer.manager").Msg("leave")
	}
	log.Info().
		Str("module", "viewer.manager").
		Str("viewer", string(vid)).
		Msg("viewer closed")
}

// Shutdown tears down every active viewer. Used at process exit.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	viewers := m.viewers
	m.viewers = make(map[domain.ViewerID]*Viewer)
	m.mu.Unlock()
	for _, v := range viewers {
		if v != nil && v.Client != nil {
			v.Client.Close()
		}
	}
}

// Run evicts viewers idle longer than ttl until ctx ends. A viewer is
// idle when nothing has opened, fetched or streamed it; eviction keeps
// abandoned browser tabs from holding transports forever.
func (m *Manager) Run(ctx context.Context, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evictIdle(time.Now().Add(-ttl))
		}
	}
}

func (m *Manager) evictIdle(cutoff time.Time) {
	m.mu.Lock()
	var stale []*Viewer
	for vid, v := range m.viewers {
		if v.Client == nil {
			continue
		}
		if v.touchedAt.Before(cutoff) {
			delete(m.viewers, vid)
			stale = append(stale, v)
		}
	}
	m.mu.Unlock()

	for _, v := range stale {
		log.Info().
			Str("module", "viewer.manager").
			Str("viewer", string(v.ID)).
			Msg("evicting idle viewer")
		v.Client.Close()
	}
}
