package viewer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

// Options carries the tunables the client and its monitors need.
type Options struct {
	HealthDebounce   time.Duration
	FirstFrameChecks []time.Duration
}

func (o Options) withDefaults() Options {
	if o.HealthDebounce <= 0 {
		o.HealthDebounce = 3 * time.Second
	}
	if len(o.FirstFrameChecks) == 0 {
		o.FirstFrameChecks = []time.Duration{
			500 * time.Millisecond,
			2 * time.Second,
			5 * time.Second,
		}
	}
	return o
}

// SessionHandle is returned by a successful Join and consumed by Leave.
type SessionHandle struct {
	channel domain.ChannelName
	client  *Client
}

// Client owns the viewer-side join/leave lifecycle for one session. It
// wires transport events into the track manager and health monitor and
// exposes a single coherent state through its Projection. One Client
// serves at most one session; a second Join while one is active is
// rejected.
type Client struct {
	transport core.Transport
	proj      *Projection
	tracks    *TrackManager
	health    *HealthMonitor
	guard     *LifecycleGuard
	log       zerolog.Logger

	mu     sync.Mutex
	active bool

	dispatchDone chan struct{}
}

func NewClient(transport core.Transport, surface core.RenderSurface, opts Options) *Client {
	opts = opts.withDefaults()
	logger := log.With().Str("module", "viewer.client").Logger()

	guard := NewLifecycleGuard(context.Background())
	proj := newProjection()
	binder := newSurfaceBinder(
		surface,
		opts.FirstFrameChecks,
		guard,
		proj.setPlayback,
		proj.setError,
		logger,
	)
	return &Client{
		transport:    transport,
		proj:         proj,
		tracks:       newTrackManager(transport, binder, guard, logger),
		health:       newHealthMonitor(opts.HealthDebounce, guard, proj.setHealth, logger),
		guard:        guard,
		log:          logger,
		dispatchDone: make(chan struct{}),
	}
}

// State returns the read-only projection for observers.
func (c *Client) State() *Projection {
	return c.proj
}

// Participants lists the currently publishing participants.
func (c *Client) Participants() []domain.RemoteParticipant {
	return c.tracks.Participants()
}

// Join connects as an audience member. Failures are reported, never
// retried here; the caller decides whether to try again with a fresh
// credential. A join resolving after teardown leaves the transport and
// mutates nothing.
func (c *Client) Join(ctx context.Context, desc domain.SessionDescriptor, cred domain.JoinCredential) (*SessionHandle, error) {
	if err := desc.Joinable(); err != nil {
		return nil, err
	}
	if cred.Expired(time.Now()) {
		return nil, domain.ErrCredentialExpired
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil, domain.ErrSessionActive
	}
	if !c.guard.Active() {
		c.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	c.active = true
	c.mu.Unlock()

	if !c.guard.Do(func() { c.proj.setConnection(domain.StateConnecting) }) {
		c.resetActive()
		return nil, domain.ErrSessionClosed
	}

	c.log.Info().
		Str("channel", string(desc.ChannelName)).
		Str("viewer", string(cred.ViewerIdentity)).
		Msg("joining session")

	err := c.transport.Join(ctx, cred)
	if err != nil {
		c.guard.Do(func() {
			c.proj.setConnection(domain.StateFailed)
			c.proj.setError(domain.ErrJoinRejected)
		})
		c.resetActive()
		return nil, fmt.Errorf("%w: %v", domain.ErrJoinRejected, err)
	}

	committed := c.guard.Do(func() {
		c.proj.setConnection(domain.StateConnected)
	})
	if !committed {
		// Torn down while the join was in flight: release what we
		// acquired, commit nothing.
		if err := c.transport.Leave(); err != nil {
			c.log.Error().Err(err).Msg("leave after late join")
		}
		c.resetActive()
		return nil, domain.ErrSessionClosed
	}

	go c.dispatch()
	return &SessionHandle{channel: desc.ChannelName, client: c}, nil
}

// Leave tears the session down. Idempotent: a second call on an already
// closed handle is a no-op returning success. Teardown errors are
// logged, never surfaced; from the caller's perspective leave always
// succeeds, and all subordinate resources are released before return.
func (c *Client) Leave(h *SessionHandle) error {
	if h != nil && h.client != c {
		return nil
	}
	c.Close()
	return nil
}

// Close is Leave without a handle, used when teardown must run even
// though Join never completed.
func (c *Client) Close() {
	c.guard.Teardown(func() {
		c.tracks.ReleaseAll()
		if err := c.transport.Leave(); err != nil {
			c.log.Error().Err(err).Msg("transport leave")
		}
		// Closed is terminal and set by teardown itself, not via the
		// guard; everything after this point is suppressed.
		c.proj.setConnection(domain.StateClosed)
		c.log.Info().Msg("session closed")
	})
}

func (c *Client) resetActive() {
	c.mu.Lock()
	c.active = false
	c.mu.Unlock()
}

// dispatch serializes transport events in arrival order. Connection
// drops do not leave the session; they only feed the health monitor
// while the session stays logically open awaiting recovery.
func (c *Client) dispatch() {
	defer close(c.dispatchDone)
	for ev := range c.transport.Events() {
		if !c.guard.Active() {
			// Late events after dismissal: release what they carry,
			// commit nothing.
			if acc, ok := ev.(core.SubscriptionAccepted); ok {
				acc.Source.Close()
			}
			continue
		}
		c.handle(ev)
	}
}

func (c *Client) handle(ev core.TransportEvent) {
	switch e := ev.(type) {
	case core.ParticipantJoined:
		c.log.Info().Str("participant", string(e.Participant)).Msg("participant joined")
	case core.TrackPublished:
		c.tracks.HandlePublished(e.Participant, e.Kind)
	case core.TrackUnpublished:
		c.tracks.HandleUnpublished(e.Participant, e.Kind)
	case core.SubscriptionAccepted:
		c.tracks.HandleAccepted(e.Participant, e.Kind, e.Source)
	case core.ConnectionStateChanged:
		c.applyConnState(e.Previous, e.Current)
	case core.TransportException:
		c.log.Warn().
			Int("code", e.Code).
			Str("message", e.Message).
			Msg("transport exception")
	}
}

func (c *Client) applyConnState(prev, cur domain.ConnectionState) {
	snap := c.proj.Snapshot()
	if !snap.ConnectionState.CanTransition(cur) {
		c.log.Debug().
			Str("from", snap.ConnectionState.String()).
			Str("to", cur.String()).
			Msg("dropping non-monotonic transition")
		return
	}
	c.guard.Do(func() {
		c.proj.setConnection(cur)
		c.health.OnStateChange(prev, cur)
	})
}
