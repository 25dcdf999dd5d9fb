package core

import (
	"context"

	"github.com/pion/rtp"

	"github.com/openyouth/livehall/internal/domain"
)

// Transport is the audience-side connection to one broadcast channel.
// Owned by the session client; the client must Leave() it exactly once.
type Transport interface {
	// Join connects to the channel as an audience member. Blocking;
	// honors ctx cancellation. Events() is valid only after a
	// successful Join.
	Join(ctx context.Context, cred domain.JoinCredential) error
	// Leave disconnects and closes the event channel. Idempotent.
	Leave() error
	// Subscribe requests delivery of a published track. The result
	// arrives asynchronously as a SubscriptionAccepted event.
	Subscribe(participant domain.ParticipantID, kind domain.MediaKind) error
	// Events delivers transport events in arrival order.
	Events() <-chan TransportEvent
}

// MediaSource is one accepted subscription's decoded stream.
type MediaSource interface {
	Kind() domain.MediaKind
	// ReadRTP blocks until the next packet, or returns an error once
	// the stream ends.
	ReadRTP() (*rtp.Packet, error)
	// Close releases the underlying receiver. Idempotent.
	Close()
}

// RenderSurface is the single output destination owned by the UI layer.
// The binder owns only the binding relationship, never the surface's
// internals; Release undoes whatever Attach-visible state the surface
// holds for the current binding.
type RenderSurface interface {
	ID() string
	WriteFrame(pkt *rtp.Packet) error
	Release()
}

// DescriptorResolver looks a session up in the external directory.
type DescriptorResolver interface {
	Resolve(ctx context.Context, id domain.SessionID) (domain.SessionDescriptor, error)
}

// CredentialProvider mints a short-lived audience credential.
type CredentialProvider interface {
	Issue(ctx context.Context, channel domain.ChannelName, viewer domain.ViewerID) (domain.JoinCredential, error)
}
