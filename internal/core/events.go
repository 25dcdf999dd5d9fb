package core

import "github.com/openyouth/livehall/internal/domain"

// TransportEvent is a closed set of variants delivered by a Transport.
// Adapters must translate loose wire payloads into these at the boundary;
// nothing above the adapter sees stringly-typed events.
type TransportEvent interface {
	isTransportEvent()
}

// ParticipantJoined announces a publisher-capable participant on the channel.
type ParticipantJoined struct {
	Participant domain.ParticipantID
}

// TrackPublished announces that a participant started publishing a kind.
// Delivery may be duplicated or out of order across participants.
type TrackPublished struct {
	Participant domain.ParticipantID
	Kind        domain.MediaKind
}

// TrackUnpublished announces that a participant stopped publishing a kind.
// May arrive for a track that was never seen; consumers treat that as a no-op.
type TrackUnpublished struct {
	Participant domain.ParticipantID
	Kind        domain.MediaKind
}

// SubscriptionAccepted carries the decoded stream for a subscribe request
// previously issued for (Participant, Kind). The receiver owns Source and
// must Close it when done.
type SubscriptionAccepted struct {
	Participant domain.ParticipantID
	Kind        domain.MediaKind
	Source      MediaSource
}

// ConnectionStateChanged reports a raw transport state transition.
type ConnectionStateChanged struct {
	Previous domain.ConnectionState
	Current  domain.ConnectionState
}

// TransportException reports a non-state transport error.
type TransportException struct {
	Code    int
	Message string
}

func (ParticipantJoined) isTransportEvent()      {}
func (TrackPublished) isTransportEvent()         {}
func (TrackUnpublished) isTransportEvent()       {}
func (SubscriptionAccepted) isTransportEvent()   {}
func (ConnectionStateChanged) isTransportEvent() {}
func (TransportException) isTransportEvent()     {}
