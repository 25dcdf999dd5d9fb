// Package domain contains value objects for the live-session viewer,
// no transport or lifecycle logic here.
package domain

import (
	"errors"
	"time"
)

type (
	SessionID     string
	ChannelName   string
	ParticipantID string
	ViewerID      string
)

var (
	ErrChannelEmpty        = errors.New("channel name empty")
	ErrNoRealtimeTransport = errors.New("session has no realtime transport")
	ErrSessionNotLive      = errors.New("session is not live")
)

// SessionDescriptor is the directory's view of one broadcast session.
// Immutable once fetched.
type SessionDescriptor struct {
	ID                    SessionID   `json:"id"`
	Title                 string      `json:"title"`
	ChannelName           ChannelName `json:"channel_name"`
	UsesRealtimeTransport bool        `json:"has_realtime_transport"`
	IsLive                bool        `json:"is_live"`
}

// Joinable reports whether a viewer may attempt to join this session.
func (d SessionDescriptor) Joinable() error {
	if d.ChannelName == "" {
		return ErrChannelEmpty
	}
	if !d.UsesRealtimeTransport {
		return ErrNoRealtimeTransport
	}
	return nil
}

// MediaKind is a closed enum; transport adapters must map their own
// stringly-typed payloads into it at the boundary.
type MediaKind int

const (
	MediaAudio MediaKind = iota
	MediaVideo
)

func (k MediaKind) String() string {
	switch k {
	case MediaAudio:
		return "audio"
	case MediaVideo:
		return "video"
	}
	return "unknown"
}

// ParseMediaKind maps a wire value to a MediaKind.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch s {
	case "audio":
		return MediaAudio, true
	case "video":
		return MediaVideo, true
	}
	return 0, false
}

// RemoteParticipant is a publisher seen on the channel and the kinds it
// currently publishes.
type RemoteParticipant struct {
	ID             ParticipantID
	PublishedKinds map[MediaKind]struct{}
}

// JoinCredential is a single-use, short-lived audience credential.
// Never persisted.
type JoinCredential struct {
	AppID          string      `json:"appId"`
	ChannelName    ChannelName `json:"channelName"`
	Token          string      `json:"token"`
	ViewerIdentity ViewerID    `json:"viewerIdentity"`
	ExpiresAt      time.Time   `json:"expiresAt"`
}

// Expired reports whether the credential is no longer usable at now.
func (c JoinCredential) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}
