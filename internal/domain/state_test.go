package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ConnectionState
		to   ConnectionState
		want bool
	}{
		{"idle to connecting", StateIdle, StateConnecting, true},
		{"connecting to connected", StateConnecting, StateConnected, true},
		{"connected to disconnected", StateConnected, StateDisconnected, true},
		{"disconnected back to connected", StateDisconnected, StateConnected, true},
		{"connected to failed", StateConnected, StateFailed, true},
		{"anything to closed", StateConnected, StateClosed, true},
		{"connected back to connecting", StateConnected, StateConnecting, false},
		{"failed back to idle", StateFailed, StateIdle, false},
		{"closed is terminal", StateClosed, StateConnecting, false},
		{"closed to closed", StateClosed, StateClosed, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestParseMediaKind(t *testing.T) {
	kind, ok := ParseMediaKind("video")
	assert.True(t, ok)
	assert.Equal(t, MediaVideo, kind)

	kind, ok = ParseMediaKind("audio")
	assert.True(t, ok)
	assert.Equal(t, MediaAudio, kind)

	_, ok = ParseMediaKind("screenshare")
	assert.False(t, ok)
}

func TestFatal(t *testing.T) {
	assert.False(t, Fatal(nil))
	assert.False(t, Fatal(ErrRenderStall))
	assert.True(t, Fatal(ErrJoinRejected))
	assert.True(t, Fatal(ErrDescriptorNotFound))
}
