// Package render implements the UI-owned render surface as a fan-out of
// encoded frames to attached watchers (the web client's decoder).
package render

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/rs/zerolog/log"
)

// StreamSurface fans decoded frames out to zero or more watchers. The
// binder owns only the binding relationship; watchers attach and detach
// independently of bindings, and Release drops the frames of the
// current binding without touching watcher registrations.
type StreamSurface struct {
	id string

	mu       sync.RWMutex
	watchers map[int]chan []byte
	nextID   int
	frames   atomic.Uint64
}

func NewStreamSurface() *StreamSurface {
	return &StreamSurface{
		id:       uuid.NewString(),
		watchers: make(map[int]chan []byte),
	}
}

func (s *StreamSurface) ID() string {
	return s.id
}

// WriteFrame delivers one frame to every watcher. A slow watcher drops
// frames rather than blocking the media pump.
func (s *StreamSurface) WriteFrame(pkt *rtp.Packet) error {
	data, err := pkt.Marshal()
	if err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.frames.Add(1)
	for id, ch := range s.watchers {
		select {
		case ch <- data:
		default:
			log.Debug().
				Str("module", "render").
				Str("surface", s.id).
				Int("watcher", id).
				Msg("watcher slow, dropping frame")
		}
	}
	return nil
}

// Release ends the current binding's delivery. Watchers stay registered
// and will see frames from the next binding, if any.
func (s *StreamSurface) Release() {
	s.frames.Store(0)
}

// Frames reports how many frames the current binding has delivered.
func (s *StreamSurface) Frames() uint64 {
	return s.frames.Load()
}

// Watch registers a watcher and returns its frame channel plus a detach
// function. Detach is idempotent.
func (s *StreamSurface) Watch() (<-chan []byte, func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	ch := make(chan []byte, 32)
	s.watchers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	detach := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, detach
}
