package viewer

import (
	"context"
	"io"
	"sync"

	"github.com/pion/rtp"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

type subscribeReq struct {
	participant domain.ParticipantID
	kind        domain.MediaKind
}

type fakeTransport struct {
	mu         sync.Mutex
	events     chan core.TransportEvent
	subscribes []subscribeReq
	leaveCount int

	joinErr     error
	blockJoin   bool
	joinStarted chan struct{}
	joinRelease chan error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:      make(chan core.TransportEvent, 64),
		joinStarted: make(chan struct{}),
		joinRelease: make(chan error, 1),
	}
}

func (t *fakeTransport) Join(ctx context.Context, cred domain.JoinCredential) error {
	if t.blockJoin {
		close(t.joinStarted)
		select {
		case err := <-t.joinRelease:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return t.joinErr
}

func (t *fakeTransport) Leave() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaveCount++
	if t.leaveCount == 1 {
		close(t.events)
	}
	return nil
}

func (t *fakeTransport) Subscribe(p domain.ParticipantID, kind domain.MediaKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subscribes = append(t.subscribes, subscribeReq{participant: p, kind: kind})
	return nil
}

func (t *fakeTransport) Events() <-chan core.TransportEvent {
	return t.events
}

func (t *fakeTransport) push(ev core.TransportEvent) {
	t.events <- ev
}

func (t *fakeTransport) leaves() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.leaveCount
}

func (t *fakeTransport) subscribeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subscribes)
}

type fakeSource struct {
	kind domain.MediaKind
	pkts chan *rtp.Packet

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeSource(kind domain.MediaKind) *fakeSource {
	return &fakeSource{
		kind:   kind,
		pkts:   make(chan *rtp.Packet, 16),
		closed: make(chan struct{}),
	}
}

func (s *fakeSource) Kind() domain.MediaKind { return s.kind }

func (s *fakeSource) ReadRTP() (*rtp.Packet, error) {
	select {
	case <-s.closed:
		return nil, io.EOF
	case pkt := <-s.pkts:
		return pkt, nil
	}
}

func (s *fakeSource) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *fakeSource) emitFrame() {
	s.pkts <- &rtp.Packet{Header: rtp.Header{Version: 2}}
}

func (s *fakeSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeSurface struct {
	mu       sync.Mutex
	frames   int
	releases int
}

func newFakeSurface() *fakeSurface { return &fakeSurface{} }

func (s *fakeSurface) ID() string { return "surface-test" }

func (s *fakeSurface) WriteFrame(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *fakeSurface) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releases++
}

func (s *fakeSurface) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *fakeSurface) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releases
}
