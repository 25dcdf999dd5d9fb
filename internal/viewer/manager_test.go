package viewer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyouth/livehall/internal/core"
	"github.com/openyouth/livehall/internal/domain"
)

type fakeResolver struct {
	desc domain.SessionDescriptor
	err  error
}

func (r *fakeResolver) Resolve(ctx context.Context, id domain.SessionID) (domain.SessionDescriptor, error) {
	if r.err != nil {
		return domain.SessionDescriptor{}, r.err
	}
	return r.desc, nil
}

type fakeCreds struct {
	err error
}

func (c *fakeCreds) Issue(ctx context.Context, channel domain.ChannelName, viewer domain.ViewerID) (domain.JoinCredential, error) {
	if c.err != nil {
		return domain.JoinCredential{}, c.err
	}
	return domain.JoinCredential{
		AppID:          "app-1",
		ChannelName:    channel,
		Token:          "tok_test",
		ViewerIdentity: viewer,
		ExpiresAt:      time.Now().Add(time.Hour),
	}, nil
}

func newTestManager(resolver *fakeResolver, creds *fakeCreds) (*Manager, *sync.Map) {
	transports := &sync.Map{}
	mgr := NewManager(
		resolver,
		creds,
		func() core.Transport {
			tr := newFakeTransport()
			transports.Store(tr, struct{}{})
			return tr
		},
		func() core.RenderSurface { return newFakeSurface() },
		testOptions(),
	)
	return mgr, transports
}

func TestManagerOpenAndClose(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{})

	v, err := mgr.Open(context.Background(), "viewer-1", "42")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, domain.ChannelName("hall-42"), v.Descriptor.ChannelName)

	got, ok := mgr.Get("viewer-1")
	require.True(t, ok)
	assert.Equal(t, v, got)

	mgr.Close("viewer-1")
	_, ok = mgr.Get("viewer-1")
	assert.False(t, ok)
	assert.Equal(t, domain.StateClosed, v.Client.State().Snapshot().ConnectionState)
}

func TestManagerSecondOpenRejected(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{})

	_, err := mgr.Open(context.Background(), "viewer-1", "42")
	require.NoError(t, err)

	_, err = mgr.Open(context.Background(), "viewer-1", "42")
	assert.ErrorIs(t, err, domain.ErrSessionActive)
}

func TestManagerOpenNotLive(t *testing.T) {
	desc := testDescriptor()
	desc.IsLive = false
	mgr, _ := newTestManager(&fakeResolver{desc: desc}, &fakeCreds{})

	_, err := mgr.Open(context.Background(), "viewer-1", "42")
	assert.ErrorIs(t, err, domain.ErrSessionNotLive)

	// The failed open must not hold the slot.
	_, ok := mgr.Get("viewer-1")
	assert.False(t, ok)
}

func TestManagerOpenResolverError(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{err: domain.ErrDescriptorNotFound}, &fakeCreds{})

	_, err := mgr.Open(context.Background(), "viewer-1", "42")
	assert.ErrorIs(t, err, domain.ErrDescriptorNotFound)
}

func TestManagerOpenCredentialError(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{err: domain.ErrCredentialDenied})

	_, err := mgr.Open(context.Background(), "viewer-1", "42")
	assert.ErrorIs(t, err, domain.ErrCredentialDenied)
	_, ok := mgr.Get("viewer-1")
	assert.False(t, ok)
}

func TestManagerCloseUnknownIsNoOp(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{})
	mgr.Close("nobody")
}

func TestManagerCloseDuringOpenWins(t *testing.T) {
	transport := newFakeTransport()
	transport.blockJoin = true
	mgr := NewManager(
		&fakeResolver{desc: testDescriptor()},
		&fakeCreds{},
		func() core.Transport { return transport },
		func() core.RenderSurface { return newFakeSurface() },
		testOptions(),
	)

	type openResult struct {
		v   *Viewer
		err error
	}
	done := make(chan openResult, 1)
	go func() {
		v, err := mgr.Open(context.Background(), "viewer-1", "42")
		done <- openResult{v: v, err: err}
	}()

	<-transport.joinStarted
	mgr.Close("viewer-1")

	// The join now resolves successfully, after the close.
	transport.joinRelease <- nil
	res := <-done

	require.ErrorIs(t, res.err, domain.ErrSessionClosed)
	assert.Nil(t, res.v)
	_, ok := mgr.Get("viewer-1")
	assert.False(t, ok, "closed viewer was reinstated by the open commit")
	assert.GreaterOrEqual(t, transport.leaves(), 1, "session joined after close leaked")
}

func TestManagerSlotFreeAfterCloseDuringOpen(t *testing.T) {
	transport := newFakeTransport()
	transport.blockJoin = true
	var second *fakeTransport
	first := true
	mgr := NewManager(
		&fakeResolver{desc: testDescriptor()},
		&fakeCreds{},
		func() core.Transport {
			if first {
				first = false
				return transport
			}
			second = newFakeTransport()
			return second
		},
		func() core.RenderSurface { return newFakeSurface() },
		testOptions(),
	)

	done := make(chan error, 1)
	go func() {
		_, err := mgr.Open(context.Background(), "viewer-1", "42")
		done <- err
	}()

	<-transport.joinStarted
	mgr.Close("viewer-1")

	// A second open takes the slot while the first is still in flight.
	v, err := mgr.Open(context.Background(), "viewer-1", "42")
	require.NoError(t, err)
	require.NotNil(t, v)

	transport.joinRelease <- nil
	require.ErrorIs(t, <-done, domain.ErrSessionClosed)

	// Exactly one live session remains: the second open's.
	got, ok := mgr.Get("viewer-1")
	require.True(t, ok)
	assert.Equal(t, v, got)
	assert.GreaterOrEqual(t, transport.leaves(), 1)
	assert.Equal(t, 0, second.leaves())
}

func TestManagerEvictsIdleViewers(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{})

	v, err := mgr.Open(context.Background(), "viewer-1", "42")
	require.NoError(t, err)

	mgr.mu.Lock()
	v.touchedAt = time.Now().Add(-time.Hour)
	mgr.mu.Unlock()

	mgr.evictIdle(time.Now().Add(-30 * time.Minute))

	_, ok := mgr.Get("viewer-1")
	assert.False(t, ok)
	assert.Equal(t, domain.StateClosed, v.Client.State().Snapshot().ConnectionState)
}

func TestManagerGetRefreshesIdleDeadline(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{})

	v, err := mgr.Open(context.Background(), "viewer-1", "42")
	require.NoError(t, err)

	mgr.mu.Lock()
	v.touchedAt = time.Now().Add(-time.Hour)
	mgr.mu.Unlock()

	// A state fetch counts as activity.
	_, ok := mgr.Get("viewer-1")
	require.True(t, ok)

	mgr.evictIdle(time.Now().Add(-30 * time.Minute))

	_, ok = mgr.Get("viewer-1")
	assert.True(t, ok, "recently used viewer was evicted")
}

func TestManagerShutdownClosesAll(t *testing.T) {
	mgr, _ := newTestManager(&fakeResolver{desc: testDescriptor()}, &fakeCreds{})

	v1, err := mgr.Open(context.Background(), "viewer-1", "42")
	require.NoError(t, err)
	v2, err := mgr.Open(context.Background(), "viewer-2", "42")
	require.NoError(t, err)

	mgr.Shutdown()

	assert.Equal(t, domain.StateClosed, v1.Client.State().Snapshot().ConnectionState)
	assert.Equal(t, domain.StateClosed, v2.Client.State().Snapshot().ConnectionState)
	_, ok := mgr.Get("viewer-1")
	assert.False(t, ok)
}
