package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyouth/livehall/internal/domain"
)

func TestResolve(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sessions/42", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","title":"open stage","channel_name":"hall-42","has_realtime_transport":true,"is_live":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	desc, err := c.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelName("hall-42"), desc.ChannelName)
	assert.True(t, desc.UsesRealtimeTransport)
}

func TestResolveNotFoundIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.Resolve(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrDescriptorNotFound)
	assert.Equal(t, int32(1), calls.Load(), "not-found was retried")
}

func TestResolveRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"42","title":"t","channel_name":"hall-42","has_realtime_transport":true,"is_live":true}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, 5*time.Second)
	desc, err := c.Resolve(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionID("42"), desc.ID)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestResolveHonorsContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(srv.URL, time.Minute)
	_, err := c.Resolve(ctx, "42")
	assert.Error(t, err)
}
