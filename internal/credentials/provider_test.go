package credentials

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openyouth/livehall/internal/domain"
)

func TestIssue(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/credentials", r.URL.Path)

		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hall-42", req["channelName"])
		assert.Equal(t, "viewer-1", req["viewerIdentity"])
		assert.Equal(t, "audience", req["role"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.JoinCredential{
			AppID:          "app-1",
			ChannelName:    "hall-42",
			Token:          "tok_abc",
			ViewerIdentity: "viewer-1",
			ExpiresAt:      time.Now().Add(time.Hour),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	cred, err := c.Issue(context.Background(), "hall-42", "viewer-1")
	require.NoError(t, err)
	assert.Equal(t, "tok_abc", cred.Token)
	assert.False(t, cred.Expired(time.Now()))
}

func TestIssueDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Issue(context.Background(), "hall-42", "viewer-1")
	assert.ErrorIs(t, err, domain.ErrCredentialDenied)
}

func TestIssueAlreadyExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(domain.JoinCredential{
			Token:     "tok_old",
			ExpiresAt: time.Now().Add(-time.Minute),
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Issue(context.Background(), "hall-42", "viewer-1")
	assert.ErrorIs(t, err, domain.ErrCredentialExpired)
}
