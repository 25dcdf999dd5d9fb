// Package credentials talks to the external service that mints
// short-lived, role-scoped join credentials.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/openyouth/livehall/internal/domain"
)

type Client struct {
	base string
	http *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 5 * time.Second},
	}
}

type issueRequest struct {
	ChannelName    domain.ChannelName `json:"channelName"`
	ViewerIdentity domain.ViewerID    `json:"viewerIdentity"`
	Role           string             `json:"role"`
}

// Issue mints one audience credential for the viewer. Credentials are
// single-use; issuance is not retried here because a failed join needs
// a fresh credential anyway.
func (c *Client) Issue(ctx context.Context, channel domain.ChannelName, viewer domain.ViewerID) (domain.JoinCredential, error) {
	body, err := json.Marshal(issueRequest{
		ChannelName:    channel,
		ViewerIdentity: viewer,
		Role:           "audience",
	})
	if err != nil {
		return domain.JoinCredential{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/credentials", bytes.NewReader(body))
	if err != nil {
		return domain.JoinCredential{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.JoinCredential{}, fmt.Errorf("credential request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.JoinCredential{}, domain.ErrCredentialDenied
	case resp.StatusCode != http.StatusOK:
		return domain.JoinCredential{}, fmt.Errorf("credential service returned %d", resp.StatusCode)
	}

	var cred domain.JoinCredential
	if err := json.NewDecoder(resp.Body).Decode(&cred); err != nil {
		return domain.JoinCredential{}, fmt.Errorf("decode credential: %w", err)
	}
	if cred.Expired(time.Now()) {
		return domain.JoinCredential{}, domain.ErrCredentialExpired
	}
	return cred, nil
}
