// Package directory looks session descriptors up in the external
// directory service.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/openyouth/livehall/internal/domain"
)

type Client struct {
	base       string
	http       *http.Client
	maxElapsed time.Duration
}

func NewClient(baseURL string, maxElapsed time.Duration) *Client {
	return &Client{
		base:       baseURL,
		http:       &http.Client{Timeout: 5 * time.Second},
		maxElapsed: maxElapsed,
	}
}

// Resolve fetches the descriptor for id. Transient network failures are
// retried with capped exponential backoff; a missing session is
// permanent and returns ErrDescriptorNotFound at once.
func (c *Client) Resolve(ctx context.Context, id domain.SessionID) (domain.SessionDescriptor, error) {
	var desc domain.SessionDescriptor

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet,
			fmt.Sprintf("%s/api/sessions/%s", c.base, id), nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("module", "directory").Str("session", string(id)).Msg("descriptor fetch, retrying")
			return err
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return backoff.Permanent(domain.ErrDescriptorNotFound)
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("directory returned %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&desc); err != nil {
			return backoff.Permanent(fmt.Errorf("decode descriptor: %w", err))
		}
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = c.maxElapsed
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return domain.SessionDescriptor{}, err
	}
	return desc, nil
}
