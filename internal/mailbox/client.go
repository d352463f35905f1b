// Package mailbox is the store-and-forward fallback transport: an
// HTTP-addressable per-identity message queue keyed by DID, used when the
// push transport is not configured.
package mailbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient builds a mailbox client. Posts are rate limited client-side so a
// burst of per-issuer dispatches cannot hammer the mailbox service.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(10), 20),
	}
}

type postRequest struct {
	Payload []byte `json:"payload"`
}

type fetchResponse struct {
	Messages [][]byte `json:"messages"`
}

// Post appends a payload to the mailbox entry of the given DID.
func (c *Client) Post(ctx context.Context, did string, payload []byte) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(postRequest{Payload: payload})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/v1/mailboxes/%s/messages", c.baseURL, url.PathEscape(did))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mailbox post returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Fetch drains the pending payloads in the mailbox entry of the given DID.
func (c *Client) Fetch(ctx context.Context, did string) ([][]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/mailboxes/%s/messages", c.baseURL, url.PathEscape(did))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mailbox fetch returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	var parsed fetchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode mailbox response: %w", err)
	}
	return parsed.Messages, nil
}
