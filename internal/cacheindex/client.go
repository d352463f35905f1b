// Package cacheindex talks to the optional indexing service that mirrors
// registry state for fast reads. Callers treat "not yet indexed" as a cue to
// fall back to raw event scanning; every other failure surfaces.
package cacheindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrNotIndexed = errors.New("resource is not indexed yet")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type childrenResponse struct {
	Applications []string `json:"applications"`
}

// ChildApplications returns the labels of live applications directly under
// the given namespace, as seen by the index.
func (c *Client) ChildApplications(ctx context.Context, path string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v1/namespaces/%s/applications", c.baseURL, url.PathEscape(path))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotIndexed, path)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("cache index returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed childrenResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode cache index response: %w", err)
	}
	return parsed.Applications, nil
}
