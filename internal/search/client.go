// Package search retrieves news context through the Google Custom Search
// API. Results are fed to the explainer as optional background for memes
// referencing current events.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/flemzord/memerelay/internal/config"
)

const maxResponseBytes = 1 << 20

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client queries a Custom Search engine.
type Client struct {
	cfg  config.SearchConfig
	http *http.Client
}

// NewClient creates a search client from config.
func NewClient(cfg config.SearchConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 15 * time.Second},
	}
}

type searchResponse struct {
	Items []Result `json:"items"`
}

// Search returns up to the configured limit of results for the query.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("cx", c.cfg.CX)
	params.Set("key", c.cfg.APIKey)
	params.Set("num", fmt.Sprint(c.cfg.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("search: create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search: HTTP %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("search: read response: %w", err)
	}

	var sr searchResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return nil, fmt.Errorf("search: decode response: %w", err)
	}

	items := sr.Items
	if len(items) > c.cfg.Limit {
		items = items[:c.cfg.Limit]
	}
	return items, nil
}
