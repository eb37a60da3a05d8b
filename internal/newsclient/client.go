package newsclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"blogbeacon/internal/metrics"
	"blogbeacon/pkg/domain"
)

// Client reads headlines from the newsdata.io latest-news feed. It shares no
// state with the rest of the application; every call is a fresh fetch.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// NewClient constructs a news feed client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithMetrics makes the client record a duration observation per call.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// Latest fetches the newest articles matching query.
func (c *Client) Latest(ctx context.Context, query string) ([]domain.Article, error) {
	start := time.Now()
	articles, err := c.latest(ctx, query)
	if c.metrics != nil {
		c.metrics.ObserveUpstream("news", "latest", start, err)
	}
	return articles, err
}

func (c *Client) latest(ctx context.Context, query string) ([]domain.Article, error) {
	params := url.Values{}
	params.Set("apikey", c.apiKey)
	params.Set("q", query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("news feed: %s", resp.Status)
	}
	var out struct {
		Results []domain.Article `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Results, nil
}
