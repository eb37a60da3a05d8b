package commentclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"blogbeacon/internal/metrics"
	"blogbeacon/pkg/domain"
)

// ErrNotFound reports that the addressed blog does not exist upstream.
var ErrNotFound = errors.New("blog not found")

// Client calls the comment endpoints of the blog API over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	metrics    *metrics.Metrics
}

// APIError represents a blog API error response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// NewClient constructs a comment API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// WithMetrics makes the client record a duration observation per call.
func (c *Client) WithMetrics(m *metrics.Metrics) *Client {
	c.metrics = m
	return c
}

// ForBlog lists the comments on one post.
func (c *Client) ForBlog(ctx context.Context, blogID string) ([]domain.Comment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/comments/"+blogID, nil)
	if err != nil {
		return nil, err
	}
	var resp listCommentsResponse
	if err := c.do("comments", req, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// Add posts a comment on behalf of userID.
func (c *Client) Add(ctx context.Context, content, userID, blogID string) (domain.Comment, error) {
	payload := map[string]string{"content": content, "userId": userID, "blogId": blogID}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Comment{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/comments/add-comment", bytes.NewReader(data))
	if err != nil {
		return domain.Comment{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp commentResponse
	if err := c.do("add-comment", req, &resp); err != nil {
		return domain.Comment{}, err
	}
	return resp.Comment, nil
}

// do funnels every response through one decode path and records the call's
// duration and outcome when metrics are attached.
func (c *Client) do(op string, req *http.Request, out response) error {
	start := time.Now()
	err := c.send(req, out)
	if c.metrics != nil {
		c.metrics.ObserveUpstream("comment", op, start, err)
	}
	return err
}

func (c *Client) send(req *http.Request, out response) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var env envelope
		_ = json.NewDecoder(resp.Body).Decode(&env)
		msg := env.Message
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return err
	}
	if ok, msg := out.result(); !ok {
		if msg == "" {
			msg = "request failed"
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	return nil
}

type response interface {
	result() (bool, string)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e *envelope) result() (bool, string) { return e.Success, e.Message }

type listCommentsResponse struct {
	envelope
	Comments []domain.Comment `json:"comments"`
}

type commentResponse struct {
	envelope
	Comment domain.Comment `json:"comment"`
}
