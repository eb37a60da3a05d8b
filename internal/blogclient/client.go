package blogclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"blogbeacon/internal/metrics"
	"blogbeacon/pkg/domain"
)

// ErrNotFound reports that the requested blog does not exist upstream.
var ErrNotFound = errors.New("blog not found")

// Client calls the blog endpoints of the blog API over HTTP.
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

// NewClient constructs a blog API client.
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

// AllBlogs lists every post.
func (c *Client) AllBlogs(ctx context.Context) ([]domain.Blog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/blog/all-blogs", nil)
	if err != nil {
		return nil, err
	}
	var resp listBlogsResponse
	if err := c.do("all-blogs", req, &resp); err != nil {
		return nil, err
	}
	return resp.Blogs, nil
}

// GetBlog fetches a single post with its owner embedded.
func (c *Client) GetBlog(ctx context.Context, id string) (domain.Blog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/blog/get-blog/"+id, nil)
	if err != nil {
		return domain.Blog{}, err
	}
	var resp blogResponse
	if err := c.do("get-blog", req, &resp); err != nil {
		return domain.Blog{}, err
	}
	return resp.Blog, nil
}

// BlogForm is the create/update payload. UserID names the owning account;
// the API expects it in the "user" form field. Image is optional on update.
type BlogForm struct {
	Title       string
	Description string
	Category    string
	UserID      string
	Image       io.Reader
	ImageName   string
}

// CreateBlog creates a post via the multipart create endpoint.
func (c *Client) CreateBlog(ctx context.Context, form BlogForm) error {
	return c.sendBlogForm(ctx, "create-blog", http.MethodPost, "/api/v1/blog/create-blog", form)
}

// UpdateBlog replaces the editable fields of a post.
func (c *Client) UpdateBlog(ctx context.Context, id string, form BlogForm) error {
	return c.sendBlogForm(ctx, "update-blog", http.MethodPut, "/api/v1/blog/update-blog/"+id, form)
}

func (c *Client) sendBlogForm(ctx context.Context, op, method, path string, form BlogForm) error {
	fields := map[string]string{
		"title":       form.Title,
		"description": form.Description,
		"category":    form.Category,
		"user":        form.UserID,
	}
	body, contentType, err := buildMultipart(fields, "image", form.ImageName, form.Image)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	var resp envelope
	return c.do(op, req, &resp)
}

// DeleteBlog removes a post.
func (c *Client) DeleteBlog(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/api/v1/blog/delete-blog/"+id, nil)
	if err != nil {
		return err
	}
	var resp envelope
	return c.do("delete-blog", req, &resp)
}

// UserBlogs lists the posts owned by one account.
func (c *Client) UserBlogs(ctx context.Context, userID string) ([]domain.Blog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/blog/user-blog/"+userID, nil)
	if err != nil {
		return nil, err
	}
	var resp userBlogResponse
	if err := c.do("user-blog", req, &resp); err != nil {
		return nil, err
	}
	return resp.UserBlog.Blogs, nil
}

// UploadResult is the generic upload endpoint's answer.
type UploadResult struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// Upload sends a file through the generic /upload passthrough. The endpoint
// predates the success envelope, so any 2xx body is taken at face value.
func (c *Client) Upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	start := time.Now()
	out, err := c.upload(ctx, filename, r)
	if c.metrics != nil {
		c.metrics.ObserveUpstream("blog", "upload", start, err)
	}
	return out, err
}

func (c *Client) upload(ctx context.Context, filename string, r io.Reader) (UploadResult, error) {
	body, contentType, err := buildMultipart(nil, "file", filename, r)
	if err != nil {
		return UploadResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return UploadResult{}, &APIError{Status: resp.StatusCode, Message: resp.Status}
	}
	var out UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return UploadResult{}, err
	}
	return out, nil
}

// Recent returns up to n blogs, newest first, without asking the upstream to
// sort or limit. The input slice is not modified.
func Recent(blogs []domain.Blog, n int) []domain.Blog {
	sorted := make([]domain.Blog, len(blogs))
	copy(sorted, blogs)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// do funnels every enveloped response through one decode path and records
// the call's duration and outcome when metrics are attached.
func (c *Client) do(op string, req *http.Request, out response) error {
	start := time.Now()
	err := c.send(req, out)
	if c.metrics != nil {
		c.metrics.ObserveUpstream("blog", op, start, err)
	}
	return err
}

// send performs one request: transport errors pass through, 404 becomes
// ErrNotFound, any HTTP error status or a success:false envelope becomes
// *APIError. Callers never see a raw envelope.
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

func buildMultipart(fields map[string]string, fileField, fileName string, file io.Reader) (io.Reader, string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, "", err
		}
	}
	if file != nil {
		part, err := writer.CreateFormFile(fileField, fileName)
		if err != nil {
			return nil, "", err
		}
		if _, err := io.Copy(part, file); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return body, writer.FormDataContentType(), nil
}

type response interface {
	result() (bool, string)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (e *envelope) result() (bool, string) { return e.Success, e.Message }

type listBlogsResponse struct {
	envelope
	Blogs []domain.Blog `json:"blogs"`
}

type blogResponse struct {
	envelope
	Blog domain.Blog `json:"blog"`
}

type userBlogResponse struct {
	envelope
	UserBlog struct {
		Blogs []domain.Blog `json:"blogs"`
	} `json:"userBlog"`
}
