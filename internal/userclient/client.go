package userclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"blogbeacon/internal/metrics"
	"blogbeacon/pkg/domain"
)

// ErrNotFound reports that the requested user does not exist upstream.
var ErrNotFound = errors.New("user not found")

// Client calls the user endpoints of the blog API over HTTP.
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

// NewClient constructs a user API client.
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

// LoginResult carries the API token and the authenticated user.
type LoginResult struct {
	Token string
	User  domain.User
}

// Login exchanges credentials for a token and the user record.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	payload := map[string]string{"email": email, "password": password}
	data, err := json.Marshal(payload)
	if err != nil {
		return LoginResult{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/user/login", bytes.NewReader(data))
	if err != nil {
		return LoginResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp loginResponse
	if err := c.do("login", req, &resp); err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: resp.Token, User: resp.User}, nil
}

// RegisterForm is the sign-up payload. Image is optional.
type RegisterForm struct {
	Username  string
	Email     string
	Password  string
	Image     io.Reader
	ImageName string
}

// Register creates a new account via the multipart register endpoint.
func (c *Client) Register(ctx context.Context, form RegisterForm) error {
	fields := map[string]string{
		"username": form.Username,
		"email":    form.Email,
		"password": form.Password,
	}
	body, contentType, err := buildMultipart(fields, "image", form.ImageName, form.Image)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/user/register", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	var resp envelope
	return c.do("register", req, &resp)
}

// CurrentUser fetches the profile (account + own blogs) for a user id.
func (c *Client) CurrentUser(ctx context.Context, id string) (domain.UserProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/user/current-user/"+id, nil)
	if err != nil {
		return domain.UserProfile{}, err
	}
	var resp profileResponse
	if err := c.do("current-user", req, &resp); err != nil {
		return domain.UserProfile{}, err
	}
	return resp.UserProfile, nil
}

// UpdateForm is the profile update payload. Zero fields are still sent; the
// API treats the form as a full replacement of the editable fields.
type UpdateForm struct {
	Username  string
	Email     string
	Image     io.Reader
	ImageName string
}

// UpdateUser updates the account via the multipart update endpoint.
func (c *Client) UpdateUser(ctx context.Context, id string, form UpdateForm) error {
	fields := map[string]string{
		"username": form.Username,
		"email":    form.Email,
	}
	body, contentType, err := buildMultipart(fields, "image", form.ImageName, form.Image)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/api/v1/user/update-user/"+id, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)

	var resp envelope
	return c.do("update-user", req, &resp)
}

// AllUsers lists every account.
func (c *Client) AllUsers(ctx context.Context) ([]domain.User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/user/all-users", nil)
	if err != nil {
		return nil, err
	}
	var resp listUsersResponse
	if err := c.do("all-users", req, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// do funnels every response through one decode path and records the call's
// duration and outcome when metrics are attached.
func (c *Client) do(op string, req *http.Request, out response) error {
	start := time.Now()
	err := c.send(req, out)
	if c.metrics != nil {
		c.metrics.ObserveUpstream("user", op, start, err)
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

type loginResponse struct {
	envelope
	Token string      `json:"token"`
	User  domain.User `json:"user"`
}

type profileResponse struct {
	envelope
	UserProfile domain.UserProfile `json:"userProfile"`
}

type listUsersResponse struct {
	envelope
	Users []domain.User `json:"users"`
}
