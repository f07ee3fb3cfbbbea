package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"shuttle/internal/services"
)

const defaultClientTimeout = 10 * time.Second

// Error is a non-2xx API reply. It unwraps to the services marker matching
// the status code.
type Error struct {
	StatusCode int
	Message    string
	Kind       string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("api: %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	switch e.StatusCode {
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusConflict:
		return services.ErrInvalidState
	case http.StatusUnauthorized:
		return services.ErrConfiguration
	default:
		return nil
	}
}

// Client talks to the daemon HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// NewClient builds a client for baseURL. token is sent as a bearer token
// when non-empty.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{Timeout: defaultClientTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL turns a bind address such as "127.0.0.1:7490" into a client URL.
// Wildcard hosts are dialed on loopback.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	if strings.HasPrefix(bind, ":") {
		bind = "127.0.0.1" + bind
	}
	if rest, ok := strings.CutPrefix(bind, "0.0.0.0:"); ok {
		bind = "127.0.0.1:" + rest
	}
	return "http://" + bind
}

// Status fetches daemon runtime information.
func (c *Client) Status(ctx context.Context) (*DaemonStatus, error) {
	var resp DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List fetches one page of missions.
func (c *Client) List(ctx context.Context, q ListQuery) (*MissionListResponse, error) {
	values := url.Values{}
	if q.Page > 0 {
		values.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		values.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.Status != "" {
		values.Set("status", q.Status)
	}
	if q.Sort != "" {
		values.Set("sort", q.Sort)
	}
	if q.Order != "" {
		values.Set("order", q.Order)
	}
	path := "/api/missions"
	if encoded := values.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp MissionListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get fetches one mission.
func (c *Client) Get(ctx context.Context, uid string) (*Mission, error) {
	var resp MissionResponse
	if err := c.do(ctx, http.MethodGet, missionPath(uid, ""), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Mission, nil
}

// Create submits a new mission.
func (c *Client) Create(ctx context.Context, req CreateMissionRequest) (*CreateMissionResponse, error) {
	var resp CreateMissionResponse
	if err := c.do(ctx, http.MethodPost, "/api/missions", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Pause asks the daemon to pause uid.
func (c *Client) Pause(ctx context.Context, uid string) (*Mission, error) {
	return c.control(ctx, uid, "pause")
}

// Resume asks the daemon to resume uid.
func (c *Client) Resume(ctx context.Context, uid string) (*Mission, error) {
	return c.control(ctx, uid, "resume")
}

// Stop asks the daemon to stop uid.
func (c *Client) Stop(ctx context.Context, uid string) (*Mission, error) {
	return c.control(ctx, uid, "stop")
}

// Delete removes uid and its staging files.
func (c *Client) Delete(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodDelete, missionPath(uid, ""), nil, nil)
}

func (c *Client) control(ctx context.Context, uid, action string) (*Mission, error) {
	var resp MissionResponse
	if err := c.do(ctx, http.MethodPost, missionPath(uid, action), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Mission, nil
}

func missionPath(uid, action string) string {
	path := "/api/missions/" + url.PathEscape(uid)
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("contact daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		var payload ErrorResponse
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10)); readErr == nil {
			if json.Unmarshal(data, &payload) == nil {
				apiErr.Message = payload.Error
				apiErr.Kind = payload.Kind
			} else {
				apiErr.Message = strings.TrimSpace(string(data))
			}
		}
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
