// Package api is the HTTP client for the authoring server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/vburojevic/hotswap/internal/domain"
)

// ErrInvalidID is returned for an id that cannot be a single path segment
var ErrInvalidID = errors.New("invalid id")

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL    string
	Code   int
	Status string
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("GET %s: %s: %s", e.URL, e.Status, e.Body)
	}
	return fmt.Sprintf("GET %s: %s", e.URL, e.Status)
}

// NotFound reports whether the server answered 404
func (e *StatusError) NotFound() bool { return e.Code == http.StatusNotFound }

// Client fetches session artifacts. It sets no per-request timeout: a stalled
// fetch is bounded only by the caller's context.
type Client struct {
	base *url.URL
	http *http.Client
	log  *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a client for the server at baseURL
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server url %q: scheme must be http or https", baseURL)
	}
	c := &Client{base: u, http: &http.Client{}, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// endpoint appends each part to the base path as exactly one segment.
// Slashes inside a part are escaped; empty and dot parts are rejected.
func (c *Client) endpoint(parts ...string) (string, error) {
	u := *c.base
	path := strings.TrimSuffix(u.Path, "/")
	raw := strings.TrimSuffix(u.EscapedPath(), "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidID, part)
		}
		path += "/" + part
		raw += "/" + url.PathEscape(part)
	}
	u.Path, u.RawPath = path, raw
	return u.String(), nil
}

func (c *Client) get(ctx context.Context, parts ...string) ([]byte, error) {
	target, err := c.endpoint(parts...)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	c.log.Debug("fetch", zap.String("url", target))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("GET %s: read body: %w", target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			URL:    target,
			Code:   resp.StatusCode,
			Status: resp.Status,
			Body:   strings.TrimSpace(truncate(string(body), 200)),
		}
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, v interface{}, parts ...string) error {
	body, err := c.get(ctx, parts...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("GET /%s: decode: %w", strings.Join(parts, "/"), err)
	}
	return nil
}

// AppBundle fetches the whole-app bundle source
func (c *Client) AppBundle(ctx context.Context, sessionID string) (string, error) {
	body, err := c.get(ctx, "session", sessionID, "app-bundle")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// Navigation fetches the navigation config
func (c *Client) Navigation(ctx context.Context, sessionID string) (*domain.NavigationWire, error) {
	var nav domain.NavigationWire
	if err := c.getJSON(ctx, &nav, "session", sessionID, "navigation"); err != nil {
		return nil, err
	}
	return &nav, nil
}

// Screens lists the known screens in server order
func (c *Client) Screens(ctx context.Context, sessionID string) ([]domain.ScreenInfo, error) {
	var out struct {
		Screens []domain.ScreenInfo `json:"screens"`
	}
	if err := c.getJSON(ctx, &out, "session", sessionID, "screens"); err != nil {
		return nil, err
	}
	return out.Screens, nil
}

// Screen fetches one screen's source and metadata
func (c *Client) Screen(ctx context.Context, sessionID, screenID string) (*domain.ScreenSource, error) {
	var src domain.ScreenSource
	if err := c.getJSON(ctx, &src, "session", sessionID, "screen", screenID); err != nil {
		return nil, err
	}
	if src.ID == "" {
		src.ID = screenID
	}
	return &src, nil
}

// Overrides lists the screen overrides of a session
func (c *Client) Overrides(ctx context.Context, sessionID string) ([]domain.OverrideInfo, error) {
	var out struct {
		Screens []domain.OverrideInfo `json:"screens"`
	}
	if err := c.getJSON(ctx, &out, "session", sessionID, "direct-screens"); err != nil {
		return nil, err
	}
	return out.Screens, nil
}

// Override fetches one override's source
func (c *Client) Override(ctx context.Context, sessionID, screenID string) (*domain.OverrideSource, error) {
	var src domain.OverrideSource
	if err := c.getJSON(ctx, &src, "session", sessionID, "direct-screen", screenID); err != nil {
		return nil, err
	}
	if src.ScreenID == "" {
		src.ScreenID = screenID
	}
	return &src, nil
}

// Session looks up session metadata by id
func (c *Client) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	var s domain.Session
	if err := c.getJSON(ctx, &s, "sessions", sessionID); err != nil {
		return nil, err
	}
	if s.ID == "" {
		s.ID = sessionID
	}
	return &s, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
