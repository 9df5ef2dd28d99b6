// Package browserbase is a minimal client for the Browserbase session API.
//
// It covers the two operations the bridge needs from the remote session
// provider: creating a cloud browser session (yielding a CDP connect URL and
// a human-viewable live view) and releasing it again.
package browserbase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the production Browserbase API endpoint.
const DefaultBaseURL = "https://api.browserbase.com/v1"

// Session represents an active cloud browser session.
type Session struct {
	ID         string `json:"id"`
	ProjectID  string `json:"projectId"`
	Status     string `json:"status"`
	ConnectURL string `json:"connectUrl"`
}

// LiveViewURL returns the human-viewable URL for this session, surfaced for
// debugging and observability only.
func (s *Session) LiveViewURL() string {
	return "https://browserbase.com/sessions/" + s.ID
}

// APIError is returned when the API responds with a non-success status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("browserbase: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the Browserbase REST API.
type Client struct {
	apiKey     string
	projectID  string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Browserbase client for the given project.
func NewClient(apiKey, projectID string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		projectID:  projectID,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type createSessionRequest struct {
	ProjectID string `json:"projectId"`
}

type updateSessionRequest struct {
	ProjectID string `json:"projectId"`
	Status    string `json:"status"`
}

// CreateSession requests a new remote browser session.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	var session Session
	err := c.do(ctx, http.MethodPost, "/sessions", createSessionRequest{ProjectID: c.projectID}, &session)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session.ConnectURL == "" {
		return nil, fmt.Errorf("create session: response missing connectUrl")
	}
	return &session, nil
}

// DeleteSession releases a remote browser session. Releasing a session that
// has already ended is not an error on the provider side.
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	req := updateSessionRequest{ProjectID: c.projectID, Status: "REQUEST_RELEASE"}
	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID, req, nil); err != nil {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return nil
}

// Validate performs a credential probe by creating and immediately releasing
// a session. It returns the probe session for display.
func (c *Client) Validate(ctx context.Context) (*Session, error) {
	session, err := c.CreateSession(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.DeleteSession(ctx, session.ID); err != nil {
		return session, err
	}
	return session, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-BB-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
