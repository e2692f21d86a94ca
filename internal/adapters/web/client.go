package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/corey/dashhub/internal/ports"
)

// Client talks to a running daemon's JSON API. Used by the CLI.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the daemon at baseURL (e.g. http://localhost:31415).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Ping reports whether the daemon answers its health check.
func (c *Client) Ping(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	_, err := c.Health(ctx)
	return err == nil
}

// Health fetches GET /api/health.
func (c *Client) Health(ctx context.Context) (*HealthResult, error) {
	var out HealthResult
	if err := c.do(ctx, http.MethodGet, "/api/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Notify creates a notification.
func (c *Client) Notify(ctx context.Context, n ports.NewNotification) (*ports.Notification, error) {
	var out struct {
		Notification *ports.Notification `json:"notification"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications", n, &out); err != nil {
		return nil, err
	}
	return out.Notification, nil
}

// Unread fetches the unread summary.
func (c *Client) Unread(ctx context.Context) (*UnreadResult, error) {
	var out UnreadResult
	if err := c.do(ctx, http.MethodGet, "/api/notifications/unread", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkAllRead marks every unread notification read, optionally for one project.
func (c *Client) MarkAllRead(ctx context.Context, projectID string) (int, error) {
	body := map[string]string{"project_id": projectID}
	var out struct {
		Updated int `json:"updated"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/notifications/read-all", body, &out); err != nil {
		return 0, err
	}
	return out.Updated, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
