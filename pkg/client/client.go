// Package client provides an HTTP client for a sessiond daemon, so hooks
// and wrappers can register sessions against a shared manager instead of
// operating on the registry file directly.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger // optional
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8080/api",
		Timeout: 10 * time.Second,
	}
}

// Client talks to the sessiond HTTP API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// New creates a client from config.
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().BaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	lg := cfg.Logger
	if lg == nil {
		lg = slog.Default()
	}
	return &Client{
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  lg,
	}
}

// Status mirrors the manager's resource snapshot as served over HTTP.
type Status struct {
	ActiveSessions       int            `json:"active_sessions"`
	MaxSessions          int            `json:"max_sessions"`
	TotalProcesses       int            `json:"total_processes"`
	ProcessWarnThreshold int            `json:"process_warn_threshold"`
	ProcessHardLimit     int            `json:"process_hard_limit"`
	Sessions             []SessionEntry `json:"sessions"`
	Warnings             []string       `json:"warnings,omitempty"`
}

// SessionEntry mirrors one registered session.
type SessionEntry struct {
	SessionID          string `json:"session_id"`
	PID                int    `json:"pid"`
	RepoPath           string `json:"repo_path"`
	StartTime          string `json:"start_time"`
	EstimatedProcesses int    `json:"estimated_processes"`
}

type errorResp struct {
	Error string `json:"error"`
}

// Register registers a session for repoPath and returns its id.
func (c *Client) Register(ctx context.Context, repoPath string, estimated int) (string, error) {
	body, _ := json.Marshal(map[string]any{
		"repo_path":           repoPath,
		"estimated_processes": estimated,
	})
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/register", bytes.NewReader(body), &out); err != nil {
		return "", err
	}
	return out.SessionID, nil
}

// Unregister removes a session by id. Unknown ids are not an error.
func (c *Client) Unregister(ctx context.Context, sessionID string) error {
	p := "/unregister?session_id=" + url.QueryEscape(sessionID)
	return c.do(ctx, http.MethodPost, p, nil, nil)
}

// Status fetches the non-throwing status snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.do(ctx, http.MethodGet, "/status", nil, &st)
	return st, err
}

// Check runs a limit check for the named operation.
func (c *Client) Check(ctx context.Context, operation string) (Status, error) {
	var st Status
	p := "/check"
	if operation != "" {
		p += "?operation=" + url.QueryEscape(operation)
	}
	err := c.do(ctx, http.MethodPost, p, nil, &st)
	return st, err
}

// Cleanup forces a stale-session sweep and returns the removed count.
func (c *Client) Cleanup(ctx context.Context) (int, error) {
	var out struct {
		Removed int `json:"removed"`
	}
	err := c.do(ctx, http.MethodPost, "/cleanup", nil, &out)
	return out.Removed, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var er errorResp
		if jsonErr := json.Unmarshal(data, &er); jsonErr == nil && er.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, er.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	c.logger.Debug("api call ok", "method", method, "path", path)
	return nil
}
