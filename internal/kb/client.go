// Package kb is the client for the CommonTrace knowledge-base API. Every
// call carries a context deadline; callers on the hook path treat any
// error as an empty result so the agent session is never blocked on the
// network.
package kb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/commontrace/tracehook/internal/config"
)

const (
	defaultBaseURL   = "https://api.commontrace.org"
	defaultTimeout   = 3 * time.Second
	telemetryTimeout = 2 * time.Second
	searchLimit      = 3
)

// Trace is one knowledge-base entry.
type Trace struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	ContextText  string   `json:"context_text,omitempty"`
	SolutionText string   `json:"solution_text,omitempty"`
	Tags         []string `json:"tags,omitempty"`
	Votes        int      `json:"votes,omitempty"`
}

// ProjectContext enriches a search with the local project fingerprint.
type ProjectContext struct {
	Language     string   `json:"language,omitempty"`
	Framework    string   `json:"framework,omitempty"`
	Domains      []string `json:"domains,omitempty"`
	SessionCount int      `json:"session_count,omitempty"`
}

// ContributeRequest is the payload for a new trace.
type ContributeRequest struct {
	Title        string                 `json:"title"`
	ContextText  string                 `json:"context_text"`
	SolutionText string                 `json:"solution_text"`
	Tags         []string               `json:"tags,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// TriggerStat is one anonymized trigger effectiveness row.
type TriggerStat struct {
	TriggerType string `json:"trigger_type"`
	Fired       int    `json:"fired"`
	Consumed    int    `json:"consumed"`
}

// Client talks to the CommonTrace API.
type Client struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
}

// New creates a client from config, falling back to the
// COMMONTRACE_API_BASE_URL and COMMONTRACE_API_KEY environment variables.
func New(cfg *config.API) *Client {
	c := &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		timeout: cfg.APITimeout(),
		client:  &http.Client{},
	}
	if env := os.Getenv("COMMONTRACE_API_BASE_URL"); env != "" {
		c.baseURL = env
	}
	if c.apiKey == "" {
		c.apiKey = os.Getenv("COMMONTRACE_API_KEY")
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	c.baseURL = strings.TrimRight(c.baseURL, "/")
	return c
}

// Available reports whether the client has an API key to send.
func (c *Client) Available() bool {
	return c.apiKey != ""
}

// Search queries the knowledge base. Tags and project context are
// optional refinements.
func (c *Client) Search(ctx context.Context, query string, tags []string, pctx *ProjectContext) ([]Trace, error) {
	body := map[string]interface{}{"q": query, "limit": searchLimit}
	if len(tags) > 0 {
		body["tags"] = tags
	}
	if pctx != nil {
		body["context"] = pctx
	}
	var out struct {
		Results []Trace `json:"results"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/traces/search", c.timeout, body, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// Get fetches one trace by id.
func (c *Client) Get(ctx context.Context, id string) (*Trace, error) {
	if id == "" {
		return nil, fmt.Errorf("trace id is required")
	}
	var out Trace
	if err := c.do(ctx, http.MethodGet, "/api/v1/traces/"+id, c.timeout, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Contribute submits a new trace and returns its id.
func (c *Client) Contribute(ctx context.Context, req ContributeRequest) (string, error) {
	if req.Title == "" || req.SolutionText == "" {
		return "", fmt.Errorf("title and solution are required")
	}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/traces", c.timeout, req, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// Vote records feedback on a trace. Direction is "up" or "down".
func (c *Client) Vote(ctx context.Context, id, direction, feedback string) error {
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	body := map[string]string{"direction": direction}
	if feedback != "" {
		body["feedback"] = feedback
	}
	return c.do(ctx, http.MethodPost, "/api/v1/traces/"+id+"/vote", c.timeout, body, nil)
}

// ListTags returns the known trace tags.
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	var out struct {
		Tags []string `json:"tags"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/tags", c.timeout, nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// Amend submits a revised solution for an existing trace.
func (c *Client) Amend(ctx context.Context, id, revisedSolution string) error {
	if revisedSolution == "" {
		return fmt.Errorf("revised solution is required")
	}
	body := map[string]string{"solution_text": revisedSolution}
	return c.do(ctx, http.MethodPost, "/api/v1/traces/"+id+"/amend", c.timeout, body, nil)
}

// ReportTriggerStats posts anonymized trigger effectiveness counters.
// Best effort with a short deadline; callers discard the error.
func (c *Client) ReportTriggerStats(ctx context.Context, sessionID string, stats []TriggerStat) error {
	if len(stats) == 0 {
		return nil
	}
	body := map[string]interface{}{
		"trigger_stats": stats,
		"session_id":    sessionID,
	}
	return c.do(ctx, http.MethodPost, "/api/v1/telemetry/triggers", telemetryTimeout, body, nil)
}

func (c *Client) do(ctx context.Context, method, path string, timeout time.Duration, in, out interface{}) error {
	if !c.Available() {
		return fmt.Errorf("no API key configured")
	}

	var reqBody io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("API error (%d)", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
