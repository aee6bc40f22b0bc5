// Package letta is a small client for the Letta agents REST API.
package letta

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/lettamem/internal/apperr"
)

// Config describes the Letta endpoint.
type Config struct {
	URL        string
	AgentsPath string
	HealthPath string
	Token      string
	Timeout    time.Duration
}

// Agent is the subset of a Letta agent this client reads.
type Agent struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	System      string     `json:"system,omitempty"`
	LLMConfig   *LLMConfig `json:"llm_config,omitempty"`
	CreatedAt   string     `json:"created_at,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("letta: status %d: %s", e.StatusCode, body)
}

// Is makes a 404 response match apperr.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == apperr.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Client talks to a single Letta server.
type Client struct {
	base       *url.URL
	agentsPath string
	healthPath string
	token      string
	httpClient *http.Client
}

// New validates cfg and returns a client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("letta: url is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("letta: parse url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("letta: unsupported url scheme %q", base.Scheme)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		base:       base,
		agentsPath: "/" + strings.Trim(cfg.AgentsPath, "/") + "/",
		healthPath: "/" + strings.Trim(cfg.HealthPath, "/") + "/",
		token:      cfg.Token,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Ping checks that the server answers its health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, c.healthPath, nil, nil)
}

// ListAgents returns every agent visible to the token.
func (c *Client) ListAgents(ctx context.Context) ([]Agent, error) {
	var out []Agent
	if err := c.do(ctx, http.MethodGet, c.agentsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAgent returns one agent.
func (c *Client) GetAgent(ctx context.Context, id string) (*Agent, error) {
	if id == "" {
		return nil, apperr.ErrNotFound
	}
	var out Agent
	if err := c.do(ctx, http.MethodGet, c.agentPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateAgent creates an agent from spec and returns the server's view of it.
func (c *Client) CreateAgent(ctx context.Context, spec AgentSpec) (*Agent, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	var out Agent
	if err := c.do(ctx, http.MethodPost, c.agentsPath, spec, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteAgent deletes an agent.
func (c *Client) DeleteAgent(ctx context.Context, id string) error {
	if id == "" {
		return apperr.ErrNotFound
	}
	return c.do(ctx, http.MethodDelete, c.agentPath(id), nil, nil)
}

func (c *Client) agentPath(id string) string {
	return c.agentsPath + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("letta: encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("letta: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("letta: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("letta: decode response: %w", err)
	}
	return nil
}
