package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// reconnectInterval paces the dead-connection retry loop.
const reconnectInterval = 60 * time.Second

// ErrCogneeUnavailable marks the remote graph service as down; callers fall
// through to the local graph.
var ErrCogneeUnavailable = errors.New("memory: remote graph service unavailable")

// CogneeClient talks to the optional remote graph service. The local stores
// stay authoritative; the remote holds a replica fed on every AddMessage.
type CogneeClient struct {
	baseURL  string
	apiKey   string
	email    string
	password string
	dataset  string
	client   *http.Client

	mu     sync.RWMutex
	token  string // bearer from login, may also arrive as a cookie
	alive  bool
	cookie string
}

// NewCogneeClient builds the client; Connect must run before use.
func NewCogneeClient(baseURL, apiKey, email, password, dataset string) *CogneeClient {
	if dataset == "" {
		dataset = "main"
	}
	return &CogneeClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		email:    email,
		password: password,
		dataset:  dataset,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Alive reports whether the last exchange succeeded.
func (c *CogneeClient) Alive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.alive
}

func (c *CogneeClient) markDead() {
	c.mu.Lock()
	c.alive = false
	c.mu.Unlock()
}

// Connect probes health and logs in when credentials are configured. When
// the service requires auth and none is available it stays unavailable.
func (c *CogneeClient) Connect(ctx context.Context) error {
	if err := c.health(ctx); err != nil {
		c.markDead()
		return err
	}
	if c.email != "" && c.password != "" {
		if err := c.login(ctx); err != nil {
			c.markDead()
			return err
		}
	}
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
	return nil
}

// ReconnectLoop retries Connect every 60 s while the connection is dead.
// Runs until the context is cancelled.
func (c *CogneeClient) ReconnectLoop(ctx context.Context) {
	ticker := time.NewTicker(reconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if c.Alive() {
				continue
			}
			if err := c.Connect(ctx); err != nil {
				slog.Debug("remote graph reconnect failed", "error", err)
			} else {
				slog.Info("remote graph service reconnected")
			}
		}
	}
}

func (c *CogneeClient) health(ctx context.Context) error {
	for _, path := range []string{"/health", "/api/v1/health"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()
		if resp.StatusCode < 300 {
			return nil
		}
	}
	return ErrCogneeUnavailable
}

// login is form-encoded; the bearer may come back in the body or as a
// cookie.
func (c *CogneeClient) login(ctx context.Context) error {
	form := url.Values{"username": {c.email}, "password": {c.password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("memory: cognee login: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("memory: cognee login status %d", resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&body)

	c.mu.Lock()
	c.token = body.AccessToken
	for _, ck := range resp.Cookies() {
		if ck.Name != "" {
			c.cookie = ck.Name + "=" + ck.Value
			break
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *CogneeClient) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}
	c.mu.RUnlock()

	resp, err := c.client.Do(req)
	if err != nil {
		c.markDead()
		return nil, fmt.Errorf("memory: cognee %s %s: %w", method, path, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		// Expired or revoked auth kills the connection; the reconnect loop
		// will re-login.
		resp.Body.Close()
		c.markDead()
		return nil, fmt.Errorf("memory: cognee %s: %w", path, ErrCogneeUnavailable)
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("memory: cognee %s status %d", path, resp.StatusCode)
	}
	return resp, nil
}

// AddText ingests one piece of content into the remote dataset.
func (c *CogneeClient) AddText(ctx context.Context, text string) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/add", map[string]any{
		"data":        []string{text},
		"datasetName": c.dataset,
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Cognify triggers the remote graph-building step over the dataset.
func (c *CogneeClient) Cognify(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/cognify", map[string]any{
		"datasets": []string{c.dataset},
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Search queries the remote graph. searchType GRAPH_COMPLETION answers in
// prose; the raw results concatenate to one string.
func (c *CogneeClient) Search(ctx context.Context, query, searchType string) (string, error) {
	if searchType == "" {
		searchType = "GRAPH_COMPLETION"
	}
	resp, err := c.do(ctx, http.MethodPost, "/api/v1/search", map[string]any{
		"query":      query,
		"searchType": searchType,
		"datasets":   []string{c.dataset},
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", fmt.Errorf("memory: cognee search decode: %w", err)
	}
	return flattenSearchResult(raw), nil
}

// Datasets lists the remote datasets; used by health reporting.
func (c *CogneeClient) Datasets(ctx context.Context) ([]string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/v1/datasets", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list []struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list))
	for _, d := range list {
		names = append(names, d.Name)
	}
	return names, nil
}

// flattenSearchResult copes with the service returning either a bare string,
// a list of strings, or a list of {text|search_result} objects.
func flattenSearchResult(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return ""
	}
	var parts []string
	for _, item := range list {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			parts = append(parts, str)
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err == nil {
			for _, key := range []string{"text", "search_result", "content"} {
				if v, ok := obj[key].(string); ok && v != "" {
					parts = append(parts, v)
					break
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}
