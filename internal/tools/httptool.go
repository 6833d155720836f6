package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/secrets"
)

const httpToolTimeout = 30 * time.Second

// HTTPTool is one declaratively configured endpoint. The registry performs
// the HTTP call itself; {{secrets.KEY}} tokens in the URL and headers are
// resolved from the secret store at call time, so secret values never sit
// in the config file.
type HTTPTool struct {
	serverName string
	baseURL    string
	headers    map[string]string
	spec       config.HTTPToolConfig
	secrets    *secrets.Store
	client     *http.Client
}

// NewHTTPTools expands one server declaration into its tools.
func NewHTTPTools(server config.HTTPToolServerConfig, sec *secrets.Store) []*HTTPTool {
	client := &http.Client{Timeout: httpToolTimeout}
	out := make([]*HTTPTool, 0, len(server.Tools))
	for _, spec := range server.Tools {
		if spec.Name == "" {
			continue
		}
		out = append(out, &HTTPTool{
			serverName: server.Name,
			baseURL:    strings.TrimRight(server.BaseURL, "/"),
			headers:    server.Headers,
			spec:       spec,
			secrets:    sec,
			client:     client,
		})
	}
	return out
}

func (t *HTTPTool) Name() string {
	if t.serverName != "" {
		return t.serverName + "__" + t.spec.Name
	}
	return t.spec.Name
}

func (t *HTTPTool) Description() string { return t.spec.Description }

func (t *HTTPTool) Parameters() map[string]interface{} {
	if t.spec.InputSchema != nil {
		return t.spec.InputSchema
	}
	return map[string]interface{}{"type": "object"}
}

func (t *HTTPTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	method := strings.ToUpper(t.spec.Method)
	if method == "" {
		method = http.MethodPost
	}

	rawURL, err := t.resolve(t.baseURL + "/" + strings.TrimLeft(t.spec.Path, "/"))
	if err != nil {
		return ErrorResult(fmt.Sprintf("url: %v", err))
	}

	var body io.Reader
	if method != http.MethodGet && len(args) > 0 {
		payload, err := json.Marshal(args)
		if err != nil {
			return ErrorResult(fmt.Sprintf("encode arguments: %v", err))
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return ErrorResult(fmt.Sprintf("build request: %v", err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if method == http.MethodGet && len(args) > 0 {
		q := req.URL.Query()
		for k, v := range args {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		req.URL.RawQuery = q.Encode()
	}
	for k, v := range t.headers {
		resolved, err := t.resolve(v)
		if err != nil {
			return ErrorResult(fmt.Sprintf("header %s: %v", k, err))
		}
		req.Header.Set(k, resolved)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return ErrorResult(fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ErrorResult(fmt.Sprintf("read response: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return ErrorResult(fmt.Sprintf("%s returned %d: %s", t.Name(), resp.StatusCode, truncateStr(string(respBody), 500)))
	}
	return SilentResult(string(respBody))
}

func (t *HTTPTool) resolve(template string) (string, error) {
	if t.secrets == nil {
		return template, nil
	}
	return t.secrets.Resolve(template)
}
