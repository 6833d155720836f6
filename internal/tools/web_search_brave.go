package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// braveProvider calls the Brave web search API. Only the fields the result
// formatter consumes get decoded.
type braveProvider struct {
	apiKey string
	client *http.Client
}

func newBraveSearchProvider(apiKey string) *braveProvider {
	return &braveProvider{
		apiKey: apiKey,
		client: &http.Client{Timeout: searchTimeoutSeconds * time.Second},
	}
}

func (p *braveProvider) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (p *braveProvider) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	q := url.Values{"q": {params.Query}, "count": {strconv.Itoa(params.Count)}}
	if f := normalizeFreshness(params.Freshness); f != "" {
		q.Set("freshness", f)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, braveSearchEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("brave: status %d: %s", resp.StatusCode, snippet)
	}

	var decoded braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("brave: decode: %w", err)
	}
	out := make([]searchResult, 0, len(decoded.Web.Results))
	for _, r := range decoded.Web.Results {
		out = append(out, searchResult{Title: r.Title, URL: r.URL, Description: r.Description})
	}
	return out, nil
}
