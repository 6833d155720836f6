package tools

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// duckduckgoProvider scrapes the HTML frontend, the keyless fallback when
// no Brave key is configured.
type duckduckgoProvider struct {
	client *http.Client
}

func newDuckDuckGoSearchProvider() *duckduckgoProvider {
	return &duckduckgoProvider{
		client: &http.Client{Timeout: searchTimeoutSeconds * time.Second},
	}
}

func (p *duckduckgoProvider) Name() string { return "duckduckgo" }

func (p *duckduckgoProvider) Search(ctx context.Context, params searchParams) ([]searchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://html.duckduckgo.com/html/?q="+url.QueryEscape(params.Query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webSearchUserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("duckduckgo: status %d", resp.StatusCode)
	}
	page, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("duckduckgo: read: %w", err)
	}
	return parseDDGPage(string(page), params.Count), nil
}

var (
	ddgResultRe  = regexp.MustCompile(`(?s)<a[^>]+class="[^"]*result__a[^"]*"[^>]+href="([^"]+)"[^>]*>(.*?)</a>`)
	ddgSnippetRe = regexp.MustCompile(`(?s)<a class="result__snippet[^"]*"[^>]*>(.*?)</a>`)
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
)

// parseDDGPage pairs result links with their snippets in document order.
func parseDDGPage(page string, limit int) []searchResult {
	links := ddgResultRe.FindAllStringSubmatch(page, limit)
	snippets := ddgSnippetRe.FindAllStringSubmatch(page, limit)

	out := make([]searchResult, 0, len(links))
	for i, m := range links {
		r := searchResult{
			Title: stripTags(m[2]),
			URL:   ddgTargetURL(m[1]),
		}
		if i < len(snippets) {
			r.Description = stripTags(snippets[i][1])
		}
		out = append(out, r)
	}
	return out
}

// ddgTargetURL unwraps the /l/?uddg= redirect DDG puts around result links.
func ddgTargetURL(href string) string {
	u, err := url.Parse(html.UnescapeString(href))
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func stripTags(s string) string {
	return strings.TrimSpace(html.UnescapeString(htmlTagRe.ReplaceAllString(s, "")))
}
