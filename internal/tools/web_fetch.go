package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
	"github.com/ledongthuc/pdf"
)

const (
	defaultFetchMaxKB       = 256
	defaultFetchMaxRedirect = 3
	defaultErrorMaxChars    = 4000
	fetchTimeoutSeconds     = 30
	fetchUserAgent          = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// WebFetchTool fetches a URL and extracts readable content. HTML goes
// through readability extraction, PDFs through plain-text extraction, JSON
// is pretty-printed. Responses are size-capped and cached.
type WebFetchTool struct {
	maxBytes int
	cache    *webCache
}

// WebFetchConfig holds configuration for the web fetch tool.
type WebFetchConfig struct {
	MaxKB    int
	CacheTTL time.Duration
}

func NewWebFetchTool(cfg WebFetchConfig) *WebFetchTool {
	maxKB := cfg.MaxKB
	if maxKB <= 0 {
		maxKB = defaultFetchMaxKB
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &WebFetchTool{
		maxBytes: maxKB * 1024,
		cache:    newWebCache(defaultCacheMaxEntries, ttl),
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL and extract its content. Supports HTML (readability extraction), PDF, JSON, and plain text."
}

func (t *WebFetchTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to fetch.",
			},
			"extractMode": map[string]interface{}{
				"type":        "string",
				"description": `Extraction mode ("markdown" or "text"). Default: "markdown".`,
				"enum":        []string{"markdown", "text"},
			},
		},
		"required": []string{"url"},
	}
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ErrorResult(fmt.Sprintf("invalid URL: %v", err))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return ErrorResult("only http and https URLs are supported")
	}
	if parsed.Host == "" {
		return ErrorResult("missing hostname in URL")
	}
	if err := checkSSRF(rawURL); err != nil {
		return ErrorResult(fmt.Sprintf("SSRF protection: %v", err))
	}

	extractMode := "markdown"
	if em, ok := args["extractMode"].(string); ok && (em == "markdown" || em == "text") {
		extractMode = em
	}

	cacheKey := fmt.Sprintf("fetch:%s:%s", rawURL, extractMode)
	if cached, ok := t.cache.get(cacheKey); ok {
		slog.Debug("web_fetch cache hit", "url", rawURL)
		return NewResult(cached)
	}

	result, err := t.doFetch(ctx, rawURL, extractMode)
	if err != nil {
		return ErrorResult(fmt.Sprintf("fetch failed: %s", truncateStr(err.Error(), defaultErrorMaxChars)))
	}

	wrapped := wrapExternalContent(result, "Web Fetch", true)
	t.cache.set(cacheKey, wrapped)
	return NewResult(wrapped)
}

func (t *WebFetchTool) doFetch(ctx context.Context, rawURL, extractMode string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.9,*/*;q=0.8")

	redirectCount := 0
	client := &http.Client{
		Timeout: fetchTimeoutSeconds * time.Second,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			redirectCount++
			if redirectCount > defaultFetchMaxRedirect {
				return fmt.Errorf("stopped after %d redirects", defaultFetchMaxRedirect)
			}
			if err := checkSSRF(req.URL.String()); err != nil {
				return fmt.Errorf("redirect SSRF protection: %w", err)
			}
			return nil
		},
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(t.maxBytes)))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	finalURL := resp.Request.URL.String()

	var text, extractor string
	switch {
	case strings.Contains(contentType, "application/pdf"):
		text, err = extractPDF(body)
		if err != nil {
			return "", fmt.Errorf("pdf extraction: %w", err)
		}
		extractor = "pdf"

	case strings.Contains(contentType, "application/json"):
		text, extractor = extractJSON(body)

	case strings.Contains(contentType, "text/html"),
		strings.Contains(contentType, "application/xhtml"):
		text, extractor = extractHTML(body, resp.Request.URL, extractMode)

	default:
		text = string(body)
		extractor = "raw"
	}

	truncated := false
	if len(text) > t.maxBytes {
		text = text[:t.maxBytes]
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("URL: %s\n", finalURL))
	sb.WriteString(fmt.Sprintf("Status: %d\n", resp.StatusCode))
	sb.WriteString(fmt.Sprintf("Extractor: %s\n", extractor))
	if truncated {
		sb.WriteString(fmt.Sprintf("Truncated: true (limit: %d bytes)\n", t.maxBytes))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("<web_content source=\"external\" url=%q>\n", finalURL))
	sb.WriteString(text)
	sb.WriteString("\n</web_content>")
	return sb.String(), nil
}

// extractHTML runs readability extraction first and falls back to the
// regex-based converter when the page has no identifiable article.
func extractHTML(body []byte, pageURL *url.URL, extractMode string) (string, string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		if extractMode == "text" {
			return strings.TrimSpace(article.TextContent), "readability-text"
		}
		text := htmlToMarkdown(article.Content)
		if article.Title != "" {
			text = "# " + article.Title + "\n\n" + text
		}
		return text, "readability"
	}
	if extractMode == "text" {
		return htmlToText(string(body)), "html-to-text"
	}
	return htmlToMarkdown(string(body)), "html-to-markdown"
}

// extractPDF pulls the plain text out of a PDF document.
func extractPDF(body []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return "", err
	}
	content, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(content); err != nil {
		return "", err
	}
	return buf.String(), nil
}
