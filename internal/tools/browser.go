package tools

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

const browserNavTimeout = 45 * time.Second

// BrowserTool fetches a URL through a real rendering engine for pages that
// need JavaScript. The browser launches lazily on first use and is shared
// across calls.
type BrowserTool struct {
	headless bool

	mu      sync.Mutex
	browser *rod.Browser
}

func NewBrowserTool(headless bool) *BrowserTool {
	return &BrowserTool{headless: headless}
}

func (t *BrowserTool) Name() string { return "browser" }

func (t *BrowserTool) Description() string {
	return "Fetch a URL with a rendering browser (for JavaScript-heavy pages) and extract its text content"
}

func (t *BrowserTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "HTTP or HTTPS URL to render.",
			},
			"wait_seconds": map[string]interface{}{
				"type":        "number",
				"description": "Extra seconds to wait after load for dynamic content (0-10).",
			},
		},
		"required": []string{"url"},
	}
}

func (t *BrowserTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	rawURL, _ := args["url"].(string)
	if rawURL == "" {
		return ErrorResult("url is required")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return ErrorResult("only http and https URLs are supported")
	}
	if err := checkSSRF(rawURL); err != nil {
		return ErrorResult(fmt.Sprintf("SSRF protection: %v", err))
	}

	browser, err := t.ensureBrowser()
	if err != nil {
		return ErrorResult(fmt.Sprintf("browser unavailable: %v", err))
	}

	navCtx, cancel := context.WithTimeout(ctx, browserNavTimeout)
	defer cancel()

	page, err := browser.Context(navCtx).Page(proto.TargetCreateTarget{URL: rawURL})
	if err != nil {
		return ErrorResult(fmt.Sprintf("open page: %v", err))
	}
	defer page.Close()

	if err := page.WaitLoad(); err != nil {
		return ErrorResult(fmt.Sprintf("page load: %v", err))
	}
	if wait, ok := args["wait_seconds"].(float64); ok && wait > 0 {
		if wait > 10 {
			wait = 10
		}
		time.Sleep(time.Duration(wait * float64(time.Second)))
	}

	html, err := page.HTML()
	if err != nil {
		return ErrorResult(fmt.Sprintf("read page: %v", err))
	}

	text := htmlToText(html)
	if len(text) > defaultFetchMaxKB*1024 {
		text = text[:defaultFetchMaxKB*1024]
	}
	return NewResult(wrapExternalContent(fmt.Sprintf("URL: %s\n\n%s", rawURL, text), "Browser", true))
}

func (t *BrowserTool) ensureBrowser() (*rod.Browser, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		return t.browser, nil
	}

	controlURL, err := launcher.New().Headless(t.headless).Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	t.browser = browser
	return browser, nil
}

// Close shuts the shared browser down. Safe to call when never launched.
func (t *BrowserTool) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.browser != nil {
		_ = t.browser.Close()
		t.browser = nil
	}
}
