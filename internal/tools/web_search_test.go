package tools

import "testing"

const ddgPage = `
<div class="result">
<a rel="nofollow" class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fdoc%2F&amp;rut=abc">Go <b>Documentation</b></a>
<a class="result__snippet" href="//duckduckgo.com/l/?uddg=x">Learn how to <b>use</b> Go.</a>
</div>
<div class="result">
<a rel="nofollow" class="result__a" href="https://example.com/direct">Example &amp; Co</a>
</div>`

func TestParseDDGPage(t *testing.T) {
	results := parseDDGPage(ddgPage, 5)
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}

	t.Run("redirect unwrapped", func(t *testing.T) {
		if results[0].URL != "https://go.dev/doc/" {
			t.Errorf("url = %q", results[0].URL)
		}
	})
	t.Run("markup stripped", func(t *testing.T) {
		if results[0].Title != "Go Documentation" {
			t.Errorf("title = %q", results[0].Title)
		}
		if results[0].Description != "Learn how to use Go." {
			t.Errorf("description = %q", results[0].Description)
		}
	})
	t.Run("direct link and entities", func(t *testing.T) {
		if results[1].URL != "https://example.com/direct" {
			t.Errorf("url = %q", results[1].URL)
		}
		if results[1].Title != "Example & Co" {
			t.Errorf("title = %q", results[1].Title)
		}
		if results[1].Description != "" {
			t.Errorf("description = %q, want empty", results[1].Description)
		}
	})
	t.Run("limit", func(t *testing.T) {
		if got := parseDDGPage(ddgPage, 1); len(got) != 1 {
			t.Errorf("limited results = %d, want 1", len(got))
		}
	})
}

func TestNormalizeFreshness(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"pd", "pd"},
		{" PW ", "pw"},
		{"2024-01-01to2024-06-30", "2024-01-01to2024-06-30"},
		{"2024-06-30to2024-01-01", ""},
		{"yesterday", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeFreshness(tt.in); got != tt.want {
			t.Errorf("normalizeFreshness(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
