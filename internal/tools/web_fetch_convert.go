package tools

import (
	"encoding/json"
	"regexp"
	"strings"
)

// extractJSON pretty-prints JSON content.
func extractJSON(body []byte) (string, string) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err == nil {
		formatted, _ := json.MarshalIndent(data, "", "  ")
		return string(formatted), "json"
	}
	return string(body), "raw"
}

// --- HTML conversion fallback (used when readability finds no article) ---

var (
	reScript    = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	reStyle     = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	reComment   = regexp.MustCompile(`<!--[\s\S]*?-->`)
	reNav       = regexp.MustCompile(`(?is)<nav[\s\S]*?</nav>`)
	reFooter    = regexp.MustCompile(`(?is)<footer[\s\S]*?</footer>`)
	reHeader    = regexp.MustCompile(`(?is)<header[\s\S]*?</header>`)
	reTag       = regexp.MustCompile(`<[^>]+>`)
	reMultiNL   = regexp.MustCompile(`\n{3,}`)
	reMultiSP   = regexp.MustCompile(`[ \t]{2,}`)
	reH1        = regexp.MustCompile(`(?i)<h1[^>]*>([\s\S]*?)</h1>`)
	reH2        = regexp.MustCompile(`(?i)<h2[^>]*>([\s\S]*?)</h2>`)
	reH3        = regexp.MustCompile(`(?i)<h3[^>]*>([\s\S]*?)</h3>`)
	reH4        = regexp.MustCompile(`(?i)<h4[^>]*>([\s\S]*?)</h4>`)
	reParagraph = regexp.MustCompile(`(?i)<p[^>]*>([\s\S]*?)</p>`)
	reBreak     = regexp.MustCompile(`(?i)<br\s*/?>`)
	reListItem  = regexp.MustCompile(`(?i)<li[^>]*>([\s\S]*?)</li>`)
	reAnchor    = regexp.MustCompile(`(?i)<a[^>]*href="([^"]*)"[^>]*>([\s\S]*?)</a>`)
	rePre       = regexp.MustCompile(`(?is)<pre[^>]*>([\s\S]*?)</pre>`)
	reCode      = regexp.MustCompile(`(?i)<code[^>]*>([\s\S]*?)</code>`)
	reStrong    = regexp.MustCompile(`(?i)<(?:strong|b)[^>]*>([\s\S]*?)</(?:strong|b)>`)
	reEm        = regexp.MustCompile(`(?i)<(?:em|i)[^>]*>([\s\S]*?)</(?:em|i)>`)
	reBlockq    = regexp.MustCompile(`(?is)<blockquote[^>]*>([\s\S]*?)</blockquote>`)
	reImg       = regexp.MustCompile(`(?i)<img[^>]*alt="([^"]*)"[^>]*/?>`)
)

// htmlToMarkdown converts HTML to a markdown-like format. Covers common
// structural tags only.
func htmlToMarkdown(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reNav.ReplaceAllString(s, "")
	s = reFooter.ReplaceAllString(s, "")

	s = reH1.ReplaceAllString(s, "\n# $1\n")
	s = reH2.ReplaceAllString(s, "\n## $1\n")
	s = reH3.ReplaceAllString(s, "\n### $1\n")
	s = reH4.ReplaceAllString(s, "\n#### $1\n")

	// Pre/code blocks before stripping other tags.
	s = rePre.ReplaceAllString(s, "\n```\n$1\n```\n")
	s = reCode.ReplaceAllString(s, "`$1`")

	s = reBlockq.ReplaceAllStringFunc(s, func(match string) string {
		inner := reBlockq.FindStringSubmatch(match)
		if len(inner) < 2 {
			return match
		}
		lines := strings.Split(strings.TrimSpace(inner[1]), "\n")
		var quoted []string
		for _, l := range lines {
			quoted = append(quoted, "> "+strings.TrimSpace(l))
		}
		return "\n" + strings.Join(quoted, "\n") + "\n"
	})

	s = reAnchor.ReplaceAllString(s, "[$2]($1)")
	s = reImg.ReplaceAllString(s, "![$1]")
	s = reStrong.ReplaceAllString(s, "**$1**")
	s = reEm.ReplaceAllString(s, "*$1*")
	s = reParagraph.ReplaceAllString(s, "\n$1\n")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reListItem.ReplaceAllString(s, "\n- $1")
	s = reTag.ReplaceAllString(s, "")

	s = decodeHTMLEntities(s)
	s = reMultiNL.ReplaceAllString(s, "\n\n")
	s = reMultiSP.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// htmlToText extracts plain text from HTML content.
func htmlToText(html string) string {
	s := reScript.ReplaceAllString(html, "")
	s = reStyle.ReplaceAllString(s, "")
	s = reComment.ReplaceAllString(s, "")
	s = reNav.ReplaceAllString(s, "")
	s = reFooter.ReplaceAllString(s, "")
	s = reHeader.ReplaceAllString(s, "")

	s = reParagraph.ReplaceAllString(s, "\n$1\n")
	s = reBreak.ReplaceAllString(s, "\n")
	s = reListItem.ReplaceAllString(s, "\n- $1")
	s = reTag.ReplaceAllString(s, "")

	s = decodeHTMLEntities(s)
	s = reMultiSP.ReplaceAllString(s, " ")
	s = reMultiNL.ReplaceAllString(s, "\n\n")

	lines := strings.Split(s, "\n")
	var clean []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			clean = append(clean, line)
		}
	}
	return strings.Join(clean, "\n")
}

// decodeHTMLEntities handles common HTML entities.
func decodeHTMLEntities(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&apos;", "'",
		"&nbsp;", " ",
		"&mdash;", "—",
		"&ndash;", "–",
		"&bull;", "•",
		"&hellip;", "...",
		"&copy;", "(c)",
		"&reg;", "(R)",
	)
	return replacer.Replace(s)
}
