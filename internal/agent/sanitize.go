package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

// SanitizeAssistantContent cleans model output before it is stored or sent:
// leaked reasoning tags, tool-call markup emitted as text, and repeated
// paragraphs all get stripped. Smaller models degrade in exactly these ways
// under tool pressure, so the pipeline runs on every reply.
func SanitizeAssistantContent(content string) string {
	if content == "" {
		return content
	}
	original := content

	content = stripToolMarkup(content)
	content = stripThinkingTags(content)
	content = stripFinalTags(content)
	content = collapseDuplicateBlocks(content)
	content = strings.TrimSpace(content)

	if content != original {
		slog.Debug("sanitized assistant content", "original_len", len(original), "cleaned_len", len(content))
	}
	return content
}

// toolMarkupPattern matches XML-shaped tool call fragments some models emit
// as plain text instead of structured calls.
var toolMarkupPattern = regexp.MustCompile(`(?s)</?(?:function_calls?|invoke|tool_call|tool_use|parameter)[^>]*>`)

func stripToolMarkup(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<tool_") && !strings.Contains(lower, "<function_call") &&
		!strings.Contains(lower, "<invoke") && !strings.Contains(lower, "<parameter") {
		return content
	}
	cleaned := strings.TrimSpace(toolMarkupPattern.ReplaceAllString(content, ""))
	if cleaned != content {
		slog.Warn("stripped tool markup from assistant text", "original_len", len(content))
	}
	return cleaned
}

var thinkingTagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?is)<think>.*?</think>`),
	regexp.MustCompile(`(?is)<thinking>.*?</thinking>`),
	regexp.MustCompile(`(?is)<thought>.*?</thought>`),
}

func stripThinkingTags(content string) string {
	lower := strings.ToLower(content)
	if !strings.Contains(lower, "<think") && !strings.Contains(lower, "<thought") {
		return content
	}
	for _, pat := range thinkingTagPatterns {
		content = pat.ReplaceAllString(content, "")
	}
	return strings.TrimSpace(content)
}

// finalTagPattern removes <final> wrappers but keeps the text inside.
var finalTagPattern = regexp.MustCompile(`(?i)<\s*/?\s*final\s*>`)

func stripFinalTags(content string) string {
	if !strings.Contains(strings.ToLower(content), "final") {
		return content
	}
	return finalTagPattern.ReplaceAllString(content, "")
}

// collapseDuplicateBlocks drops consecutive identical paragraphs.
func collapseDuplicateBlocks(content string) string {
	blocks := strings.Split(content, "\n\n")
	if len(blocks) <= 1 {
		return content
	}
	var result []string
	for _, block := range blocks {
		trimmed := strings.TrimSpace(block)
		if trimmed == "" {
			continue
		}
		if len(result) > 0 && trimmed == strings.TrimSpace(result[len(result)-1]) {
			continue
		}
		result = append(result, block)
	}
	return strings.Join(result, "\n\n")
}

// IsSilentReply reports whether the text is a NO_REPLY token, the model's
// way of declining to answer (heartbeat prompts that need no user-visible
// output use it).
func IsSilentReply(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return false
	}
	const token = "NO_REPLY"
	if trimmed == token {
		return true
	}
	if strings.HasPrefix(trimmed, token) {
		rest := trimmed[len(token):]
		if rest == "" || !isWordChar(rune(rest[0])) {
			return true
		}
	}
	if strings.HasSuffix(trimmed, token) {
		before := trimmed[:len(trimmed)-len(token)]
		if before == "" || !isWordChar(rune(before[len(before)-1])) {
			return true
		}
	}
	return false
}

func isWordChar(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_'
}
