package channels

import "strings"

// minSplitFraction keeps chunk boundaries from degenerating: a natural break
// is only taken when the resulting chunk is at least this share of the
// platform maximum, otherwise we hard-break at the limit.
const minSplitFraction = 0.3

// SplitMessage breaks long content into chunks no larger than maxLen,
// preferring paragraph boundaries, then line breaks, then spaces, and only
// hard-breaking mid-word as a last resort.
func SplitMessage(content string, maxLen int) []string {
	if maxLen <= 0 || len(content) <= maxLen {
		return []string{content}
	}
	minLen := int(float64(maxLen) * minSplitFraction)

	var chunks []string
	rest := content
	for len(rest) > maxLen {
		cut := splitPoint(rest, maxLen, minLen)
		chunks = append(chunks, strings.TrimRight(rest[:cut], " \n"))
		rest = strings.TrimLeft(rest[cut:], " \n")
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// splitPoint finds the best break position within s[:maxLen], never earlier
// than minLen.
func splitPoint(s string, maxLen, minLen int) int {
	window := s[:maxLen]

	if idx := strings.LastIndex(window, "\n\n"); idx >= minLen {
		return idx + 2
	}
	if idx := strings.LastIndex(window, "\n"); idx >= minLen {
		return idx + 1
	}
	if idx := strings.LastIndex(window, " "); idx >= minLen {
		return idx + 1
	}
	// No acceptable boundary: hard break, but never inside a UTF-8 sequence.
	cut := maxLen
	for cut > minLen && !utf8Start(s[cut]) {
		cut--
	}
	return cut
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}
