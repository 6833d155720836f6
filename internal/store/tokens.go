package store

import "strings"

// QueryTokens lowercases a query and splits it into alphanumeric tokens of
// length > 2. This is the match unit for knowledge and entity search.
func QueryTokens(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9' || r > 127)
	})
	var out []string
	for _, f := range fields {
		if len([]rune(f)) > 2 {
			out = append(out, f)
		}
	}
	return out
}

// TruncateRunes caps s at n characters.
func TruncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// PrefixRunes returns the first n characters of s.
func PrefixRunes(s string, n int) string {
	r := []rune(s)
	if len(r) < n {
		return s
	}
	return string(r[:n])
}
