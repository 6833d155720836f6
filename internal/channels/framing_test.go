package channels

import (
	"strings"
	"testing"
)

func TestSplitMessageShortContentUntouched(t *testing.T) {
	chunks := SplitMessage("hello", 4096)
	if len(chunks) != 1 || chunks[0] != "hello" {
		t.Fatalf("chunks = %v", chunks)
	}
}

func TestSplitMessagePrefersParagraphBreaks(t *testing.T) {
	first := strings.Repeat("a", 60)
	second := strings.Repeat("b", 60)
	chunks := SplitMessage(first+"\n\n"+second, 100)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d", len(chunks))
	}
	if chunks[0] != first || chunks[1] != second {
		t.Fatalf("paragraph boundary not used: %q / %q", chunks[0], chunks[1])
	}
}

func TestSplitMessageFallsBackToSpaces(t *testing.T) {
	words := strings.Repeat("word ", 50) // 250 chars, no newlines
	chunks := SplitMessage(strings.TrimSpace(words), 100)
	for i, c := range chunks {
		if len(c) > 100 {
			t.Fatalf("chunk %d over limit: %d", i, len(c))
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Fatalf("chunk %d has ragged spaces: %q", i, c)
		}
	}
	if got := strings.Join(chunks, " "); got != strings.TrimSpace(words) {
		t.Fatalf("content lost in split")
	}
}

func TestSplitMessageIgnoresEarlyBoundaries(t *testing.T) {
	// One newline at 10% of the limit, then an unbroken run: the early
	// boundary is below the minimum chunk size, so a hard break wins.
	content := strings.Repeat("a", 10) + "\n" + strings.Repeat("b", 300)
	chunks := SplitMessage(content, 100)
	if len(chunks[0]) < 30 {
		t.Fatalf("first chunk too small: %d", len(chunks[0]))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Fatalf("chunk %d over limit: %d", i, len(c))
		}
	}
}

func TestSplitMessageNeverBreaksUTF8(t *testing.T) {
	content := strings.Repeat("é", 300) // 2 bytes each
	for _, c := range SplitMessage(content, 101) {
		if !strings.HasPrefix(c, "é") {
			t.Fatalf("chunk starts mid-rune: %q", c[:4])
		}
	}
}

func TestPlainTextStripsFormatting(t *testing.T) {
	md := "# Title\n\nSome **bold** and *italic* text with `code`.\n\n- one\n- two\n\n[docs](https://example.com)"
	got := PlainText(md)

	for _, banned := range []string{"#", "**", "`", "]("} {
		if strings.Contains(got, banned) {
			t.Errorf("marker %q survived: %q", banned, got)
		}
	}
	for _, want := range []string{"Title", "bold", "italic", "code", "- one", "- two", "docs (https://example.com)"} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in %q", want, got)
		}
	}
}

func TestPlainTextKeepsCodeBlockContent(t *testing.T) {
	got := PlainText("```go\nfmt.Println(\"hi\")\n```")
	if !strings.Contains(got, `fmt.Println("hi")`) {
		t.Fatalf("code lost: %q", got)
	}
	if strings.Contains(got, "```") {
		t.Fatalf("fence survived: %q", got)
	}
}
