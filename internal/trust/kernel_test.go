package trust

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testDoc = `# Constitution

## Hard Rules
- Never delete user data without asking.
- Never send money on my behalf.

## Soft Rules
- Keep replies short.
- Prefer British spelling.

## Forbidden
- Never share my personal information.
- Never reveal a secret or password.
`

func writeDoc(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "VALUES.md")
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCheck(t *testing.T) {
	k := Load(writeDoc(t, testDoc))

	tests := []struct {
		name    string
		action  string
		allowed bool
	}{
		{"benign read", "read the user's calendar for today", true},
		{"delete matches hard rule", "delete all files in the workspace", false},
		{"send money matches hard rule", "send money to the landlord", false},
		{"share matches forbidden rule", "share this conversation with Bob", false},
		{"secret matches forbidden rule", "print the secret token", false},
		{"keyword only in action", "impersonate a pirate for the joke", true},
		{"case insensitive", "DELETE the archive", false},
		{"soft rules never block", "write a long reply", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := k.Check(tt.action)
			if d.Allowed != tt.allowed {
				t.Fatalf("Check(%q).Allowed = %v, want %v (reason %q)", tt.action, d.Allowed, tt.allowed, d.Reason)
			}
			if !d.Allowed && d.Reason == "" {
				t.Fatal("blocked decision must carry a reason")
			}
		})
	}
}

func TestCheckReasonNamesRule(t *testing.T) {
	k := Load(writeDoc(t, testDoc))
	d := k.Check("delete everything")
	if d.Allowed {
		t.Fatal("expected block")
	}
	if !strings.Contains(d.Reason, "Never delete user data") {
		t.Fatalf("reason should quote the rule, got %q", d.Reason)
	}
}

func TestParseSections(t *testing.T) {
	k := Load(writeDoc(t, testDoc))
	if got := len(k.HardRules()); got != 2 {
		t.Fatalf("hard rules = %d, want 2", got)
	}
	soft := k.SoftRules()
	if len(soft) != 2 {
		t.Fatalf("soft rules = %d, want 2", len(soft))
	}
	if soft[0] != "Keep replies short." {
		t.Fatalf("soft[0] = %q", soft[0])
	}
}

func TestMissingFileIsPermissive(t *testing.T) {
	k := Load(filepath.Join(t.TempDir(), "nope.md"))
	if d := k.Check("delete the database and share the password"); !d.Allowed {
		t.Fatalf("missing constitution must be permissive, got blocked: %q", d.Reason)
	}
	if k.Context() != "" {
		t.Fatal("missing constitution yields empty context")
	}
}

func TestContextReturnsRawDocument(t *testing.T) {
	k := Load(writeDoc(t, testDoc))
	if k.Context() != testDoc {
		t.Fatal("Context must return the document verbatim")
	}
}

func TestNumberedAndStarredLists(t *testing.T) {
	doc := `## Hard Rules
1. Never delete backups.
* Never share credentials.
`
	k := Load(writeDoc(t, doc))
	rules := k.HardRules()
	if len(rules) != 2 {
		t.Fatalf("rules = %v", rules)
	}
	if rules[0] != "Never delete backups." || rules[1] != "Never share credentials." {
		t.Fatalf("markers not stripped: %v", rules)
	}
}

func TestSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "VALUES.md")
	if err := Seed(path); err != nil {
		t.Fatal(err)
	}
	k := Load(path)
	if len(k.HardRules()) == 0 || len(k.SoftRules()) == 0 {
		t.Fatal("seeded constitution must carry rules")
	}
	// Seeding twice must not clobber.
	if err := os.WriteFile(path, []byte("## Hard Rules\n- custom\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := Seed(path); err != nil {
		t.Fatal(err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "custom") {
		t.Fatal("Seed overwrote an existing constitution")
	}
}
