package channels

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hearthside/domo/internal/store/file"
)

func TestIssueGeneratesWellFormedCodes(t *testing.T) {
	p := NewPairing(file.NewPairingStore("", false))

	code, fresh := p.Issue("telegram", "100", "alice")
	if !fresh {
		t.Fatal("first code not fresh")
	}
	if len(code) != codeLength {
		t.Fatalf("code length = %d, want %d", len(code), codeLength)
	}
	for _, r := range code {
		if !strings.ContainsRune(codeAlphabet, r) {
			t.Fatalf("code %q contains %q outside the alphabet", code, r)
		}
	}
}

func TestIssueSuppressesDuplicatePerUser(t *testing.T) {
	p := NewPairing(file.NewPairingStore("", false))

	first, _ := p.Issue("telegram", "100", "alice")
	second, fresh := p.Issue("telegram", "100", "alice")
	if fresh {
		t.Fatal("repeat issue reported fresh")
	}
	if second != first {
		t.Fatalf("repeat issue changed the code: %q then %q", first, second)
	}
}

func TestIssueCapsOutstandingPerChannel(t *testing.T) {
	p := NewPairing(file.NewPairingStore("", false))

	for i := 0; i < maxOutstanding; i++ {
		if _, fresh := p.Issue("telegram", string(rune('a'+i)), ""); !fresh {
			t.Fatalf("issue %d refused under the cap", i)
		}
	}
	if code, fresh := p.Issue("telegram", "overflow", ""); fresh || code != "" {
		t.Fatalf("cap not enforced: code=%q fresh=%v", code, fresh)
	}

	// A different channel has its own budget.
	if _, fresh := p.Issue("discord", "overflow", ""); !fresh {
		t.Fatal("per-channel cap leaked across channels")
	}
}

func TestApprovePersistsAndConsumesCode(t *testing.T) {
	ps := file.NewPairingStore("", false)
	p := NewPairing(ps)
	ctx := context.Background()

	code, _ := p.Issue("telegram", "100", "alice")
	user, err := p.Approve(ctx, strings.ToLower(code))
	if err != nil {
		t.Fatal(err)
	}
	if user == nil || user.UserID != "100" || user.Channel != "telegram" {
		t.Fatalf("approve returned %+v", user)
	}

	paired, err := p.IsPaired(ctx, "telegram", "100")
	if err != nil || !paired {
		t.Fatalf("paired = %v err = %v", paired, err)
	}

	// Codes are single-use.
	if again, _ := p.Approve(ctx, code); again != nil {
		t.Fatalf("consumed code approved twice: %+v", again)
	}
}

func TestApproveUnknownCode(t *testing.T) {
	p := NewPairing(file.NewPairingStore("", false))
	user, err := p.Approve(context.Background(), "NOPE1234")
	if err != nil {
		t.Fatal(err)
	}
	if user != nil {
		t.Fatalf("unknown code approved: %+v", user)
	}
}

func TestCodesExpire(t *testing.T) {
	p := NewPairing(file.NewPairingStore("", false))
	base := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	now := base
	p.now = func() time.Time { return now }

	code, _ := p.Issue("telegram", "100", "alice")

	now = base.Add(codeTTL + time.Minute)
	if user, _ := p.Approve(context.Background(), code); user != nil {
		t.Fatalf("expired code approved: %+v", user)
	}

	// Expiry frees the sender for a fresh code.
	if _, fresh := p.Issue("telegram", "100", "alice"); !fresh {
		t.Fatal("sender still holds an expired code")
	}
}
