package secrets

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestRoundTrip verifies writing then reading a secret returns the original
// string, including across a reopen of the same directory.
func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("API_KEY", "sk-abc-123"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	v, ok := s.Get("API_KEY")
	if !ok || v != "sk-abc-123" {
		t.Fatalf("Get = %q, %v", v, ok)
	}

	// Simulated restart: fresh store over the same directory.
	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok = s2.Get("API_KEY")
	if !ok || v != "sk-abc-123" {
		t.Fatalf("after reopen Get = %q, %v", v, ok)
	}
}

// TestCorruptBlobWipes verifies a blob that fails decryption wipes the store
// and continues empty instead of failing Open.
func TestCorruptBlobWipes(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("K", "v"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	path := filepath.Join(dir, "secrets.enc")
	if err := os.WriteFile(path, []byte("not a real blob but long enough to pass the length check"), 0600); err != nil {
		t.Fatal(err)
	}

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("Open after corruption: %v", err)
	}
	if s2.Has("K") {
		t.Error("store should be empty after wipe")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Error("corrupt blob should be removed")
	}
}

// TestResolve exercises template substitution and the missing-key contract:
// the token stays in place and the error wraps ErrMissingKey.
func TestResolve(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Set("TOKEN", "t0p"); err != nil {
		t.Fatal(err)
	}

	t.Run("substitutes present keys", func(t *testing.T) {
		out, err := s.Resolve("Bearer {{secrets.TOKEN}}")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if out != "Bearer t0p" {
			t.Errorf("out = %q", out)
		}
	})

	t.Run("missing key leaves token and errors", func(t *testing.T) {
		out, err := s.Resolve("x {{secrets.NOPE}} y")
		if !errors.Is(err, ErrMissingKey) {
			t.Fatalf("err = %v, want ErrMissingKey", err)
		}
		if !strings.Contains(out, "{{secrets.NOPE}}") {
			t.Errorf("token should remain untouched, got %q", out)
		}
	})

	t.Run("whitespace tolerated", func(t *testing.T) {
		out, err := s.Resolve("{{ secrets.TOKEN }}")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if out != "t0p" {
			t.Errorf("out = %q", out)
		}
	})
}

// TestDeleteAndList covers removal and sorted listing.
func TestDeleteAndList(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"b", "a", "c"} {
		if err := s.Set(k, k); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete absent key should be a no-op: %v", err)
	}

	got := s.List()
	want := []string{"a", "c"}
	if len(got) != len(want) {
		t.Fatalf("List = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// TestEncryptDecrypt covers the sealed-blob format directly.
func TestEncryptDecrypt(t *testing.T) {
	key, err := deriveKey("/some/dir")
	if err != nil {
		t.Fatal(err)
	}

	blob, err := encrypt([]byte(`{"k":"v"}`), key)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	plain, err := decrypt(blob, key)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(plain) != `{"k":"v"}` {
		t.Errorf("plain = %s", plain)
	}

	if _, err := decrypt([]byte("short"), key); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("short blob err = %v", err)
	}

	otherKey, _ := deriveKey("/other/dir")
	if _, err := decrypt(blob, otherKey); err == nil {
		t.Error("decrypt with wrong key should fail")
	}
}
