package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSeedCreatesStarterFiles(t *testing.T) {
	dir := t.TempDir()
	created, err := Seed(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(created) != len(seedFiles) {
		t.Fatalf("created %d files, want %d: %v", len(created), len(seedFiles), created)
	}
	for _, rel := range []string{"VALUES.md", "souls/assistant.md", "skills/weather.md"} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("%s missing: %v", rel, err)
		}
	}
}

func TestSeedNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	own := []byte("# my own rules\n")
	if err := os.WriteFile(filepath.Join(dir, "VALUES.md"), own, 0600); err != nil {
		t.Fatal(err)
	}

	created, err := Seed(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, rel := range created {
		if rel == "VALUES.md" {
			t.Fatal("existing VALUES.md reported as created")
		}
	}
	got, err := os.ReadFile(filepath.Join(dir, "VALUES.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(own) {
		t.Fatal("existing VALUES.md was overwritten")
	}
}
