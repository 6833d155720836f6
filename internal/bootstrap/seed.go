// Package bootstrap seeds a fresh config directory with the documents the
// runtime expects: the constitution, a default soul, and an example skill.
// Existing files are never overwritten.
package bootstrap

import (
	"embed"
	"os"
	"path/filepath"
)

//go:embed templates/*.md
var templateFS embed.FS

// seedFiles maps embedded templates to their destination relative to the
// config directory.
var seedFiles = map[string]string{
	"VALUES.md":        "VALUES.md",
	"soul.md":          filepath.Join("souls", "assistant.md"),
	"skill-weather.md": filepath.Join("skills", "weather.md"),
}

// ReadTemplate returns one embedded template by name.
func ReadTemplate(name string) (string, error) {
	content, err := templateFS.ReadFile(filepath.Join("templates", name))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// Seed writes the starter documents into configDir, skipping anything that
// already exists. Returns the relative paths it created.
func Seed(configDir string) ([]string, error) {
	var created []string
	for src, rel := range seedFiles {
		dst := filepath.Join(configDir, rel)
		if err := os.MkdirAll(filepath.Dir(dst), 0700); err != nil {
			return created, err
		}
		ok, err := seedOne(src, dst)
		if err != nil {
			return created, err
		}
		if ok {
			created = append(created, rel)
		}
	}
	return created, nil
}

// seedOne writes one template if the destination does not exist. O_EXCL makes
// the existence check and the create atomic.
func seedOne(src, dst string) (bool, error) {
	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	content, err := templateFS.ReadFile(filepath.Join("templates", src))
	if err != nil {
		os.Remove(dst)
		return false, err
	}
	if _, err := f.Write(content); err != nil {
		os.Remove(dst)
		return false, err
	}
	return true, nil
}
