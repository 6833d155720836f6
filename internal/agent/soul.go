package agent

import (
	"log/slog"
	"os"
	"strings"
)

// defaultSoul keeps an agent functional when its soul document is missing.
// The bootstrap seeds a fuller one on first run.
const defaultSoul = `# Soul

You are a helpful personal assistant. Be concise, be honest, and say so when
you do not know something.`

// LoadSoul reads the agent's soul document. A missing or empty file falls
// back to the built-in default with a warning; a broken soul should degrade
// the personality, not the runtime.
func LoadSoul(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("soul document not loaded, using default", "path", path, "error", err)
		return defaultSoul
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		slog.Warn("soul document is empty, using default", "path", path)
		return defaultSoul
	}
	return content
}
