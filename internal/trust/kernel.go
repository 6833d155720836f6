// Package trust gates actions against a markdown constitution. The document
// carries three sections (Hard Rules, Soft Rules, Forbidden); hard and
// forbidden rules block matching actions, soft rules are advisory prompt
// material. The kernel never edits the document; an out-of-process editor
// owns it and the kernel reloads on change.
package trust

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// sensitiveKeywords trip a rule only when present in BOTH the action text and
// the rule text.
var sensitiveKeywords = []string{
	"delete", "send money", "share", "impersonate", "secret", "password", "api key",
}

// Decision is the outcome of a Check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Kernel holds the parsed constitution. Safe for concurrent use.
type Kernel struct {
	mu        sync.RWMutex
	path      string
	raw       string
	hardRules []string
	softRules []string
	forbidden []string
}

// Load parses the constitution at path. A missing file yields a permissive
// kernel and a logged warning; every action is then allowed.
func Load(path string) *Kernel {
	k := &Kernel{path: path}
	if err := k.reload(); err != nil {
		slog.Warn("constitution not loaded, trust kernel is permissive", "path", path, "error", err)
	}
	return k
}

// reload re-reads and re-parses the document.
func (k *Kernel) reload() error {
	data, err := os.ReadFile(k.path)
	if err != nil {
		return err
	}
	hard, soft, forbidden := parse(string(data))

	k.mu.Lock()
	defer k.mu.Unlock()
	k.raw = string(data)
	k.hardRules = hard
	k.softRules = soft
	k.forbidden = forbidden
	return nil
}

// parse splits the document into its three rule sections. Rules are
// non-empty lines under each heading, with any list markers stripped.
func parse(doc string) (hard, soft, forbidden []string) {
	var section string
	sc := bufio.NewScanner(strings.NewReader(doc))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "## ") {
			heading := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(line, "## ")))
			switch {
			case strings.HasPrefix(heading, "hard"):
				section = "hard"
			case strings.HasPrefix(heading, "soft"):
				section = "soft"
			case strings.HasPrefix(heading, "forbidden"):
				section = "forbidden"
			default:
				section = ""
			}
			continue
		}
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rule := strings.TrimSpace(strings.TrimLeft(line, "-*0123456789. "))
		if rule == "" {
			continue
		}
		switch section {
		case "hard":
			hard = append(hard, rule)
		case "soft":
			soft = append(soft, rule)
		case "forbidden":
			forbidden = append(forbidden, rule)
		}
	}
	return hard, soft, forbidden
}

// Check rejects the action when its description and a hard or forbidden rule
// share a sensitive keyword. Soft rules never block.
func (k *Kernel) Check(action string) Decision {
	k.mu.RLock()
	defer k.mu.RUnlock()

	lowered := strings.ToLower(action)
	for _, rules := range [][]string{k.forbidden, k.hardRules} {
		for _, rule := range rules {
			ruleLower := strings.ToLower(rule)
			for _, kw := range sensitiveKeywords {
				if strings.Contains(lowered, kw) && strings.Contains(ruleLower, kw) {
					return Decision{Allowed: false, Reason: "blocked by constitution: " + rule}
				}
			}
		}
	}
	return Decision{Allowed: true}
}

// SoftRules returns the advisory rules for prompt inclusion.
func (k *Kernel) SoftRules() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(k.softRules))
	copy(out, k.softRules)
	return out
}

// HardRules returns the blocking rules.
func (k *Kernel) HardRules() []string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]string, len(k.hardRules))
	copy(out, k.hardRules)
	return out
}

// Context returns the raw document for prompt injection. Empty when the
// document is missing.
func (k *Kernel) Context() string {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.raw
}

// Watch reloads the constitution when the out-of-process editor rewrites it.
// Blocks until ctx is cancelled.
func (k *Kernel) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(k.path)); err != nil {
		return err
	}

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(k.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(250*time.Millisecond, func() {
				if err := k.reload(); err != nil {
					slog.Warn("constitution reload failed", "error", err)
					return
				}
				slog.Info("constitution reloaded", "path", k.path)
			})
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("constitution watcher error", "error", err)
		}
	}
}

// Seed writes a starter constitution when none exists.
func Seed(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	doc := `# Constitution

## Hard Rules
- Never delete user data without an explicit, recent instruction.
- Never send money or commit to payments on the user's behalf.
- Never share personal information with third parties.

## Soft Rules
- Prefer concise answers over exhaustive ones.
- Ask before taking actions with effects outside this machine.

## Forbidden
- Never impersonate the user to other people.
- Never reveal a secret, password, or api key in a reply.
`
	return os.WriteFile(path, []byte(doc), 0644)
}
