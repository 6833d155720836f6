package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	skillCallTimeout  = 30 * time.Second
	skillResponseMax  = 256 * 1024
	frontMatterMarker = "---"
)

// Skill is one declarative HTTP capability loaded from a markdown file.
// The front matter pins where the skill may call: the request host must be
// allowlisted and the URL path must match one of the endpoint patterns.
// The markdown body is prompt material describing when to use it.
type Skill struct {
	Name        string
	Description string
	URL         string // may contain {args}
	Method      string
	Body        string

	endpoints []*regexp.Regexp
	hosts     map[string]bool

	client *http.Client
}

type skillFrontMatter struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	URL         string   `yaml:"url"`
	Method      string   `yaml:"method"`
	Endpoints   []string `yaml:"endpoints"`
	Hosts       []string `yaml:"hosts"`
}

// LoadSkills parses every *.md file in dir. Files without valid front matter
// or without any host allowlist are skipped with a warning; a skill that can
// call anywhere is a misconfiguration, not a capability.
func LoadSkills(dir string) ([]*Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	client := &http.Client{Timeout: skillCallTimeout}
	var skills []*Skill
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".md") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		skill, err := parseSkill(path)
		if err != nil {
			slog.Warn("skill skipped", "file", entry.Name(), "error", err)
			continue
		}
		skill.client = client
		skills = append(skills, skill)
	}
	sort.Slice(skills, func(i, j int) bool { return skills[i].Name < skills[j].Name })
	return skills, nil
}

func parseSkill(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	meta, body, err := splitFrontMatter(string(data))
	if err != nil {
		return nil, err
	}

	var fm skillFrontMatter
	if err := yaml.Unmarshal([]byte(meta), &fm); err != nil {
		return nil, fmt.Errorf("front matter: %w", err)
	}
	if fm.Name == "" {
		fm.Name = strings.TrimSuffix(filepath.Base(path), ".md")
	}
	if fm.URL == "" {
		return nil, fmt.Errorf("skill %s declares no url", fm.Name)
	}
	if len(fm.Hosts) == 0 {
		return nil, fmt.Errorf("skill %s has an empty host allowlist", fm.Name)
	}

	s := &Skill{
		Name:        strings.ToLower(fm.Name),
		Description: fm.Description,
		URL:         fm.URL,
		Method:      strings.ToUpper(fm.Method),
		Body:        strings.TrimSpace(body),
		hosts:       make(map[string]bool, len(fm.Hosts)),
	}
	if s.Method == "" {
		s.Method = http.MethodGet
	}
	for _, h := range fm.Hosts {
		s.hosts[strings.ToLower(strings.TrimSpace(h))] = true
	}
	for _, pat := range fm.Endpoints {
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, fmt.Errorf("skill %s endpoint %q: %w", fm.Name, pat, err)
		}
		s.endpoints = append(s.endpoints, re)
	}
	if len(s.endpoints) == 0 {
		return nil, fmt.Errorf("skill %s declares no endpoint patterns", fm.Name)
	}
	return s, nil
}

func splitFrontMatter(doc string) (meta, body string, err error) {
	trimmed := strings.TrimLeft(doc, "\ufeff\n\r ")
	if !strings.HasPrefix(trimmed, frontMatterMarker) {
		return "", "", fmt.Errorf("missing front matter")
	}
	rest := trimmed[len(frontMatterMarker):]
	end := strings.Index(rest, "\n"+frontMatterMarker)
	if end < 0 {
		return "", "", fmt.Errorf("unterminated front matter")
	}
	meta = rest[:end]
	body = rest[end+len(frontMatterMarker)+1:]
	if i := strings.Index(body, "\n"); i >= 0 {
		body = body[i+1:]
	} else {
		body = ""
	}
	return meta, body, nil
}

// Invoke performs the skill's HTTP call with args substituted into the URL
// template. Both allowlists are enforced on the final URL, after
// substitution, so arguments cannot redirect the call elsewhere.
func (s *Skill) Invoke(ctx context.Context, args string) (string, error) {
	rawURL := strings.ReplaceAll(s.URL, "{args}", url.QueryEscape(args))
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("skill url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("skill %s: unsupported scheme %q", s.Name, u.Scheme)
	}
	if !s.hosts[strings.ToLower(u.Hostname())] {
		return "", fmt.Errorf("skill %s: host %s is not allowlisted", s.Name, u.Hostname())
	}
	if !s.pathAllowed(u.Path) {
		return "", fmt.Errorf("skill %s: path %s matches no declared endpoint", s.Name, u.Path)
	}

	callCtx, cancel := context.WithTimeout(ctx, skillCallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, s.Method, u.String(), nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("skill %s: %w", s.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, skillResponseMax))
	if err != nil {
		return "", fmt.Errorf("skill %s: read response: %w", s.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("skill %s returned %d", s.Name, resp.StatusCode)
	}
	return strings.TrimSpace(string(body)), nil
}

func (s *Skill) pathAllowed(path string) bool {
	for _, re := range s.endpoints {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// matchInvocation recognises the explicit "skill: args" form. The prefix
// must be a bare skill name; ordinary sentences containing a colon do not
// trigger.
func matchInvocation(skills []*Skill, text string) (*Skill, string, bool) {
	idx := strings.Index(text, ":")
	if idx <= 0 {
		return nil, "", false
	}
	name := strings.ToLower(strings.TrimSpace(text[:idx]))
	if name == "" || strings.ContainsAny(name, " \t") {
		return nil, "", false
	}
	for _, s := range skills {
		if s.Name == name {
			return s, strings.TrimSpace(text[idx+1:]), true
		}
	}
	return nil, "", false
}

// skillsPrompt renders the skill list for the system prompt.
func skillsPrompt(skills []*Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("## Skills\n")
	b.WriteString("The user can invoke these directly with `name: args`.\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "- %s: %s\n", s.Name, s.Description)
		if s.Body != "" {
			b.WriteString(indentLines(s.Body, "  ") + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func indentLines(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}
