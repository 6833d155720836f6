package agent

import (
	"sort"
	"strings"
)

// Resolver routes an inbound message to an agent by leading mention. Both
// "@name: rest" and "name: rest" re-target when name is a known agent;
// anything else goes to the default agent unchanged. Skill invocations use
// the same "word:" shape, so mention parsing runs first and only claims
// names that really are agents.
type Resolver struct {
	agents      map[string]*Agent
	defaultName string
}

func NewResolver(defaultAgent *Agent, others ...*Agent) *Resolver {
	r := &Resolver{
		agents:      make(map[string]*Agent, 1+len(others)),
		defaultName: strings.ToLower(defaultAgent.Name()),
	}
	r.agents[r.defaultName] = defaultAgent
	for _, a := range others {
		r.agents[strings.ToLower(a.Name())] = a
	}
	return r
}

// Resolve returns the target agent and the text with any mention stripped.
func (r *Resolver) Resolve(text string) (*Agent, string) {
	trimmed := strings.TrimSpace(text)
	candidate := strings.TrimPrefix(trimmed, "@")
	if idx := strings.Index(candidate, ":"); idx > 0 {
		name := strings.ToLower(strings.TrimSpace(candidate[:idx]))
		if agent, ok := r.agents[name]; ok {
			return agent, strings.TrimSpace(candidate[idx+1:])
		}
	}
	return r.agents[r.defaultName], trimmed
}

// Default returns the fallback agent.
func (r *Resolver) Default() *Agent { return r.agents[r.defaultName] }

// Get looks an agent up by name, case-insensitive.
func (r *Resolver) Get(name string) (*Agent, bool) {
	a, ok := r.agents[strings.ToLower(name)]
	return a, ok
}

// Names lists the registered agents, sorted.
func (r *Resolver) Names() []string {
	names := make([]string, 0, len(r.agents))
	for n := range r.agents {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
