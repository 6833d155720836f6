// Package agent ties the runtime together: it owns the soul and skills of
// one assistant persona, assembles context from memory, and drives the
// model/tool executor for every inbound message.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/memory"
	"github.com/hearthside/domo/internal/providers"
	"github.com/hearthside/domo/internal/router"
	"github.com/hearthside/domo/internal/store"
	"github.com/hearthside/domo/internal/tracing"
	"github.com/hearthside/domo/internal/trust"
)

const extractionTimeout = 30 * time.Second

// Message is one inbound user turn with its channel identity.
type Message struct {
	Text     string
	Channel  string
	UserID   string
	Username string
	Images   []providers.ImageContent
}

// Reply is the priced outcome of Process.
type Reply struct {
	Content  string        `json:"content"`
	Tier     router.Tier   `json:"tier"`
	CostGBP  float64       `json:"cost_gbp"`
	Model    string        `json:"model,omitempty"`
	Duration time.Duration `json:"duration"`
}

// TierSkill marks replies produced by a direct skill invocation, which
// bypasses the router entirely.
const TierSkill router.Tier = "skill"

// Options wires an Agent.
type Options struct {
	Name         string
	SoulPath     string
	Skills       []*Skill
	Router       *router.Router
	Executor     *Executor
	Memory       *memory.Manager
	Kernel       *trust.Kernel
	Audit        audit.Log
	HistoryLimit int // default 20; halved to 8 when knowledge context is present
	ContextChars int // default 100k
}

// Agent is one persona. Safe for concurrent Process calls.
type Agent struct {
	name         string
	soul         string
	skills       []*Skill
	router       *router.Router
	executor     *Executor
	memory       *memory.Manager
	kernel       *trust.Kernel
	audit        audit.Log
	historyLimit int
	contextChars int
}

func New(opts Options) *Agent {
	hl := opts.HistoryLimit
	if hl <= 0 {
		hl = defaultHistoryLimit
	}
	cc := opts.ContextChars
	if cc <= 0 {
		cc = defaultContextCeiling
	}
	return &Agent{
		name:         opts.Name,
		soul:         LoadSoul(opts.SoulPath),
		skills:       opts.Skills,
		router:       opts.Router,
		executor:     opts.Executor,
		memory:       opts.Memory,
		kernel:       opts.Kernel,
		audit:        opts.Audit,
		historyLimit: hl,
		contextChars: cc,
	}
}

func (a *Agent) Name() string { return a.name }

// Skills returns the loaded skill set, for the dashboard listing.
func (a *Agent) Skills() []*Skill { return a.skills }

// Process handles one inbound message end to end. Skill invocations and
// reflex replies short-circuit before any provider call; everything else
// goes through context assembly and the executor. The user message is
// stored before the assistant reply so thread order is stable.
func (a *Agent) Process(ctx context.Context, msg Message) (*Reply, error) {
	started := time.Now()
	ctx, span := tracing.Start(ctx, "agent.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("agent", a.name),
		attribute.String("channel", msg.Channel),
	)

	text := strings.TrimSpace(msg.Text)
	if text == "" && len(msg.Images) == 0 {
		return &Reply{Duration: time.Since(started)}, nil
	}

	if skill, args, ok := matchInvocation(a.skills, text); ok {
		return a.processSkill(ctx, skill, args, msg, started)
	}

	route := a.router.Classify(text)
	if route.Tier == router.TierReflex {
		a.storeTurn(ctx, msg, route.Response, "", string(route.Tier))
		a.auditCompletion(ctx, msg.Channel, string(route.Tier), "", 0, time.Since(started))
		return &Reply{Content: route.Response, Tier: route.Tier, Duration: time.Since(started)}, nil
	}

	system, historyLimit := a.buildSystem(ctx, text)
	history, err := a.memory.History(ctx, a.name, historyLimit, store.HistoryFilter{Channel: msg.Channel, UserID: msg.UserID})
	if err != nil {
		slog.Warn("history unavailable, continuing without it", "agent", a.name, "error", err)
	}
	messages := assembleMessages(system, history, text, msg.Images, a.contextChars)

	run, err := a.executor.Run(ctx, route.Slot, system, messages)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	span.SetAttributes(
		attribute.String("tier", string(route.Tier)),
		attribute.String("model", run.Model),
	)

	content := SanitizeAssistantContent(run.Content)
	a.storeTurn(ctx, msg, content, run.Model, string(route.Tier))
	a.extractAsync(text)
	a.auditCompletion(ctx, msg.Channel, string(route.Tier), run.Model, run.CostGBP, time.Since(started))

	return &Reply{
		Content:  content,
		Tier:     route.Tier,
		CostGBP:  run.CostGBP,
		Model:    run.Model,
		Duration: time.Since(started),
	}, nil
}

func (a *Agent) processSkill(ctx context.Context, skill *Skill, args string, msg Message, started time.Time) (*Reply, error) {
	out, err := skill.Invoke(ctx, args)
	if err != nil {
		out = "Skill failed: " + err.Error()
	}
	a.storeTurn(ctx, msg, out, "", string(TierSkill))
	if a.audit != nil {
		_ = a.audit.Log(ctx, a.name, "skill", skill.Name, map[string]any{
			"channel": msg.Channel,
			"ok":      err == nil,
		})
	}
	return &Reply{Content: out, Tier: TierSkill, Duration: time.Since(started)}, nil
}

// buildSystem assembles the system prompt sections and decides the history
// depth: a rich knowledge context trades history turns for facts.
func (a *Agent) buildSystem(ctx context.Context, text string) (string, int) {
	src := contextSources{
		soul:   a.soul,
		skills: skillsPrompt(a.skills),
	}
	if a.kernel != nil {
		src.trust = a.kernel.Context()
	}
	if a.memory != nil {
		src.knowledge = a.memory.BuildKnowledgeContext(ctx)
		if entries, err := a.memory.SearchKnowledge(ctx, text, 5); err == nil {
			src.relevant = relevantKnowledgePrompt(entries)
		}
		src.graph = a.memory.GraphQuery(ctx, text)
	}

	historyLimit := a.historyLimit
	if src.knowledge != "" {
		historyLimit = historyLimitWithContext
	}
	return systemPrompt(src), historyLimit
}

// storeTurn appends the user message and then the assistant reply. The order
// matters: thread timestamps are monotonic, so the assistant row must land
// strictly after its user row.
func (a *Agent) storeTurn(ctx context.Context, msg Message, reply, model, tier string) {
	if a.memory == nil {
		return
	}
	_, err := a.memory.AddMessage(ctx, store.Message{
		Agent:    a.name,
		Role:     "user",
		Content:  msg.Text,
		Channel:  msg.Channel,
		UserID:   msg.UserID,
		Username: msg.Username,
	})
	if err != nil {
		slog.Warn("user message not stored", "agent", a.name, "error", err)
	}
	if strings.TrimSpace(reply) == "" {
		return
	}
	_, err = a.memory.AddMessage(ctx, store.Message{
		Agent:    a.name,
		Role:     "assistant",
		Content:  reply,
		Channel:  msg.Channel,
		UserID:   msg.UserID,
		Username: msg.Username,
		Model:    model,
		Tier:     tier,
	})
	if err != nil {
		slog.Warn("assistant message not stored", "agent", a.name, "error", err)
	}
}

// extractAsync kicks off knowledge and graph extraction without blocking the
// reply path. Each run gets its own deadline detached from the request.
func (a *Agent) extractAsync(text string) {
	if a.memory == nil {
		return
	}
	if memory.ShouldExtractKnowledge(text) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
			defer cancel()
			a.memory.ExtractKnowledge(ctx, text)
		}()
	}
	if memory.ShouldExtractGraph(text) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), extractionTimeout)
			defer cancel()
			a.memory.ExtractGraph(ctx, text)
		}()
	}
}

func (a *Agent) auditCompletion(ctx context.Context, channel, tier, model string, cost float64, dur time.Duration) {
	if a.audit == nil {
		return
	}
	err := a.audit.Log(ctx, a.name, "completion", tier, map[string]any{
		"cost":        cost,
		"tier":        tier,
		"model":       model,
		"channel":     channel,
		"duration_ms": dur.Milliseconds(),
	})
	if err != nil {
		slog.Warn("audit write failed", "agent", a.name, "error", err)
	}
}
