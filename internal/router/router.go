// Package router classifies messages into cost tiers, selects a model, and
// prices every completion. It is the single choke point between the agent
// and the remote providers.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/providers"
)

// Slot names one of the two configured model endpoints.
type Slot string

const (
	SlotPrimary Slot = "primary"
	SlotFast    Slot = "fast"
)

// Route is the outcome of classification.
type Route struct {
	Tier            Tier   `json:"tier"`
	Slot            Slot   `json:"slot,omitempty"`
	Model           string `json:"model,omitempty"`
	Response        string `json:"response,omitempty"` // canned reflex reply
	ExtendedContext bool   `json:"extended_context,omitempty"`
}

// Result is one priced completion.
type Result struct {
	Content      string
	ToolCalls    []providers.ToolCall
	FinishReason string
	Model        string
	Provider     string
	Usage        providers.Usage
	CostGBP      float64
	Duration     time.Duration
}

// Router owns the provider endpoints and the tier tables.
type Router struct {
	primary       providers.Provider
	primaryModel  string
	fast          providers.Provider
	fastModel     string
	embedder      providers.Embedder
	greetings     map[string]string
	simplePats    []string
	complexPats   []string
}

// New wires the router from config. The primary model is mandatory; fast
// and embedding are optional degradations.
func New(cfg config.ModelsConfig, embedCfg config.EmbeddingConfig, resolve func(string) string) (*Router, error) {
	if !cfg.Primary.Configured() {
		return nil, fmt.Errorf("router: no primary model configured")
	}
	primary, err := providers.New(cfg.Primary.Provider, resolve(cfg.Primary.APIKey), cfg.Primary.APIBase, cfg.Primary.Model)
	if err != nil {
		return nil, fmt.Errorf("router: primary: %w", err)
	}

	r := &Router{
		primary:      primary,
		primaryModel: cfg.Primary.Model,
		greetings:    defaultGreetings,
		simplePats:   defaultSimplePatterns,
		complexPats:  defaultComplexPatterns,
	}

	if cfg.Fast.Configured() {
		fast, err := providers.New(cfg.Fast.Provider, resolve(cfg.Fast.APIKey), cfg.Fast.APIBase, cfg.Fast.Model)
		if err != nil {
			slog.Warn("fast model misconfigured, simple tier falls through to standard", "error", err)
		} else {
			r.fast = fast
			r.fastModel = cfg.Fast.Model
		}
	}

	if len(cfg.Routing.Greetings) > 0 {
		r.greetings = cfg.Routing.Greetings
	}
	if len(cfg.Routing.SimplePatterns) > 0 {
		r.simplePats = cfg.Routing.SimplePatterns
	}
	if len(cfg.Routing.ComplexPatterns) > 0 {
		r.complexPats = cfg.Routing.ComplexPatterns
	}

	if embedCfg.Provider != "" {
		model := embedCfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		p := providers.NewOpenAICompatible(embedCfg.Provider, resolve(embedCfg.APIKey), embedCfg.APIBase, model)
		r.embedder = embedderFunc(func(ctx context.Context, texts []string) ([][]float64, error) {
			return p.Embed(ctx, model, texts)
		})
	}

	return r, nil
}

type embedderFunc func(ctx context.Context, texts []string) ([][]float64, error)

func (f embedderFunc) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	return f(ctx, texts)
}

// FastConfigured reports whether the simple tier has its own model.
func (r *Router) FastConfigured() bool { return r.fast != nil }

// Embedder returns the configured embedder or nil.
func (r *Router) Embedder() providers.Embedder { return r.embedder }

// PrimaryModel names the standard-tier model.
func (r *Router) PrimaryModel() string { return r.primaryModel }

// FastModel names the simple-tier model, or "" when unconfigured.
func (r *Router) FastModel() string { return r.fastModel }

// Classify picks the tier for a message. Reflex matches return a canned
// response and never touch a provider; simple falls through to standard
// when no fast model is configured.
func (r *Router) Classify(text string) Route {
	canon := canonical(text)
	if reply, ok := r.greetings[canon]; ok {
		return Route{Tier: TierReflex, Response: reply}
	}

	words := wordCount(text)
	if matchesAny(canon, r.simplePats) || words <= 5 {
		if r.fast != nil {
			return Route{Tier: TierSimple, Slot: SlotFast, Model: r.fastModel}
		}
		return Route{Tier: TierStandard, Slot: SlotPrimary, Model: r.primaryModel}
	}
	if matchesAny(canon, r.complexPats) || words > 50 {
		return Route{Tier: TierComplex, Slot: SlotPrimary, Model: r.primaryModel, ExtendedContext: true}
	}
	return Route{Tier: TierStandard, Slot: SlotPrimary, Model: r.primaryModel}
}

// VoiceRoute is the opt-in tier for transcribed audio; it prefers the fast
// model.
func (r *Router) VoiceRoute() Route {
	if r.fast != nil {
		return Route{Tier: TierVoice, Slot: SlotFast, Model: r.fastModel}
	}
	return Route{Tier: TierVoice, Slot: SlotPrimary, Model: r.primaryModel}
}

func (r *Router) provider(slot Slot) (providers.Provider, string) {
	if slot == SlotFast && r.fast != nil {
		return r.fast, r.fastModel
	}
	return r.primary, r.primaryModel
}

// Complete runs one provider call on the slot's model under the 30 s
// completion timeout and prices the result. Provider failures surface
// unwrapped; nothing retries inside a completion.
func (r *Router) Complete(ctx context.Context, slot Slot, req providers.ChatRequest) (*Result, error) {
	p, model := r.provider(slot)
	if req.Model == "" {
		req.Model = model
	}

	ctx, cancel := context.WithTimeout(ctx, providers.CompletionTimeout)
	defer cancel()

	start := time.Now()
	resp, err := p.Chat(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Result{
		Content:      resp.Content,
		ToolCalls:    resp.ToolCalls,
		FinishReason: resp.FinishReason,
		Model:        req.Model,
		Provider:     p.Name(),
		Usage:        resp.Usage,
		CostGBP:      CostGBP(req.Model, resp.Usage),
		Duration:     time.Since(start),
	}, nil
}

// Family reports the wire family for the slot, so the executor can thread
// tool results in provider-native form.
func (r *Router) Family(slot Slot) string {
	p, _ := r.provider(slot)
	return p.Family()
}

// VerifyReport is the outcome of probing one model slot.
type VerifyReport struct {
	Slot     Slot   `json:"slot"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Err      error  `json:"-"`
}

// Verify probes every configured model. A 401 marks that model fatal;
// other non-2xx statuses still prove the key works.
func (r *Router) Verify(ctx context.Context) []VerifyReport {
	reports := []VerifyReport{{
		Slot:     SlotPrimary,
		Provider: r.primary.Name(),
		Model:    r.primaryModel,
		Err:      r.primary.Verify(ctx, r.primaryModel),
	}}
	if r.fast != nil {
		reports = append(reports, VerifyReport{
			Slot:     SlotFast,
			Provider: r.fast.Name(),
			Model:    r.fastModel,
			Err:      r.fast.Verify(ctx, r.fastModel),
		})
	}
	return reports
}
