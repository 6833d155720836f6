package router

import (
	"strings"
	"testing"

	"github.com/hearthside/domo/internal/config"
	"github.com/hearthside/domo/internal/providers"
)

func newTestRouter(t *testing.T, withFast bool) *Router {
	t.Helper()
	cfg := config.ModelsConfig{
		Primary: config.ModelConfig{Provider: "anthropic", Model: "claude-sonnet-4-5", APIKey: "k"},
	}
	if withFast {
		cfg.Fast = config.ModelConfig{Provider: "groq", Model: "llama-3.1-8b-instant", APIKey: "k"}
	}
	r, err := New(cfg, config.EmbeddingConfig{}, func(s string) string { return s })
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestClassify(t *testing.T) {
	r := newTestRouter(t, true)

	tests := []struct {
		text     string
		tier     Tier
		model    string
		extended bool
	}{
		{"thanks", TierReflex, "", false},
		{"Thanks!", TierReflex, "", false},
		{"HELLO", TierReflex, "", false},
		{"what time is it in Tokyo right now", TierSimple, "llama-3.1-8b-instant", false},
		{"short question here", TierSimple, "llama-3.1-8b-instant", false},
		{"please compare the tradeoffs between these two storage engines for my workload", TierComplex, "claude-sonnet-4-5", true},
		{strings.Repeat("word ", 51), TierComplex, "claude-sonnet-4-5", true},
		{"tell me about the history of the transistor and why it mattered", TierStandard, "claude-sonnet-4-5", false},
	}
	for _, tt := range tests {
		t.Run(tt.text[:min(20, len(tt.text))], func(t *testing.T) {
			route := r.Classify(tt.text)
			if route.Tier != tt.tier {
				t.Fatalf("tier = %q, want %q", route.Tier, tt.tier)
			}
			if route.Model != tt.model {
				t.Fatalf("model = %q, want %q", route.Model, tt.model)
			}
			if route.ExtendedContext != tt.extended {
				t.Fatalf("extended = %v, want %v", route.ExtendedContext, tt.extended)
			}
		})
	}
}

func TestReflexReturnsCannedReply(t *testing.T) {
	r := newTestRouter(t, false)
	route := r.Classify("thanks")
	if route.Tier != TierReflex {
		t.Fatalf("tier = %q", route.Tier)
	}
	if route.Response != "No problem." {
		t.Fatalf("response = %q", route.Response)
	}
	if route.Model != "" {
		t.Fatalf("reflex must not select a model, got %q", route.Model)
	}
}

func TestSimpleWithoutFastFallsToStandard(t *testing.T) {
	r := newTestRouter(t, false)
	route := r.Classify("what time is it in Tokyo right now")
	if route.Tier != TierStandard {
		t.Fatalf("tier = %q, want standard", route.Tier)
	}
	if route.Model != "claude-sonnet-4-5" {
		t.Fatalf("model = %q", route.Model)
	}
}

func TestCostGBP(t *testing.T) {
	usage := providers.Usage{InputTokens: 1_000_000, OutputTokens: 1_000_000}

	t.Run("known model uses table rate", func(t *testing.T) {
		got := CostGBP("claude-sonnet-4-5-20250929", usage)
		if got != 14.4 {
			t.Fatalf("cost = %v, want 14.4", got)
		}
	})

	t.Run("unknown model uses default rate", func(t *testing.T) {
		got := CostGBP("some-new-model", usage)
		if got != 6.0 {
			t.Fatalf("cost = %v, want 6.0", got)
		}
	})

	t.Run("four decimal rounding", func(t *testing.T) {
		got := CostGBP("gpt-4o-mini", providers.Usage{InputTokens: 123, OutputTokens: 45})
		if got != 0.0000 {
			t.Fatalf("tiny call should round to 0.0000, got %v", got)
		}
	})

	t.Run("never negative", func(t *testing.T) {
		if got := CostGBP("gpt-4o", providers.Usage{}); got < 0 {
			t.Fatalf("cost = %v", got)
		}
	})
}
