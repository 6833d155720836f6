package router

import (
	"strings"

	"github.com/hearthside/domo/internal/audit"
	"github.com/hearthside/domo/internal/providers"
)

// Rate is GBP per million tokens.
type Rate struct {
	Input  float64
	Output float64
}

// rates is the compile-time cost table. Prefix-matched so dated model
// revisions inherit their family rate.
var rates = map[string]Rate{
	"claude-opus-4":     {Input: 12.0, Output: 60.0},
	"claude-sonnet-4":   {Input: 2.4, Output: 12.0},
	"claude-haiku-4":    {Input: 0.8, Output: 4.0},
	"claude-3-5-haiku":  {Input: 0.64, Output: 3.2},
	"gpt-4o-mini":       {Input: 0.12, Output: 0.48},
	"gpt-4o":            {Input: 2.0, Output: 8.0},
	"gpt-4.1-mini":      {Input: 0.32, Output: 1.28},
	"gpt-4.1":           {Input: 1.6, Output: 6.4},
	"o3-mini":           {Input: 0.88, Output: 3.52},
	"deepseek-chat":     {Input: 0.22, Output: 0.88},
	"llama-3.3-70b":     {Input: 0.47, Output: 0.63},
	"llama-3.1-8b":      {Input: 0.04, Output: 0.06},
	"qwen2.5":           {Input: 0.3, Output: 0.3},
	"text-embedding-3":  {Input: 0.016, Output: 0},
	"whisper-large-v3":  {Input: 0.09, Output: 0},
}

// defaultRate applies to models absent from the table.
var defaultRate = Rate{Input: 1, Output: 5}

// rateFor picks the longest matching prefix for the model name.
func rateFor(model string) Rate {
	lowered := strings.ToLower(model)
	best := ""
	for prefix := range rates {
		if strings.HasPrefix(lowered, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return defaultRate
	}
	return rates[best]
}

// CostGBP prices one call at four-decimal precision.
func CostGBP(model string, usage providers.Usage) float64 {
	r := rateFor(model)
	cost := float64(usage.InputTokens)/1e6*r.Input + float64(usage.OutputTokens)/1e6*r.Output
	return audit.RoundGBP(cost)
}
