package providers

import "fmt"

// knownBases maps provider names to their chat-completions endpoints so
// config can name a provider without spelling out the URL.
var knownBases = map[string]string{
	"openai":     "https://api.openai.com/v1",
	"groq":       "https://api.groq.com/openai/v1",
	"openrouter": "https://openrouter.ai/api/v1",
	"deepseek":   "https://api.deepseek.com/v1",
	"ollama":     "http://localhost:11434/v1",
}

// New builds a provider from its configured name. Anything that is not the
// Anthropic family is treated as chat-completions compatible.
func New(name, apiKey, apiBase, model string) (Provider, error) {
	if name == "" {
		return nil, fmt.Errorf("providers: empty provider name")
	}
	if name == "anthropic" {
		return NewAnthropic(name, apiKey, apiBase, model), nil
	}
	if apiBase == "" {
		if base, ok := knownBases[name]; ok {
			apiBase = base
		} else {
			return nil, fmt.Errorf("providers: unknown provider %q and no api_base configured", name)
		}
	}
	return NewOpenAICompatible(name, apiKey, apiBase, model), nil
}
