package router

import "strings"

// Tier is one of the five routing classes.
type Tier string

const (
	TierReflex   Tier = "reflex"
	TierSimple   Tier = "simple"
	TierComplex  Tier = "complex"
	TierStandard Tier = "standard"
	TierVoice    Tier = "voice"
)

// defaultGreetings maps canonical lowercased text to canned replies.
// Reflex-tier messages never reach a provider.
var defaultGreetings = map[string]string{
	"hi":           "Hey! What can I do for you?",
	"hello":        "Hello! How can I help?",
	"hey":          "Hey! What's up?",
	"yo":           "Yo! What do you need?",
	"thanks":       "No problem.",
	"thank you":    "You're welcome!",
	"ok":           "👍",
	"okay":         "👍",
	"good morning": "Good morning! What's on today?",
	"good night":   "Good night! Sleep well.",
	"bye":          "See you!",
	"goodbye":      "Bye! Ping me anytime.",
}

// defaultSimplePatterns route short factual queries to the fast model.
var defaultSimplePatterns = []string{
	"what time",
	"what day",
	"what date",
	"my schedule",
	"remind me",
	"weather",
	"how do you say",
	"define ",
	"translate ",
}

// defaultComplexPatterns route heavyweight intents to the primary model
// with the extended-context flag set.
var defaultComplexPatterns = []string{
	"analyse",
	"analyze",
	"strategy",
	"compare",
	"evaluate",
	"architect",
	"design a",
	"write a detailed",
	"in depth",
	"step by step",
	"research",
	"investigate",
	"pros and cons",
}

// canonical lowercases, trims whitespace and strips trailing punctuation so
// "Thanks!" matches the greeting table entry "thanks".
func canonical(text string) string {
	s := strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(s, ".!?, ")
}

func wordCount(text string) int {
	return len(strings.Fields(text))
}

func matchesAny(lowered string, patterns []string) bool {
	for _, p := range patterns {
		if p != "" && strings.Contains(lowered, p) {
			return true
		}
	}
	return false
}
