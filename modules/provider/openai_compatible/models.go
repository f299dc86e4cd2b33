package openaicompat

// knownContextWindows maps model identifiers to their maximum context
// window size in tokens. It covers both the bare names used when
// talking to a vendor directly and the vendor-prefixed ids used by
// aggregators. Consulted when context_window is not set in config.
var knownContextWindows = map[string]int{
	// OpenAI
	"gpt-3.5-turbo":       16385,
	"gpt-4":               8192,
	"gpt-4-turbo":         128000,
	"gpt-4-turbo-preview": 128000,
	"gpt-4o":              128000,
	"gpt-4o-mini":         128000,
	"gpt-4.1":             1048576,
	"gpt-4.1-mini":        1048576,
	"gpt-4.1-nano":        1048576,
	"o1":                  200000,
	"o1-mini":             128000,
	"o1-preview":          128000,
	"o3":                  200000,
	"o3-mini":             200000,
	"o4-mini":             200000,
	"openai/gpt-4o":       128000,
	"openai/gpt-4o-mini":  128000,
	"openai/gpt-4-turbo":  128000,
	"openai/gpt-4":        8192,
	"openai/o1":           200000,
	"openai/o1-mini":      128000,
	"openai/o3-mini":      200000,

	// Anthropic
	"anthropic/claude-3.5-sonnet": 200000,
	"anthropic/claude-3-opus":     200000,
	"anthropic/claude-3-haiku":    200000,
	"anthropic/claude-3.5-haiku":  200000,
	"anthropic/claude-sonnet-4":   200000,
	"anthropic/claude-opus-4":     200000,

	// Google
	"google/gemini-pro-1.5":   1048576,
	"google/gemini-flash-1.5": 1048576,
	"google/gemini-2.0-flash": 1048576,

	// Meta
	"meta-llama/llama-3.1-405b-instruct": 131072,
	"meta-llama/llama-3.1-70b-instruct":  131072,
	"meta-llama/llama-3.1-8b-instruct":   131072,

	// Mistral
	"mistralai/mistral-large": 128000,
	"mistralai/mixtral-8x7b":  32768,

	// OpenRouter
	"openrouter/auto": 128000,
}

// lookupContextWindow returns the context window size for the given
// model, or defaultContextWindow when the model is unknown.
func lookupContextWindow(model string) int {
	if size, ok := knownContextWindows[model]; ok {
		return size
	}
	return defaultContextWindow
}
