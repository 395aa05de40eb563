// ABOUTME: Chooses the model and API key a session runs with
// ABOUTME: Falls back to a placeholder key so the runtime can still be assembled

package llm

import "strings"

// DefaultModel is used when neither config nor environment names one.
const DefaultModel = "gpt-3.5-turbo"

// PlaceholderAPIKey stands in when no key is configured. Calls made with it
// fail at the provider.
const PlaceholderAPIKey = "sk-THIS_IS_A_PLACEHOLDER_KEY_DO_NOT_USE_IT"

// PlaceholderWarning is surfaced to a room when it runs with PlaceholderAPIKey.
const PlaceholderWarning = "Critical: agents running with a placeholder LLM key. Real LLM calls will fail."

// RouteConfig is the explicitly configured model selection.
type RouteConfig struct {
	APIKey string
	Model  string
}

// Route is the resolved model selection.
type Route struct {
	APIKey string
	Model  string
}

// Placeholder reports whether the route carries the placeholder key.
func (r Route) Placeholder() bool {
	return strings.HasPrefix(r.APIKey, "sk-THIS_IS_A_PLACEHOLDER")
}

// Resolve picks the API key and model. Explicit config wins over the
// OPENAI_API_KEY / OPENAI_MODEL_NAME environment; with no key at all the
// placeholder key and the default model are returned.
func Resolve(cfg RouteConfig, getenv func(string) string) Route {
	key := cfg.APIKey
	if key == "" {
		key = getenv("OPENAI_API_KEY")
	}
	if key == "" {
		return Route{APIKey: PlaceholderAPIKey, Model: DefaultModel}
	}

	model := cfg.Model
	if model == "" {
		model = getenv("OPENAI_MODEL_NAME")
	}
	if model == "" {
		model = DefaultModel
	}
	return Route{APIKey: key, Model: model}
}
