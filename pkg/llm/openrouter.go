package llm

import (
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/openai/openai-go/v3/option"
)

const openRouterBaseURL = "https://openrouter.ai/api/v1"

// NewOpenRouter creates a provider for OpenRouter's OpenAI-compatible API.
// OpenRouter asks clients to identify themselves via referer headers.
func NewOpenRouter(settings ProviderSettings, logger hclog.Logger) (*OpenAIProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("openrouter: api key missing: %w", ErrNotConfigured)
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = openRouterBaseURL
	}

	if settings.Model == "" {
		settings.Model = "openai/gpt-4o-mini"
	}

	return newOpenAICompatible("openrouter", settings, logger,
		option.WithAPIKey(settings.APIKey),
		option.WithBaseURL(baseURL),
		option.WithHeader("HTTP-Referer", "https://github.com/recallhq/recall"),
		option.WithHeader("X-Title", "recall"),
	), nil
}
