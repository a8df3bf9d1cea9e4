// Package llm provides a provider-agnostic gateway for the language model
// operations the ingest and search pipelines need: batch embeddings, text
// summarization, and keyword extraction. Provider failures degrade to
// deterministic local fallbacks so document processing never stalls on an
// external API.
package llm

import "context"

// Provider is a single LLM backend. Implementations exist for OpenAI and
// OpenAI-compatible endpoints, Anthropic, Google, Azure OpenAI, Ollama,
// Hugging Face, OpenRouter, and AWS Bedrock, plus a deterministic mock.
type Provider interface {
	// Name returns the provider name (e.g. "openai", "ollama", "mock").
	Name() string

	// Embed generates one vector per input text, in input order.
	Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error)

	// Chat runs a single-turn completion.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// EmbedRequest contains texts to embed as one batch.
type EmbedRequest struct {
	Texts []string
	Model string
}

// EmbedResponse contains the generated vectors.
type EmbedResponse struct {
	Vectors    [][]float32
	Model      string
	Dimensions int
	TokensUsed int
}

// ChatRequest is a single-turn completion request.
type ChatRequest struct {
	System      string
	Prompt      string
	Model       string
	MaxTokens   int
	Temperature float64
	// JSONOnly asks the provider for a bare JSON object response where the
	// API supports enforcing it.
	JSONOnly bool
}

// ChatResponse contains the completion text.
type ChatResponse struct {
	Content    string
	Model      string
	TokensUsed int
}

// ProviderSettings carries the per-provider credentials and endpoint
// configuration resolved from the application config.
type ProviderSettings struct {
	APIKey       string
	BaseURL      string
	Model        string
	APIVersion   string // Azure API version
	ResourceName string // Azure resource name
	Region       string // Bedrock region
}
