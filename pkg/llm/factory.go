package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Config drives provider construction and per-task routing.
type Config struct {
	// DefaultProvider handles any task without an explicit override.
	DefaultProvider string

	Embedding     EmbeddingOptions
	Summarization SummaryOptions
	Keywords      KeywordOptions

	// Providers holds credentials and endpoints keyed by provider name.
	Providers map[string]ProviderSettings
}

// EmbeddingOptions selects the embedding provider and model.
type EmbeddingOptions struct {
	Provider      string
	Model         string
	Dimensions    int
	MaxInputChars int
}

// SummaryOptions controls summary generation.
type SummaryOptions struct {
	Enabled          bool
	Model            string // optional "provider/model" override
	MinContentLength int
	MaxLength        int
}

// KeywordOptions controls keyword extraction.
type KeywordOptions struct {
	Max   int
	Model string // optional "provider/model" override
}

// Factory builds providers on demand and caches them by name.
type Factory struct {
	mu        sync.Mutex
	cfg       Config
	logger    hclog.Logger
	providers map[string]Provider
}

// NewFactory creates a provider factory.
func NewFactory(cfg Config, logger hclog.Logger) *Factory {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Factory{
		cfg:       cfg,
		logger:    logger.Named("llm"),
		providers: make(map[string]Provider),
	}
}

// Register installs a pre-built provider under name, replacing whatever the
// factory would construct. Tests use this to inject mocks.
func (f *Factory) Register(name string, provider Provider) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.providers[name] = provider
}

// Provider returns the named provider, constructing it on first use.
func (f *Factory) Provider(ctx context.Context, name string) (Provider, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.providers[name]; ok {
		return p, nil
	}

	p, err := f.build(ctx, name)
	if err != nil {
		return nil, err
	}
	f.providers[name] = p
	return p, nil
}

func (f *Factory) build(ctx context.Context, name string) (Provider, error) {
	settings := f.cfg.Providers[name]

	switch name {
	case "openai":
		return NewOpenAI(settings, f.logger)
	case "azure":
		return NewAzure(settings, f.logger)
	case "openrouter":
		return NewOpenRouter(settings, f.logger)
	case "anthropic":
		return NewAnthropic(settings, f.logger)
	case "google":
		return NewGoogle(settings, f.logger)
	case "ollama":
		return NewOllama(settings, f.logger)
	case "huggingface":
		return NewHuggingFace(settings, f.logger)
	case "bedrock":
		return NewBedrock(ctx, settings, f.logger)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown provider %q: %w", name, ErrNotConfigured)
	}
}

// Resolve picks a provider and bare model name for a model spec. The spec
// may carry an explicit "provider/model" prefix; otherwise the provider is
// inferred from the model name, then from defaultProvider, then from the
// factory-wide default.
func (f *Factory) Resolve(ctx context.Context, spec, defaultProvider string) (Provider, string, error) {
	name, model := SplitModel(spec)
	if name == "" {
		name = DetectProvider(model)
	}
	if name == "" {
		name = defaultProvider
	}
	if name == "" {
		name = f.cfg.DefaultProvider
	}
	if name == "" {
		return nil, "", fmt.Errorf("no provider configured: %w", ErrNotConfigured)
	}

	p, err := f.Provider(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return p, model, nil
}

// knownProviders are names SplitModel treats as routing prefixes.
var knownProviders = map[string]struct{}{
	"openai":      {},
	"azure":       {},
	"openrouter":  {},
	"anthropic":   {},
	"google":      {},
	"ollama":      {},
	"huggingface": {},
	"bedrock":     {},
	"mock":        {},
}

// SplitModel separates an optional provider prefix from a model spec.
// "anthropic/claude-3-5-haiku-latest" yields ("anthropic", "claude-3-5-haiku-latest");
// a spec whose prefix is not a known provider is returned whole, so
// HuggingFace ids like "sentence-transformers/all-MiniLM-L6-v2" pass through.
func SplitModel(spec string) (provider, model string) {
	before, after, found := strings.Cut(spec, "/")
	if !found {
		return "", spec
	}
	if _, ok := knownProviders[before]; !ok {
		return "", spec
	}
	return before, after
}

// DetectProvider infers a provider from well-known model name prefixes.
// Unrecognized models return "" and fall through to the configured default.
func DetectProvider(model string) string {
	model = strings.ToLower(model)

	switch {
	case model == "":
		return ""
	case strings.HasPrefix(model, "claude"):
		return "anthropic"
	case strings.HasPrefix(model, "gemini"), model == "text-embedding-004":
		return "google"
	case strings.HasPrefix(model, "gpt-"),
		strings.HasPrefix(model, "o1"),
		strings.HasPrefix(model, "o3"),
		strings.HasPrefix(model, "text-embedding-"):
		return "openai"
	case strings.HasPrefix(model, "llama"),
		strings.HasPrefix(model, "mistral"),
		strings.HasPrefix(model, "codellama"),
		strings.HasPrefix(model, "phi"),
		strings.HasPrefix(model, "qwen"),
		strings.HasPrefix(model, "gemma"),
		strings.HasPrefix(model, "nomic"),
		strings.HasPrefix(model, "mxbai"):
		return "ollama"
	case strings.HasPrefix(model, "titan"),
		strings.HasPrefix(model, "amazon."),
		strings.HasPrefix(model, "anthropic."),
		strings.HasPrefix(model, "us."):
		return "bedrock"
	default:
		return ""
	}
}
