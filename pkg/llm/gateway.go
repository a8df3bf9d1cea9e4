package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-hclog"
)

// Gateway routes embedding and generation tasks to configured providers.
// Transient provider failures are retried with exponential backoff and then
// degraded to deterministic local fallbacks, so ingestion and search keep
// working without network access or credentials.
type Gateway struct {
	cfg     Config
	factory *Factory
	logger  hclog.Logger
}

// NewGateway creates a gateway with its own provider factory.
func NewGateway(cfg Config, logger hclog.Logger) *Gateway {
	return NewGatewayWithFactory(cfg, NewFactory(cfg, logger), logger)
}

// NewGatewayWithFactory creates a gateway around an existing factory. Tests
// use this with Factory.Register to route tasks at a mock provider.
func NewGatewayWithFactory(cfg Config, factory *Factory, logger hclog.Logger) *Gateway {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.MaxInputChars == 0 {
		cfg.Embedding.MaxInputChars = 8000
	}
	if cfg.Summarization.MinContentLength == 0 {
		cfg.Summarization.MinContentLength = 300
	}
	if cfg.Summarization.MaxLength == 0 {
		cfg.Summarization.MaxLength = 500
	}
	if cfg.Keywords.Max == 0 {
		cfg.Keywords.Max = 20
	}
	return &Gateway{
		cfg:     cfg,
		factory: factory,
		logger:  logger.Named("llm"),
	}
}

// Dimensions returns the embedding width the gateway produces, from the
// model table when the model is known and the configured value otherwise.
func (g *Gateway) Dimensions() int {
	_, model := SplitModel(g.cfg.Embedding.Model)
	return DimensionsFor(model, g.cfg.Embedding.Dimensions)
}

// EmbeddingModel returns the model name vectors are attributed to, with any
// provider prefix stripped. Unconfigured gateways report "pseudo", matching
// the deterministic vectors they produce.
func (g *Gateway) EmbeddingModel() string {
	_, model := SplitModel(g.cfg.Embedding.Model)
	if model == "" {
		return "pseudo"
	}
	return model
}

// Embed generates one vector per input text, preserving order. Inputs are
// whitespace-normalized and truncated to the configured character limit
// before the provider call. When no provider is configured or the call
// keeps failing after retries, deterministic pseudo vectors of the correct
// width are returned instead of an error; malformed provider responses
// still surface as *EmbeddingError.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	cleaned := make([]string, len(texts))
	for i, text := range texts {
		cleaned[i] = g.cleanInput(text)
	}

	provider, model, err := g.factory.Resolve(ctx, g.cfg.Embedding.Model, g.cfg.Embedding.Provider)
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			g.logger.Warn("no embedding provider available, generating deterministic vectors",
				"error", err)
			return g.pseudoVectors(cleaned), nil
		}
		return nil, err
	}

	var resp *EmbedResponse
	err = g.retry(ctx, func() error {
		r, err := provider.Embed(ctx, EmbedRequest{Texts: cleaned, Model: model})
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		var shapeErr *EmbeddingError
		if errors.As(err, &shapeErr) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("embedding failed, degrading to deterministic vectors",
			"provider", provider.Name(), "error", err)
		return g.pseudoVectors(cleaned), nil
	}
	return resp.Vectors, nil
}

// EmbedOne embeds a single text.
func (g *Gateway) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, nil
	}
	return vectors[0], nil
}

// Summarize produces a summary of content capped at the configured length.
// Short content is returned unchanged, and provider failures fall back to
// a sentence-boundary extract of the original text.
func (g *Gateway) Summarize(ctx context.Context, content string) (string, error) {
	if !g.cfg.Summarization.Enabled {
		return "", nil
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", nil
	}
	maxLen := g.cfg.Summarization.MaxLength
	if len(content) < g.cfg.Summarization.MinContentLength {
		return content, nil
	}

	resp, err := g.Complete(ctx, ChatRequest{
		System: "You summarize documents faithfully and concisely.",
		Prompt: fmt.Sprintf(
			"Summarize the following content in at most %d characters. Respond with the summary only.\n\n%s",
			maxLen, clipRunes(content, 12000)),
		Model:     g.cfg.Summarization.Model,
		MaxTokens: maxLen / 2,
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		g.logger.Warn("summarization failed, using sentence fallback", "error", err)
		return SentenceSummary(content, maxLen), nil
	}

	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return SentenceSummary(content, maxLen), nil
	}
	if len(summary) > maxLen {
		summary = SentenceSummary(summary, maxLen)
	}
	return summary, nil
}

// ExtractKeywords pulls searchable keywords out of content. Provider output
// is deduplicated and cleaned; on failure a local frequency analysis of the
// content supplies the keywords instead.
func (g *Gateway) ExtractKeywords(ctx context.Context, content string) ([]string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	max := g.cfg.Keywords.Max

	resp, err := g.Complete(ctx, ChatRequest{
		System: "You extract searchable keywords from documents.",
		Prompt: fmt.Sprintf(
			"Extract up to %d keywords or short key phrases that best describe the following content. Respond with a JSON array of strings only.\n\nContent:\n%s",
			max, clipRunes(content, 8000)),
		Model:    g.cfg.Keywords.Model,
		JSONOnly: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.logger.Warn("keyword extraction failed, using frequency fallback", "error", err)
		return FrequencyKeywords(content, max), nil
	}

	keywords := CleanKeywords(parseKeywordList(resp.Content), max)
	if len(keywords) == 0 {
		return FrequencyKeywords(content, max), nil
	}
	return keywords, nil
}

// Complete runs a chat request against the resolved provider with retries.
// Failures are reported as *GenerationError; there is no local fallback, so
// callers decide how to degrade.
func (g *Gateway) Complete(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	provider, model, err := g.factory.Resolve(ctx, req.Model, "")
	if err != nil {
		return nil, err
	}
	req.Model = model

	var resp *ChatResponse
	err = g.retry(ctx, func() error {
		r, err := provider.Chat(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, &GenerationError{Provider: provider.Name(), Model: model, Err: err}
	}
	return resp, nil
}

// retry runs op up to three times with exponential backoff, stopping early
// on errors IsRetryable rejects.
func (g *Gateway) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		g.logger.Debug("retrying provider call", "error", err)
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, 2), ctx))
}

func (g *Gateway) cleanInput(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	return clipRunes(text, g.cfg.Embedding.MaxInputChars)
}

func (g *Gateway) pseudoVectors(texts []string) [][]float32 {
	dims := g.Dimensions()
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = PseudoVector(text, dims)
	}
	return vectors
}

func clipRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}

// parseKeywordList decodes a model response into raw keyword strings. It
// accepts a JSON array, a {"keywords": [...]} object, or line-separated
// plain text, tolerating markdown code fences around any of them.
func parseKeywordList(raw string) []string {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err == nil {
		return list
	}

	var wrapped struct {
		Keywords []string `json:"keywords"`
	}
	if err := json.Unmarshal([]byte(raw), &wrapped); err == nil && len(wrapped.Keywords) > 0 {
		return wrapped.Keywords
	}

	return strings.FieldsFunc(raw, func(r rune) bool {
		return r == '\n' || r == ','
	})
}

// CleanKeywords normalizes raw keywords: list markers and quotes stripped,
// single characters dropped, duplicates removed case-insensitively, order
// preserved, at most max entries.
func CleanKeywords(keywords []string, max int) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, kw := range keywords {
		kw = strings.TrimSpace(trimListMarker(strings.TrimSpace(kw)))
		kw = strings.Trim(kw, `"'`)
		kw = strings.TrimSpace(kw)
		if len(kw) < 2 {
			continue
		}
		key := strings.ToLower(kw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, kw)
		if max > 0 && len(out) >= max {
			break
		}
	}
	return out
}

// trimListMarker strips bullet and numbering prefixes like "- ", "* " and "3.".
func trimListMarker(s string) string {
	s = strings.TrimLeft(s, "-*• \t")
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}
