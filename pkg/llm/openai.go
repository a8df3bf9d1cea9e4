package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

const (
	defaultOpenAIChatModel  = "gpt-4o-mini"
	defaultOpenAIEmbedModel = "text-embedding-3-small"
)

// OpenAIProvider talks to the OpenAI API or any OpenAI-compatible endpoint
// through the official SDK. The Azure and OpenRouter constructors reuse it
// with different client options.
type OpenAIProvider struct {
	client     openai.Client
	name       string
	chatModel  string
	embedModel string
	logger     hclog.Logger
}

// NewOpenAI creates a provider for the OpenAI API. BaseURL overrides the
// endpoint for OpenAI-compatible services.
func NewOpenAI(settings ProviderSettings, logger hclog.Logger) (*OpenAIProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("openai: api key missing: %w", ErrNotConfigured)
	}

	opts := []option.RequestOption{option.WithAPIKey(settings.APIKey)}
	if settings.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(settings.BaseURL))
	}
	return newOpenAICompatible("openai", settings, logger, opts...), nil
}

func newOpenAICompatible(name string, settings ProviderSettings, logger hclog.Logger, opts ...option.RequestOption) *OpenAIProvider {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	// The gateway owns retry policy, so the SDK must not retry on its own.
	opts = append(opts, option.WithMaxRetries(0))

	chatModel := settings.Model
	if chatModel == "" {
		chatModel = defaultOpenAIChatModel
	}

	return &OpenAIProvider{
		client:     openai.NewClient(opts...),
		name:       name,
		chatModel:  chatModel,
		embedModel: defaultOpenAIEmbedModel,
		logger:     logger.Named(name + "-client"),
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Embed generates embeddings for a batch of texts.
func (p *OpenAIProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	model := req.Model
	if model == "" {
		model = p.embedModel
	}

	p.logger.Debug("requesting embeddings", "model", model, "texts", len(req.Texts))

	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: req.Texts},
	})
	if err != nil {
		return nil, p.wrapError(err)
	}

	vectors := make([][]float32, len(req.Texts))
	for _, item := range resp.Data {
		idx := int(item.Index)
		if idx < 0 || idx >= len(vectors) {
			return nil, &EmbeddingError{
				Provider: p.name,
				Model:    model,
				Err:      fmt.Errorf("embedding index %d out of range for %d inputs", idx, len(req.Texts)),
			}
		}
		vec := make([]float32, len(item.Embedding))
		for i, v := range item.Embedding {
			vec[i] = float32(v)
		}
		vectors[idx] = vec
	}
	for i, vec := range vectors {
		if vec == nil {
			return nil, &EmbeddingError{
				Provider: p.name,
				Model:    model,
				Err:      fmt.Errorf("no embedding returned for input %d", i),
			}
		}
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	return &EmbedResponse{
		Vectors:    vectors,
		Model:      model,
		Dimensions: dims,
		TokensUsed: int(resp.Usage.TotalTokens),
	}, nil
}

// Chat runs a single-turn completion.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.chatModel
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.JSONOnly {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	p.logger.Debug("requesting completion", "model", model, "max_tokens", req.MaxTokens)

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%s: no choices in response", p.name)
	}

	return &ChatResponse{
		Content:    completion.Choices[0].Message.Content,
		Model:      completion.Model,
		TokensUsed: int(completion.Usage.TotalTokens),
	}, nil
}

// wrapError converts SDK errors into APIError so the gateway can classify
// them for retry.
func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &APIError{Provider: p.name, StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	}
	return err
}
