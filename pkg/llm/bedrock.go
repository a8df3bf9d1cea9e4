package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/hashicorp/go-hclog"
)

const (
	defaultBedrockRegion     = "us-east-1"
	defaultBedrockChatModel  = "us.anthropic.claude-3-7-sonnet-20250219-v1:0"
	defaultBedrockEmbedModel = "amazon.titan-embed-text-v2:0"
)

// BedrockAPI defines the Bedrock runtime operations this provider uses.
// This allows for testing with mocks.
type BedrockAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// BedrockProvider talks to AWS Bedrock: the Converse API for chat and
// Titan InvokeModel for embeddings. Credentials come from the standard
// AWS chain.
type BedrockProvider struct {
	client    BedrockAPI
	chatModel string
	logger    hclog.Logger
}

// NewBedrock creates a Bedrock provider for the configured region.
func NewBedrock(ctx context.Context, settings ProviderSettings, logger hclog.Logger) (*BedrockProvider, error) {
	region := settings.Region
	if region == "" {
		region = defaultBedrockRegion
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewBedrockWithClient(bedrockruntime.NewFromConfig(awsCfg), settings, logger), nil
}

// NewBedrockWithClient creates a Bedrock provider around an existing
// runtime client or a mock.
func NewBedrockWithClient(client BedrockAPI, settings ProviderSettings, logger hclog.Logger) *BedrockProvider {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	chatModel := settings.Model
	if chatModel == "" {
		chatModel = defaultBedrockChatModel
	}

	return &BedrockProvider{
		client:    client,
		chatModel: chatModel,
		logger:    logger.Named("bedrock-client"),
	}
}

// Name returns the provider name.
func (p *BedrockProvider) Name() string {
	return "bedrock"
}

// Embed generates embeddings with a Titan embedding model. Titan accepts
// one text per invocation, so batches become sequential calls.
func (p *BedrockProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultBedrockEmbedModel
	}

	vectors := make([][]float32, 0, len(req.Texts))
	tokens := 0
	for i, text := range req.Texts {
		body, err := json.Marshal(titanEmbedRequest{InputText: text})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		out, err := p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     aws.String(model),
			ContentType: aws.String("application/json"),
			Body:        body,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to invoke Titan model: %w", err)
		}

		var embedResp titanEmbedResponse
		if err := json.Unmarshal(out.Body, &embedResp); err != nil {
			return nil, &EmbeddingError{
				Provider: "bedrock",
				Model:    model,
				Err:      fmt.Errorf("unexpected response shape: %w", err),
			}
		}
		if len(embedResp.Embedding) == 0 {
			return nil, &EmbeddingError{
				Provider: "bedrock",
				Model:    model,
				Err:      fmt.Errorf("no embedding returned for input %d", i),
			}
		}

		vectors = append(vectors, embedResp.Embedding)
		tokens += embedResp.InputTextTokenCount
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	return &EmbedResponse{
		Vectors:    vectors,
		Model:      model,
		Dimensions: dims,
		TokensUsed: tokens,
	}, nil
}

// Chat runs a single-turn completion through the Converse API.
func (p *BedrockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.chatModel
	}

	input := &bedrockruntime.ConverseInput{
		ModelId: aws.String(model),
		Messages: []types.Message{
			{
				Role: types.ConversationRoleUser,
				Content: []types.ContentBlock{
					&types.ContentBlockMemberText{Value: req.Prompt},
				},
			},
		},
	}
	if req.System != "" {
		input.System = []types.SystemContentBlock{
			&types.SystemContentBlockMemberText{Value: req.System},
		}
	}
	inferenceCfg := &types.InferenceConfiguration{}
	if req.MaxTokens > 0 {
		inferenceCfg.MaxTokens = aws.Int32(int32(req.MaxTokens))
	}
	if req.Temperature > 0 {
		inferenceCfg.Temperature = aws.Float32(float32(req.Temperature))
	}
	input.InferenceConfig = inferenceCfg

	p.logger.Debug("sending request to Bedrock", "model", model, "max_tokens", req.MaxTokens)

	resp, err := p.client.Converse(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to call Bedrock Converse API: %w", err)
	}
	if resp.Output == nil {
		return nil, fmt.Errorf("bedrock: no output in response")
	}

	message, ok := resp.Output.(*types.ConverseOutputMemberMessage)
	if !ok || len(message.Value.Content) == 0 {
		return nil, fmt.Errorf("bedrock: no message content in response")
	}

	var content string
	for _, block := range message.Value.Content {
		if textBlock, ok := block.(*types.ContentBlockMemberText); ok {
			content = textBlock.Value
			break
		}
	}
	if content == "" {
		return nil, fmt.Errorf("bedrock: empty response")
	}

	tokens := 0
	if resp.Usage != nil && resp.Usage.TotalTokens != nil {
		tokens = int(*resp.Usage.TotalTokens)
	}
	return &ChatResponse{
		Content:    content,
		Model:      model,
		TokensUsed: tokens,
	}, nil
}

// Titan embedding API types

type titanEmbedRequest struct {
	InputText string `json:"inputText"`
}

type titanEmbedResponse struct {
	Embedding           []float32 `json:"embedding"`
	InputTextTokenCount int       `json:"inputTextTokenCount"`
}
