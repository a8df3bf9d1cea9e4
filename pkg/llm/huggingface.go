package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
)

const (
	defaultHuggingFaceBaseURL    = "https://router.huggingface.co"
	defaultHuggingFaceChatModel  = "meta-llama/Llama-3.1-8B-Instruct"
	defaultHuggingFaceEmbedModel = "sentence-transformers/all-MiniLM-L6-v2"
)

// HuggingFaceProvider talks to the Hugging Face inference router: the
// feature-extraction pipeline for embeddings and the OpenAI-compatible
// chat completions endpoint for text.
type HuggingFaceProvider struct {
	apiKey     string
	baseURL    string
	chatModel  string
	httpClient *http.Client
	logger     hclog.Logger
}

// NewHuggingFace creates a Hugging Face provider.
func NewHuggingFace(settings ProviderSettings, logger hclog.Logger) (*HuggingFaceProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("huggingface: api key missing: %w", ErrNotConfigured)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultHuggingFaceBaseURL
	}
	chatModel := settings.Model
	if chatModel == "" {
		chatModel = defaultHuggingFaceChatModel
	}

	return &HuggingFaceProvider{
		apiKey:     settings.APIKey,
		baseURL:    baseURL,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger.Named("huggingface-client"),
	}, nil
}

// Name returns the provider name.
func (p *HuggingFaceProvider) Name() string {
	return "huggingface"
}

// Embed generates embeddings through the feature-extraction pipeline.
func (p *HuggingFaceProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultHuggingFaceEmbedModel
	}

	reqBody := huggingFaceEmbedRequest{Inputs: req.Texts}
	url := fmt.Sprintf("%s/hf-inference/models/%s/pipeline/feature-extraction", p.baseURL, model)

	p.logger.Debug("sending embed request to Hugging Face", "model", model, "texts", len(req.Texts))

	respBody, err := p.post(ctx, url, reqBody)
	if err != nil {
		return nil, err
	}

	var vectors [][]float32
	if err := json.Unmarshal(respBody, &vectors); err != nil {
		return nil, &EmbeddingError{
			Provider: "huggingface",
			Model:    model,
			Err:      fmt.Errorf("unexpected response shape: %w", err),
		}
	}
	if len(vectors) != len(req.Texts) {
		return nil, &EmbeddingError{
			Provider: "huggingface",
			Model:    model,
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(req.Texts), len(vectors)),
		}
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	return &EmbedResponse{Vectors: vectors, Model: model, Dimensions: dims}, nil
}

// Chat runs a single-turn completion through the chat completions endpoint.
func (p *HuggingFaceProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.chatModel
	}

	var messages []huggingFaceChatMessage
	if req.System != "" {
		messages = append(messages, huggingFaceChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, huggingFaceChatMessage{Role: "user", Content: req.Prompt})

	reqBody := huggingFaceChatRequest{
		Model:    model,
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		reqBody.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		reqBody.Temperature = &req.Temperature
	}

	p.logger.Debug("sending chat request to Hugging Face", "model", model, "max_tokens", req.MaxTokens)

	respBody, err := p.post(ctx, p.baseURL+"/v1/chat/completions", reqBody)
	if err != nil {
		return nil, err
	}

	var chatResp huggingFaceChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("huggingface: no choices in response")
	}

	return &ChatResponse{
		Content:    chatResp.Choices[0].Message.Content,
		Model:      model,
		TokensUsed: chatResp.Usage.TotalTokens,
	}, nil
}

func (p *HuggingFaceProvider) post(ctx context.Context, url string, body interface{}) ([]byte, error) {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp huggingFaceErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, &APIError{Provider: "huggingface", StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &APIError{Provider: "huggingface", StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// Hugging Face API types

type huggingFaceEmbedRequest struct {
	Inputs []string `json:"inputs"`
}

type huggingFaceChatRequest struct {
	Model       string                   `json:"model"`
	Messages    []huggingFaceChatMessage `json:"messages"`
	MaxTokens   int                      `json:"max_tokens,omitempty"`
	Temperature *float64                 `json:"temperature,omitempty"`
}

type huggingFaceChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type huggingFaceChatResponse struct {
	Choices []struct {
		Message huggingFaceChatMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type huggingFaceErrorResponse struct {
	Error string `json:"error"`
}
