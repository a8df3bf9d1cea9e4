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
	defaultOllamaBaseURL    = "http://localhost:11434"
	defaultOllamaChatModel  = "llama3"
	defaultOllamaEmbedModel = "nomic-embed-text"
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	baseURL    string
	chatModel  string
	httpClient *http.Client
	logger     hclog.Logger
}

// NewOllama creates an Ollama provider. No credentials are needed; the
// endpoint defaults to the local server.
func NewOllama(settings ProviderSettings, logger hclog.Logger) (*OllamaProvider, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	chatModel := settings.Model
	if chatModel == "" {
		chatModel = defaultOllamaChatModel
	}

	return &OllamaProvider{
		baseURL:   baseURL,
		chatModel: chatModel,
		// Local generation can be slow.
		httpClient: &http.Client{Timeout: 300 * time.Second},
		logger:     logger.Named("ollama-client"),
	}, nil
}

// Name returns the provider name.
func (p *OllamaProvider) Name() string {
	return "ollama"
}

// Embed generates embeddings through /api/embed.
func (p *OllamaProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultOllamaEmbedModel
	}

	reqBody := ollamaEmbedRequest{Model: model, Input: req.Texts}
	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/embed", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug("sending embed request to Ollama", "model", model, "texts", len(req.Texts))

	respBody, err := p.send(httpReq)
	if err != nil {
		return nil, err
	}

	var embedResp ollamaEmbedResponse
	if err := json.Unmarshal(respBody, &embedResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(embedResp.Embeddings) != len(req.Texts) {
		return nil, &EmbeddingError{
			Provider: "ollama",
			Model:    model,
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(req.Texts), len(embedResp.Embeddings)),
		}
	}

	dims := 0
	if len(embedResp.Embeddings) > 0 {
		dims = len(embedResp.Embeddings[0])
	}
	return &EmbedResponse{
		Vectors:    embedResp.Embeddings,
		Model:      model,
		Dimensions: dims,
		TokensUsed: embedResp.PromptEvalCount,
	}, nil
}

// Chat runs a single-turn completion through /api/chat.
func (p *OllamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.chatModel
	}

	var messages []ollamaChatMessage
	if req.System != "" {
		messages = append(messages, ollamaChatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, ollamaChatMessage{Role: "user", Content: req.Prompt})

	reqBody := ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   false,
	}
	if req.MaxTokens > 0 || req.Temperature > 0 {
		reqBody.Options = &ollamaOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}
	if req.JSONOnly {
		reqBody.Format = "json"
	}

	reqJSON, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/chat", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug("sending chat request to Ollama", "model", model, "max_tokens", req.MaxTokens)

	respBody, err := p.send(httpReq)
	if err != nil {
		return nil, err
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if chatResp.Message.Content == "" {
		return nil, fmt.Errorf("ollama: empty response")
	}

	return &ChatResponse{
		Content:    chatResp.Message.Content,
		Model:      model,
		TokensUsed: chatResp.PromptEvalCount + chatResp.EvalCount,
	}, nil
}

func (p *OllamaProvider) send(req *http.Request) ([]byte, error) {
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ollamaErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			return nil, &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return nil, &APIError{Provider: "ollama", StatusCode: resp.StatusCode, Message: string(respBody)}
	}
	return respBody, nil
}

// Ollama API types

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Format   string              `json:"format,omitempty"`
	Options  *ollamaOptions      `json:"options,omitempty"`
}

type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatResponse struct {
	Message         ollamaChatMessage `json:"message"`
	PromptEvalCount int               `json:"prompt_eval_count"`
	EvalCount       int               `json:"eval_count"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings      [][]float32 `json:"embeddings"`
	PromptEvalCount int         `json:"prompt_eval_count"`
}

type ollamaErrorResponse struct {
	Error string `json:"error"`
}
