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
	defaultGoogleBaseURL    = "https://generativelanguage.googleapis.com/v1beta"
	defaultGoogleChatModel  = "gemini-1.5-flash"
	defaultGoogleEmbedModel = "text-embedding-004"
)

// GoogleProvider talks to the Gemini API (generateContent and
// batchEmbedContents endpoints).
type GoogleProvider struct {
	apiKey     string
	baseURL    string
	chatModel  string
	httpClient *http.Client
	logger     hclog.Logger
}

// NewGoogle creates a Gemini provider.
func NewGoogle(settings ProviderSettings, logger hclog.Logger) (*GoogleProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("google: api key missing: %w", ErrNotConfigured)
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	baseURL := settings.BaseURL
	if baseURL == "" {
		baseURL = defaultGoogleBaseURL
	}
	chatModel := settings.Model
	if chatModel == "" {
		chatModel = defaultGoogleChatModel
	}

	return &GoogleProvider{
		apiKey:     settings.APIKey,
		baseURL:    baseURL,
		chatModel:  chatModel,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger.Named("google-client"),
	}, nil
}

// Name returns the provider name.
func (p *GoogleProvider) Name() string {
	return "google"
}

// Embed generates embeddings through batchEmbedContents.
func (p *GoogleProvider) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	model := req.Model
	if model == "" {
		model = defaultGoogleEmbedModel
	}

	reqBody := googleBatchEmbedRequest{}
	for _, text := range req.Texts {
		reqBody.Requests = append(reqBody.Requests, googleEmbedRequest{
			Model:   "models/" + model,
			Content: googleContent{Parts: []googlePart{{Text: text}}},
		})
	}

	var embedResp googleBatchEmbedResponse
	url := fmt.Sprintf("%s/models/%s:batchEmbedContents", p.baseURL, model)
	if err := p.post(ctx, url, reqBody, &embedResp); err != nil {
		return nil, err
	}

	if len(embedResp.Embeddings) != len(req.Texts) {
		return nil, &EmbeddingError{
			Provider: "google",
			Model:    model,
			Err:      fmt.Errorf("expected %d embeddings, got %d", len(req.Texts), len(embedResp.Embeddings)),
		}
	}

	vectors := make([][]float32, len(embedResp.Embeddings))
	for i, e := range embedResp.Embeddings {
		vectors[i] = e.Values
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	return &EmbedResponse{Vectors: vectors, Model: model, Dimensions: dims}, nil
}

// Chat runs a single-turn completion through generateContent.
func (p *GoogleProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.chatModel
	}

	reqBody := googleGenerateRequest{
		Contents: []googleContent{
			{Parts: []googlePart{{Text: req.Prompt}}},
		},
	}
	if req.System != "" {
		reqBody.SystemInstruction = &googleContent{Parts: []googlePart{{Text: req.System}}}
	}
	cfg := &googleGenerationConfig{}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		cfg.Temperature = &req.Temperature
	}
	if req.JSONOnly {
		cfg.ResponseMimeType = "application/json"
	}
	reqBody.GenerationConfig = cfg

	p.logger.Debug("sending request to Gemini", "model", model, "max_tokens", req.MaxTokens)

	var genResp googleGenerateResponse
	url := fmt.Sprintf("%s/models/%s:generateContent", p.baseURL, model)
	if err := p.post(ctx, url, reqBody, &genResp); err != nil {
		return nil, err
	}

	if len(genResp.Candidates) == 0 || len(genResp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("google: no candidates in response")
	}

	return &ChatResponse{
		Content:    genResp.Candidates[0].Content.Parts[0].Text,
		Model:      model,
		TokensUsed: genResp.UsageMetadata.TotalTokenCount,
	}, nil
}

func (p *GoogleProvider) post(ctx context.Context, url string, body, out interface{}) error {
	reqJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqJSON))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp googleErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return &APIError{Provider: "google", StatusCode: resp.StatusCode, Message: errResp.Error.Message}
		}
		return &APIError{Provider: "google", StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// Gemini API types

type googleContent struct {
	Parts []googlePart `json:"parts"`
}

type googlePart struct {
	Text string `json:"text"`
}

type googleGenerationConfig struct {
	MaxOutputTokens  int      `json:"maxOutputTokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
}

type googleGenerateRequest struct {
	Contents          []googleContent         `json:"contents"`
	SystemInstruction *googleContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *googleGenerationConfig `json:"generationConfig,omitempty"`
}

type googleGenerateResponse struct {
	Candidates []struct {
		Content googleContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
}

type googleEmbedRequest struct {
	Model   string        `json:"model"`
	Content googleContent `json:"content"`
}

type googleBatchEmbedRequest struct {
	Requests []googleEmbedRequest `json:"requests"`
}

type googleBatchEmbedResponse struct {
	Embeddings []struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

type googleErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
