package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllama_Chat(t *testing.T) {
	// Create a mock HTTP server
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/chat", r.URL.Path)

		var reqBody ollamaChatRequest
		err := json.NewDecoder(r.Body).Decode(&reqBody)
		require.NoError(t, err)

		assert.Equal(t, "llama3", reqBody.Model)
		assert.False(t, reqBody.Stream)
		require.Len(t, reqBody.Messages, 2)
		assert.Equal(t, "system", reqBody.Messages[0].Role)
		assert.Equal(t, "user", reqBody.Messages[1].Role)
		assert.Equal(t, "Summarize this.", reqBody.Messages[1].Content)

		resp := ollamaChatResponse{
			Message:         ollamaChatMessage{Role: "assistant", Content: "A short summary."},
			PromptEvalCount: 12,
			EvalCount:       8,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer mockServer.Close()

	provider, err := NewOllama(ProviderSettings{BaseURL: mockServer.URL}, hclog.NewNullLogger())
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), ChatRequest{
		System: "You are terse.",
		Prompt: "Summarize this.",
	})
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", resp.Content)
	assert.Equal(t, 20, resp.TokensUsed)
}

func TestOllama_Chat_JSONMode(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var reqBody ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		assert.Equal(t, "json", reqBody.Format)
		require.NotNil(t, reqBody.Options)
		assert.Equal(t, 0.2, reqBody.Options.Temperature)
		assert.Equal(t, 100, reqBody.Options.NumPredict)

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaChatMessage{Role: "assistant", Content: `{"keywords":["go"]}`},
		})
	}))
	defer mockServer.Close()

	provider, err := NewOllama(ProviderSettings{BaseURL: mockServer.URL}, nil)
	require.NoError(t, err)

	resp, err := provider.Chat(context.Background(), ChatRequest{
		Prompt:      "Extract keywords.",
		MaxTokens:   100,
		Temperature: 0.2,
		JSONOnly:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"keywords":["go"]}`, resp.Content)
}

func TestOllama_Chat_APIError(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(ollamaErrorResponse{Error: "model not found"})
	}))
	defer mockServer.Close()

	provider, err := NewOllama(ProviderSettings{BaseURL: mockServer.URL}, nil)
	require.NoError(t, err)

	_, err = provider.Chat(context.Background(), ChatRequest{Prompt: "hi"})
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "ollama", apiErr.Provider)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Contains(t, err.Error(), "model not found")
}

func TestOllama_Chat_EmptyResponse(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaChatResponse{
			Message: ollamaChatMessage{Role: "assistant", Content: ""},
		})
	}))
	defer mockServer.Close()

	provider, err := NewOllama(ProviderSettings{BaseURL: mockServer.URL}, nil)
	require.NoError(t, err)

	_, err = provider.Chat(context.Background(), ChatRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestOllama_Embed(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/embed", r.URL.Path)

		var reqBody ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&reqBody))

		assert.Equal(t, "nomic-embed-text", reqBody.Model)
		assert.Equal(t, []string{"first text", "second text"}, reqBody.Input)

		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings:      [][]float32{{0.1, 0.2, 0.3}, {0.4, 0.5, 0.6}},
			PromptEvalCount: 7,
		})
	}))
	defer mockServer.Close()

	provider, err := NewOllama(ProviderSettings{BaseURL: mockServer.URL}, nil)
	require.NoError(t, err)

	resp, err := provider.Embed(context.Background(), EmbedRequest{
		Texts: []string{"first text", "second text"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, resp.Vectors[0])
	assert.Equal(t, 3, resp.Dimensions)
	assert.Equal(t, 7, resp.TokensUsed)
}

func TestOllama_Embed_CountMismatch(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaEmbedResponse{
			Embeddings: [][]float32{{0.1, 0.2}},
		})
	}))
	defer mockServer.Close()

	provider, err := NewOllama(ProviderSettings{BaseURL: mockServer.URL}, nil)
	require.NoError(t, err)

	_, err = provider.Embed(context.Background(), EmbedRequest{
		Texts: []string{"one", "two"},
	})
	require.Error(t, err)

	var embErr *EmbeddingError
	require.True(t, errors.As(err, &embErr))
	assert.Equal(t, "ollama", embErr.Provider)
	assert.Contains(t, err.Error(), "expected 2 embeddings, got 1")
}

func TestNewOllama_Defaults(t *testing.T) {
	provider, err := NewOllama(ProviderSettings{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "ollama", provider.Name())
	assert.Equal(t, "http://localhost:11434", provider.baseURL)
	assert.Equal(t, "llama3", provider.chatModel)
	assert.Equal(t, 300*time.Second, provider.httpClient.Timeout)
}
