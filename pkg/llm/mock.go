package llm

import (
	"context"
	"hash/fnv"
	"sync"
)

// Mock is a deterministic in-process provider for tests. It records calls
// and generates predictable responses without touching any external API.
type Mock struct {
	mu             sync.Mutex
	name           string
	dimensions     int
	chatContent    string
	embedErr       error
	chatErr        error
	embedCalls     int
	chatCalls      int
	lastEmbedTexts []string
	lastChatPrompt string
}

// NewMock creates a mock provider.
func NewMock() *Mock {
	return &Mock{
		name:        "mock",
		dimensions:  8,
		chatContent: "This is a mock response.",
	}
}

// WithName sets a custom provider name.
func (m *Mock) WithName(name string) *Mock {
	m.name = name
	return m
}

// WithDimensions sets the embedding dimensionality.
func (m *Mock) WithDimensions(dims int) *Mock {
	m.dimensions = dims
	return m
}

// WithChatContent sets the canned chat response.
func (m *Mock) WithChatContent(content string) *Mock {
	m.chatContent = content
	return m
}

// WithEmbedError makes Embed fail with err.
func (m *Mock) WithEmbedError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.embedErr = err
	return m
}

// WithChatError makes Chat fail with err.
func (m *Mock) WithChatError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatErr = err
	return m
}

// Name returns the provider name.
func (m *Mock) Name() string {
	return m.name
}

// Embed returns one deterministic vector per text.
func (m *Mock) Embed(ctx context.Context, req EmbedRequest) (*EmbedResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.embedCalls++
	m.lastEmbedTexts = append([]string(nil), req.Texts...)
	err := m.embedErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(req.Texts))
	for i, text := range req.Texts {
		vectors[i] = MockVector(text, m.dimensions)
	}
	return &EmbedResponse{
		Vectors:    vectors,
		Model:      "mock-embed-v1",
		Dimensions: m.dimensions,
		TokensUsed: len(req.Texts) * 10,
	}, nil
}

// Chat returns the canned response.
func (m *Mock) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.chatCalls++
	m.lastChatPrompt = req.Prompt
	err := m.chatErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	return &ChatResponse{
		Content:    m.chatContent,
		Model:      "mock-v1",
		TokensUsed: len(req.Prompt) / 4,
	}, nil
}

// EmbedCalls returns how many times Embed was invoked.
func (m *Mock) EmbedCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.embedCalls
}

// ChatCalls returns how many times Chat was invoked.
func (m *Mock) ChatCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.chatCalls
}

// LastEmbedTexts returns the texts from the most recent Embed call.
func (m *Mock) LastEmbedTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastEmbedTexts
}

// LastChatPrompt returns the prompt from the most recent Chat call.
func (m *Mock) LastChatPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastChatPrompt
}

// MockVector generates the deterministic vector the mock provider would
// return for text, so tests can predict embeddings.
func MockVector(text string, dims int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, dims)
	for i := range vec {
		vec[i] = float32((seed+uint32(i))%100) / 100.0
	}
	return vec
}
