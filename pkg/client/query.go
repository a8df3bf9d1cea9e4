package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/recallhq/recall/pkg/search"
)

// SearchResponse wraps search hits with the query that produced them.
type SearchResponse struct {
	Query        string       `json:"query"`
	Results      []search.Hit `json:"results"`
	TotalResults int          `json:"totalResults"`
}

// ContextChunk is one retrieved piece of context.
type ContextChunk struct {
	Content    string  `json:"content"`
	Source     string  `json:"source"`
	Similarity float64 `json:"similarity"`
	ChunkIndex int     `json:"chunkIndex"`
}

// ContextResult is the assembled context for a query.
type ContextResult struct {
	ContextChunks   []ContextChunk `json:"contextChunks"`
	CombinedContext string         `json:"combinedContext"`
	TotalChunks     int            `json:"totalChunks"`
}

// EnhancedPrompt is a prompt rendered with retrieved context.
type EnhancedPrompt struct {
	Prompt         string `json:"prompt"`
	OriginalPrompt string `json:"originalPrompt"`
	ContextCount   int    `json:"contextCount"`
}

const (
	contextSeparator    = "\n\n---\n\n"
	defaultContextLimit = 5
)

// Search runs a semantic search over stored embeddings. A query the
// gateway cannot embed returns an empty response rather than an error.
func (c *Client) Search(ctx context.Context, query string, opts search.Options) (*SearchResponse, error) {
	svc := c.current()

	hits, err := svc.engine.Search(ctx, query, opts)
	if err != nil {
		if errors.Is(err, search.ErrNoQueryVector) {
			svc.logger.Warn("query produced no embedding, returning empty results", "query", query)
			return &SearchResponse{Query: query}, nil
		}
		return nil, err
	}
	return &SearchResponse{Query: query, Results: hits, TotalResults: len(hits)}, nil
}

// SearchSimilarContent searches by text or by a pre-computed vector.
// Accepts a string or a []float32.
func (c *Client) SearchSimilarContent(ctx context.Context, query interface{}, opts search.Options) (*SearchResponse, error) {
	switch q := query.(type) {
	case string:
		return c.Search(ctx, q, opts)
	case []float32:
		hits, err := c.current().engine.SearchVector(ctx, q, opts)
		if err != nil {
			return nil, err
		}
		return &SearchResponse{Results: hits, TotalResults: len(hits)}, nil
	default:
		return nil, fmt.Errorf("unsupported query type %T, want string or []float32", query)
	}
}

// HybridSearch fuses semantic and lexical results. A nil vector is
// embedded from the query.
func (c *Client) HybridSearch(ctx context.Context, query string, vector []float32, opts search.Options) (*SearchResponse, error) {
	hits, err := c.current().engine.HybridSearch(ctx, query, vector, opts)
	if err != nil {
		return nil, err
	}
	return &SearchResponse{Query: query, Results: hits, TotalResults: len(hits)}, nil
}

// GetContext retrieves the most relevant chunks for a query and joins
// them into one context block. A non-positive limit retrieves five.
func (c *Client) GetContext(ctx context.Context, query string, limit int) (*ContextResult, error) {
	if limit <= 0 {
		limit = defaultContextLimit
	}

	resp, err := c.Search(ctx, query, search.Options{Limit: limit})
	if err != nil {
		return nil, err
	}

	result := &ContextResult{ContextChunks: make([]ContextChunk, 0, len(resp.Results))}
	parts := make([]string, 0, len(resp.Results))
	for _, hit := range resp.Results {
		src := hit.DocumentLocation
		if src == "" {
			src = hit.DocumentTitle
		}
		result.ContextChunks = append(result.ContextChunks, ContextChunk{
			Content:    hit.Content,
			Source:     src,
			Similarity: hit.Similarity,
			ChunkIndex: hit.ChunkIndex,
		})
		parts = append(parts, hit.Content)
	}
	result.CombinedContext = strings.Join(parts, contextSeparator)
	result.TotalChunks = len(result.ContextChunks)
	return result, nil
}

// EnhancePrompt renders the configured prompt template with retrieved
// context. When nothing relevant is stored the original prompt comes
// back unchanged with a zero context count.
func (c *Client) EnhancePrompt(ctx context.Context, prompt string, contextLimit int) (*EnhancedPrompt, error) {
	contextResult, err := c.GetContext(ctx, prompt, contextLimit)
	if err != nil {
		return nil, err
	}
	if contextResult.TotalChunks == 0 {
		return &EnhancedPrompt{Prompt: prompt, OriginalPrompt: prompt}, nil
	}

	rendered := strings.ReplaceAll(c.current().cfg.PromptTemplate, "{{context}}", contextResult.CombinedContext)
	rendered = strings.ReplaceAll(rendered, "{{prompt}}", prompt)

	return &EnhancedPrompt{
		Prompt:         rendered,
		OriginalPrompt: prompt,
		ContextCount:   contextResult.TotalChunks,
	}, nil
}
