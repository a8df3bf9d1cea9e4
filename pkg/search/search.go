// Package search implements retrieval over the embedding store: vector
// similarity with usage-aware re-ranking, lexical full-text search, and
// hybrid fusion of the two. Vector lookups go through a VectorIndex
// (database-backed by default, external engines via adapters) and lexical
// lookups through a KeywordSearcher.
package search

import (
	"github.com/google/uuid"
)

// Search type labels recorded on hits.
const (
	TypeSemantic = "semantic"
	TypeText     = "text"
)

// ProviderType identifies a keyword search backend.
type ProviderType string

const (
	ProviderTypeDatabase    ProviderType = "database"
	ProviderTypeBleve       ProviderType = "bleve"
	ProviderTypeMeilisearch ProviderType = "meilisearch"
	ProviderTypeAlgolia     ProviderType = "algolia"
)

// Hit is one search result. Semantic hits reference an embedding chunk;
// text-only hits from hybrid search carry document fields with a zero
// EmbeddingID.
type Hit struct {
	EmbeddingID uuid.UUID `json:"embeddingId"`
	Content     string    `json:"content"`

	DocumentID       uuid.UUID `json:"documentId"`
	DocumentTitle    string    `json:"documentTitle"`
	DocumentLocation string    `json:"documentLocation"`
	ChunkIndex       int       `json:"chunkIndex"`

	Similarity    float64 `json:"similarity"`
	Distance      float64 `json:"distance"`
	UsageScore    float64 `json:"usageScore"`
	CombinedScore float64 `json:"combinedScore"`

	// SearchTypes records which legs produced this hit ("semantic",
	// "text", or both after hybrid fusion).
	SearchTypes []string `json:"searchTypes"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Options control a single search. Zero values fall back to the engine's
// configured defaults; pointer fields distinguish "unset" from an explicit
// zero, so a Threshold of 0.0 really does admit every candidate.
type Options struct {
	Limit     int
	Threshold *float64
	Filters   Filters

	// UsageRanking overrides the engine default for this call.
	UsageRanking *bool

	// Hybrid fusion weights. Zero means the configured default.
	SemanticWeight float64
	TextWeight     float64
}

// Filters restrict the candidate set before ranking.
type Filters struct {
	DocumentType   string
	Classification string
	Keywords       []string
	Tags           []string
	EmbeddingModel string
	DocumentID     uuid.UUID
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.DocumentType == "" &&
		f.Classification == "" &&
		len(f.Keywords) == 0 &&
		len(f.Tags) == 0 &&
		f.EmbeddingModel == "" &&
		f.DocumentID == uuid.Nil
}
