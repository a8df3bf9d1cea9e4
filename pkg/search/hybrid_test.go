package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/pkg/models"
)

// mockKeywordSearcher returns canned lexical results.
type mockKeywordSearcher struct {
	results []KeywordHit
	err     error
	indexed []uuid.UUID
	deleted []uuid.UUID
}

func (m *mockKeywordSearcher) Search(ctx context.Context, query string, limit int, filters Filters) ([]KeywordHit, error) {
	return m.results, m.err
}

func (m *mockKeywordSearcher) IndexDocument(ctx context.Context, doc *models.Document) error {
	m.indexed = append(m.indexed, doc.ID)
	return nil
}

func (m *mockKeywordSearcher) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockKeywordSearcher) Name() string { return "mock" }

func TestFuse(t *testing.T) {
	docA := uuid.New()
	docB := uuid.New()

	t.Run("weighted scores from both legs", func(t *testing.T) {
		semantic := []Hit{
			{DocumentID: docA, DocumentTitle: "A", CombinedScore: 0.9, SearchTypes: []string{TypeSemantic}},
		}
		text := []KeywordHit{
			{DocumentID: docB, Title: "B", Score: 1.0},
		}

		fused := fuse(semantic, text, 0.7, 0.3)
		require.Len(t, fused, 2)

		// 0.9 * 0.7 = 0.63 beats 1.0 * 0.3 = 0.3.
		assert.Equal(t, docA, fused[0].DocumentID)
		assert.InDelta(t, 0.63, fused[0].CombinedScore, 0.0001)
		assert.Equal(t, []string{TypeSemantic}, fused[0].SearchTypes)

		assert.Equal(t, docB, fused[1].DocumentID)
		assert.InDelta(t, 0.3, fused[1].CombinedScore, 0.0001)
		assert.Equal(t, []string{TypeText}, fused[1].SearchTypes)
	})

	t.Run("document in both legs merges", func(t *testing.T) {
		semantic := []Hit{
			{DocumentID: docA, DocumentTitle: "A", Similarity: 0.8, CombinedScore: 0.8},
		}
		text := []KeywordHit{
			{DocumentID: docA, Title: "A", Score: 0.5},
		}

		fused := fuse(semantic, text, 0.7, 0.3)
		require.Len(t, fused, 1)

		got := fused[0]
		assert.InDelta(t, 0.8*0.7+0.5*0.3, got.CombinedScore, 0.0001)
		assert.Equal(t, []string{TypeSemantic, TypeText}, got.SearchTypes)
		// Semantic fields survive the merge.
		assert.InDelta(t, 0.8, got.Similarity, 0.0001)
		assert.Equal(t, "A", got.DocumentTitle)
	})

	t.Run("best chunk per document wins", func(t *testing.T) {
		semantic := []Hit{
			{DocumentID: docA, ChunkIndex: 0, CombinedScore: 0.75},
			{DocumentID: docA, ChunkIndex: 3, CombinedScore: 0.95},
			{DocumentID: docA, ChunkIndex: 1, CombinedScore: 0.85},
		}

		fused := fuse(semantic, nil, 0.7, 0.3)
		require.Len(t, fused, 1)
		assert.Equal(t, 3, fused[0].ChunkIndex)
		assert.InDelta(t, 0.95*0.7, fused[0].CombinedScore, 0.0001)
	})

	t.Run("text-only hits carry document fields", func(t *testing.T) {
		text := []KeywordHit{
			{DocumentID: docB, Title: "Budget", Location: "/docs/budget.pdf", Snippet: "Q3 numbers", Score: 0.9},
		}

		fused := fuse(nil, text, 0.7, 0.3)
		require.Len(t, fused, 1)

		got := fused[0]
		assert.Equal(t, uuid.Nil, got.EmbeddingID)
		assert.Equal(t, "Budget", got.DocumentTitle)
		assert.Equal(t, "/docs/budget.pdf", got.DocumentLocation)
		assert.Equal(t, "Q3 numbers", got.Content)
		assert.Zero(t, got.Similarity)
	})

	t.Run("empty legs", func(t *testing.T) {
		assert.Empty(t, fuse(nil, nil, 0.7, 0.3))
	})
}

func TestEngine_HybridSearch(t *testing.T) {
	ctx := context.Background()

	t.Run("combines semantic and text legs", func(t *testing.T) {
		db := setupEngineTest(t)

		semDoc, _ := seedChunk(t, db, "vector-match.txt", models.TypeText, nil, vecExact)
		lexDoc := &models.Document{
			Location:     "/corpus/lexical-match.txt",
			Title:        "lexical match",
			DocumentType: models.TypeText,
			Status:       models.StatusProcessed,
		}
		require.NoError(t, db.Create(lexDoc).Error)

		keywords := &mockKeywordSearcher{results: []KeywordHit{
			{DocumentID: lexDoc.ID, Title: lexDoc.Title, Location: lexDoc.Location, Score: 1.0},
		}}

		engine, err := NewEngine(EngineConfig{
			DB:       db,
			Embedder: &stubEmbedder{vector: queryVector},
			Keywords: keywords,
		})
		require.NoError(t, err)

		hits, err := engine.HybridSearch(ctx, "lexical match", nil, Options{Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 2)

		// Semantic similarity 1.0 weighted 0.7 beats text 1.0 weighted 0.3.
		assert.Equal(t, semDoc.ID, hits[0].DocumentID)
		assert.Equal(t, []string{TypeSemantic}, hits[0].SearchTypes)
		assert.InDelta(t, 0.7, hits[0].CombinedScore, 0.001)

		assert.Equal(t, lexDoc.ID, hits[1].DocumentID)
		assert.Equal(t, []string{TypeText}, hits[1].SearchTypes)
		assert.InDelta(t, 0.3, hits[1].CombinedScore, 0.001)
	})

	t.Run("document found by both legs", func(t *testing.T) {
		db := setupEngineTest(t)

		doc, _ := seedChunk(t, db, "both.txt", models.TypeText, nil, vecExact)
		keywords := &mockKeywordSearcher{results: []KeywordHit{
			{DocumentID: doc.ID, Title: doc.Title, Score: 1.0},
		}}

		engine, err := NewEngine(EngineConfig{
			DB:       db,
			Embedder: &stubEmbedder{vector: queryVector},
			Keywords: keywords,
		})
		require.NoError(t, err)

		hits, err := engine.HybridSearch(ctx, "both", nil, Options{Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)

		assert.Equal(t, []string{TypeSemantic, TypeText}, hits[0].SearchTypes)
		assert.InDelta(t, 1.0*0.7+1.0*0.3, hits[0].CombinedScore, 0.001)
	})

	t.Run("embedding failure degrades to text only", func(t *testing.T) {
		db := setupEngineTest(t)

		docID := uuid.New()
		keywords := &mockKeywordSearcher{results: []KeywordHit{
			{DocumentID: docID, Title: "fallback", Score: 0.8},
		}}

		engine, err := NewEngine(EngineConfig{
			DB:       db,
			Embedder: &stubEmbedder{err: errors.New("provider down")},
			Keywords: keywords,
		})
		require.NoError(t, err)

		hits, err := engine.HybridSearch(ctx, "fallback", nil, Options{Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, docID, hits[0].DocumentID)
		assert.Equal(t, []string{TypeText}, hits[0].SearchTypes)
	})

	t.Run("text failure degrades to semantic only", func(t *testing.T) {
		db := setupEngineTest(t)

		doc, _ := seedChunk(t, db, "semantic-only.txt", models.TypeText, nil, vecExact)
		keywords := &mockKeywordSearcher{err: errors.New("backend down")}

		engine, err := NewEngine(EngineConfig{
			DB:       db,
			Embedder: &stubEmbedder{vector: queryVector},
			Keywords: keywords,
		})
		require.NoError(t, err)

		hits, err := engine.HybridSearch(ctx, "anything", nil, Options{Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, doc.ID, hits[0].DocumentID)
	})

	t.Run("both legs failing is an error", func(t *testing.T) {
		db := setupEngineTest(t)

		seedChunk(t, db, "unreachable.txt", models.TypeText, nil, vecExact)
		engine, err := NewEngine(EngineConfig{
			DB:       db,
			Embedder: &stubEmbedder{vector: queryVector},
			Keywords: &mockKeywordSearcher{err: errors.New("backend down")},
			Index:    &failingIndex{},
		})
		require.NoError(t, err)

		hits, err := engine.HybridSearch(ctx, "anything", nil, Options{Limit: 10})
		require.Error(t, err)
		assert.Nil(t, hits)
		assert.Contains(t, err.Error(), "both search legs failed")
	})

	t.Run("empty query without vector", func(t *testing.T) {
		db := setupEngineTest(t)
		engine := newTestEngine(t, db, &stubEmbedder{vector: queryVector})

		hits, err := engine.HybridSearch(ctx, "", nil, Options{})
		require.Error(t, err)
		assert.Nil(t, hits)
		assert.True(t, errors.Is(err, ErrInvalidQuery))
	})

	t.Run("pre-computed vector skips embedding", func(t *testing.T) {
		db := setupEngineTest(t)

		seedChunk(t, db, "direct.txt", models.TypeText, nil, vecExact)
		embedder := &stubEmbedder{vector: queryVector}
		engine := newTestEngine(t, db, embedder)

		hits, err := engine.HybridSearch(ctx, "", queryVector, Options{Limit: 10})
		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, 0, embedder.calls)
	})

	t.Run("semantic hits are counted as returned", func(t *testing.T) {
		db := setupEngineTest(t)

		_, emb := seedChunk(t, db, "counted.txt", models.TypeText, nil, vecExact)
		engine := newTestEngine(t, db, &stubEmbedder{vector: queryVector})

		_, err := engine.HybridSearch(ctx, "counted", nil, Options{Limit: 10})
		require.NoError(t, err)

		var reloaded models.Embedding
		require.NoError(t, db.First(&reloaded, "id = ?", emb.ID).Error)
		assert.Equal(t, 1, reloaded.UsageCount)
	})
}

// failingIndex always errors, simulating an unreachable vector backend.
type failingIndex struct{}

func (f *failingIndex) Search(ctx context.Context, vector []float32, q VectorQuery) ([]Candidate, error) {
	return nil, &Error{Op: "Search", Err: ErrBackendUnavailable}
}

func (f *failingIndex) Index(ctx context.Context, entries []Entry) error {
	return &Error{Op: "Index", Err: ErrBackendUnavailable}
}

func (f *failingIndex) Remove(ctx context.Context, ids []uuid.UUID) error {
	return &Error{Op: "Remove", Err: ErrBackendUnavailable}
}

func (f *failingIndex) Name() string { return "failing" }
