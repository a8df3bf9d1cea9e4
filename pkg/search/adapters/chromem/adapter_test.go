package chromem

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	recallsearch "github.com/recallhq/recall/pkg/search"
)

var (
	queryVector = []float32{1, 0, 0, 0}
	vecExact    = []float32{1, 0, 0, 0}
	vecClose    = []float32{0.9, 0.43589, 0, 0}
	vecFar      = []float32{0, 1, 0, 0}
)

func newMemAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter, err := NewAdapter(nil)
	require.NoError(t, err)
	return adapter
}

func entry(docID uuid.UUID, model string, chunk int, vector []float32) recallsearch.Entry {
	return recallsearch.Entry{
		EmbeddingID: uuid.New(),
		DocumentID:  docID,
		Content:     "chunk text",
		Vector:      vector,
		Model:       model,
		ChunkIndex:  chunk,
	}
}

func TestNewAdapter(t *testing.T) {
	t.Run("in-memory", func(t *testing.T) {
		adapter := newMemAdapter(t)
		assert.Equal(t, "chromem", adapter.Name())
	})

	t.Run("implements vector index", func(t *testing.T) {
		var _ recallsearch.VectorIndex = (*Adapter)(nil)
	})

	t.Run("persistent store survives reopen", func(t *testing.T) {
		dir := t.TempDir()
		ctx := context.Background()
		docID := uuid.New()

		first, err := NewAdapter(&Config{PersistPath: dir})
		require.NoError(t, err)
		require.NoError(t, first.Index(ctx, []recallsearch.Entry{
			entry(docID, "mock-embed", 0, vecExact),
			entry(docID, "mock-embed", 1, vecClose),
		}))

		reopened, err := NewAdapter(&Config{PersistPath: dir})
		require.NoError(t, err)

		candidates, err := reopened.Search(ctx, queryVector, recallsearch.VectorQuery{K: 10})
		require.NoError(t, err)
		assert.Len(t, candidates, 2)
	})
}

func TestAdapter_IndexAndSearch(t *testing.T) {
	adapter := newMemAdapter(t)
	ctx := context.Background()
	docID := uuid.New()

	exact := entry(docID, "mock-embed", 0, vecExact)
	near := entry(docID, "mock-embed", 1, vecClose)
	far := entry(docID, "mock-embed", 2, vecFar)
	require.NoError(t, adapter.Index(ctx, []recallsearch.Entry{far, exact, near}))

	candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{K: 10})
	require.NoError(t, err)
	require.Len(t, candidates, 3)

	assert.Equal(t, exact.EmbeddingID, candidates[0].EmbeddingID)
	assert.Equal(t, near.EmbeddingID, candidates[1].EmbeddingID)
	assert.Equal(t, far.EmbeddingID, candidates[2].EmbeddingID)

	assert.InDelta(t, 0.0, candidates[0].Distance, 0.001)
	assert.InDelta(t, 0.1, candidates[1].Distance, 0.001)
	assert.InDelta(t, 1.0, candidates[2].Distance, 0.001)
}

func TestAdapter_Search_KLargerThanCollection(t *testing.T) {
	adapter := newMemAdapter(t)
	ctx := context.Background()
	docID := uuid.New()

	require.NoError(t, adapter.Index(ctx, []recallsearch.Entry{
		entry(docID, "mock-embed", 0, vecExact),
		entry(docID, "mock-embed", 1, vecClose),
		entry(docID, "mock-embed", 2, vecFar),
	}))

	candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{K: 50})
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
}

func TestAdapter_Search_Restrictions(t *testing.T) {
	adapter := newMemAdapter(t)
	ctx := context.Background()
	docA := uuid.New()
	docB := uuid.New()

	nomic := entry(docA, "nomic-embed-text", 0, vecExact)
	minilm := entry(docA, "all-minilm", 0, vecClose)
	other := entry(docB, "nomic-embed-text", 0, vecFar)
	require.NoError(t, adapter.Index(ctx, []recallsearch.Entry{nomic, minilm, other}))

	t.Run("embedding model", func(t *testing.T) {
		candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{
			K:              10,
			EmbeddingModel: "nomic-embed-text",
		})
		require.NoError(t, err)
		require.Len(t, candidates, 2)
		assert.Equal(t, nomic.EmbeddingID, candidates[0].EmbeddingID)
		assert.Equal(t, other.EmbeddingID, candidates[1].EmbeddingID)
	})

	t.Run("document scope", func(t *testing.T) {
		candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{
			K:          10,
			DocumentID: docB,
		})
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, other.EmbeddingID, candidates[0].EmbeddingID)
	})

	t.Run("k still bounds restricted results", func(t *testing.T) {
		candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{
			K:              1,
			EmbeddingModel: "nomic-embed-text",
		})
		require.NoError(t, err)
		require.Len(t, candidates, 1)
		assert.Equal(t, nomic.EmbeddingID, candidates[0].EmbeddingID)
	})
}

func TestAdapter_Search_Empty(t *testing.T) {
	adapter := newMemAdapter(t)
	ctx := context.Background()

	t.Run("empty collection", func(t *testing.T) {
		candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{K: 10})
		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("empty query vector", func(t *testing.T) {
		_, err := adapter.Search(ctx, nil, recallsearch.VectorQuery{K: 10})
		assert.True(t, errors.Is(err, recallsearch.ErrNoQueryVector))
	})
}

func TestAdapter_Remove(t *testing.T) {
	adapter := newMemAdapter(t)
	ctx := context.Background()
	docID := uuid.New()

	keep := entry(docID, "mock-embed", 0, vecExact)
	drop := entry(docID, "mock-embed", 1, vecClose)
	require.NoError(t, adapter.Index(ctx, []recallsearch.Entry{keep, drop}))

	require.NoError(t, adapter.Remove(ctx, []uuid.UUID{drop.EmbeddingID}))

	candidates, err := adapter.Search(ctx, queryVector, recallsearch.VectorQuery{K: 10})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, keep.EmbeddingID, candidates[0].EmbeddingID)

	t.Run("no ids is a no-op", func(t *testing.T) {
		require.NoError(t, adapter.Remove(ctx, nil))
	})
}
