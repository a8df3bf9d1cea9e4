package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// seedTextContent creates a document with one text content record.
func seedTextContent(t *testing.T, db *gorm.DB, location string) (*Document, *TextContent) {
	t.Helper()

	doc := &Document{Location: location}
	require.NoError(t, db.Create(doc).Error)

	tc := &TextContent{DocumentID: doc.ID, Content: "body of " + location}
	require.NoError(t, db.Create(tc).Error)
	return doc, tc
}

func TestEmbedding_Create(t *testing.T) {
	db := setupTest(t)
	_, tc := seedTextContent(t, db, "/tmp/emb.txt")

	t.Run("rejects empty vector", func(t *testing.T) {
		emb := &Embedding{
			EmbeddableType: EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			Content:        "chunk",
			EmbeddingModel: "test-model",
		}
		err := db.Create(emb).Error
		assert.ErrorIs(t, err, ErrMissingVector)
	})

	t.Run("rejects unknown embeddable type", func(t *testing.T) {
		emb := &Embedding{
			EmbeddableType: "video_contents",
			EmbeddableID:   tc.ID,
			Content:        "chunk",
			Vector:         Vector{0.5},
			EmbeddingModel: "test-model",
		}
		err := db.Create(emb).Error
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown embeddable type")
	})

	t.Run("persists vector round trip", func(t *testing.T) {
		emb := &Embedding{
			EmbeddableType: EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			ChunkIndex:     0,
			Content:        "chunk",
			Vector:         Vector{0.25, -0.5, 1},
			EmbeddingModel: "test-model",
		}
		require.NoError(t, db.Create(emb).Error)

		var retrieved Embedding
		require.NoError(t, db.First(&retrieved, "id = ?", emb.ID).Error)
		assert.Equal(t, Vector{0.25, -0.5, 1}, retrieved.Vector)
		assert.Equal(t, 3, retrieved.Vector.Dimensions())
		assert.Zero(t, retrieved.UsageCount)
		assert.Nil(t, retrieved.ReturnedAt)
	})

	t.Run("enforces chunk uniqueness per content", func(t *testing.T) {
		dup := &Embedding{
			EmbeddableType: EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			ChunkIndex:     0,
			Content:        "chunk again",
			Vector:         Vector{0.1},
			EmbeddingModel: "test-model",
		}
		err := db.Create(dup).Error
		assert.ErrorIs(t, TranslateError(err), ErrDuplicate)
	})
}

func TestNextChunkIndex(t *testing.T) {
	db := setupTest(t)
	_, tc := seedTextContent(t, db, "/tmp/chunks.txt")

	t.Run("starts at zero", func(t *testing.T) {
		next, err := NextChunkIndex(db, EmbeddableTypeText, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, next)
	})

	t.Run("follows the highest existing index", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			emb := &Embedding{
				EmbeddableType: EmbeddableTypeText,
				EmbeddableID:   tc.ID,
				ChunkIndex:     i,
				Content:        "chunk",
				Vector:         Vector{float32(i)},
				EmbeddingModel: "test-model",
			}
			require.NoError(t, db.Create(emb).Error)
		}

		next, err := NextChunkIndex(db, EmbeddableTypeText, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, next)
	})
}

func TestBatchMarkReturned(t *testing.T) {
	db := setupTest(t)
	_, tc := seedTextContent(t, db, "/tmp/usage.txt")

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		emb := &Embedding{
			EmbeddableType: EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			ChunkIndex:     i,
			Content:        "chunk",
			Vector:         Vector{float32(i) + 0.5},
			EmbeddingModel: "test-model",
		}
		require.NoError(t, db.Create(emb).Error)
		ids = append(ids, emb.ID)
	}

	t.Run("increments usage and stamps returned_at", func(t *testing.T) {
		now := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, BatchMarkReturned(db, ids[:2], now))

		var marked []Embedding
		require.NoError(t, db.Where("id IN ?", ids[:2]).Find(&marked).Error)
		for _, emb := range marked {
			assert.Equal(t, 1, emb.UsageCount)
			require.NotNil(t, emb.ReturnedAt)
			assert.WithinDuration(t, now, *emb.ReturnedAt, time.Second)
		}

		var untouched Embedding
		require.NoError(t, db.First(&untouched, "id = ?", ids[2]).Error)
		assert.Zero(t, untouched.UsageCount)
		assert.Nil(t, untouched.ReturnedAt)
	})

	t.Run("accumulates across calls", func(t *testing.T) {
		require.NoError(t, BatchMarkReturned(db, ids[:1], time.Now()))

		var emb Embedding
		require.NoError(t, db.First(&emb, "id = ?", ids[0]).Error)
		assert.Equal(t, 2, emb.UsageCount)
	})

	t.Run("empty id set is a no-op", func(t *testing.T) {
		assert.NoError(t, BatchMarkReturned(db, nil, time.Now()))
	})
}

func TestEmbeddingsForDocument(t *testing.T) {
	db := setupTest(t)

	doc := &Document{Location: "/tmp/multi.txt", DocumentType: TypeMixed}
	require.NoError(t, db.Create(doc).Error)

	tc := &TextContent{DocumentID: doc.ID, Content: "text body"}
	require.NoError(t, db.Create(tc).Error)
	ic := &ImageContent{DocumentID: doc.ID, Description: "a diagram"}
	require.NoError(t, db.Create(ic).Error)

	for i := 0; i < 2; i++ {
		emb := &Embedding{
			EmbeddableType: EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			ChunkIndex:     i,
			Content:        "text chunk",
			Vector:         Vector{1, 2},
			EmbeddingModel: "test-model",
		}
		require.NoError(t, db.Create(emb).Error)
	}
	imgEmb := &Embedding{
		EmbeddableType: EmbeddableTypeImage,
		EmbeddableID:   ic.ID,
		ChunkIndex:     0,
		Content:        "a diagram",
		Vector:         Vector{3, 4},
		EmbeddingModel: "test-model",
	}
	require.NoError(t, db.Create(imgEmb).Error)

	t.Run("collects embeddings across modalities", func(t *testing.T) {
		embeddings, err := EmbeddingsForDocument(db, doc.ID)
		require.NoError(t, err)
		assert.Len(t, embeddings, 3)
	})

	t.Run("counts embeddings", func(t *testing.T) {
		count, err := CountEmbeddingsForDocument(db, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(3), count)
	})

	t.Run("excludes other documents", func(t *testing.T) {
		other := &Document{Location: "/tmp/other.txt"}
		require.NoError(t, db.Create(other).Error)

		embeddings, err := EmbeddingsForDocument(db, other.ID)
		require.NoError(t, err)
		assert.Empty(t, embeddings)
	})

	t.Run("lists embeddings per content in chunk order", func(t *testing.T) {
		embeddings, err := EmbeddingsForContent(db, EmbeddableTypeText, tc.ID)
		require.NoError(t, err)
		require.Len(t, embeddings, 2)
		assert.Equal(t, 0, embeddings[0].ChunkIndex)
		assert.Equal(t, 1, embeddings[1].ChunkIndex)
	})
}

func TestDistinctEmbeddingModels(t *testing.T) {
	db := setupTest(t)
	_, tc := seedTextContent(t, db, "/tmp/models.txt")

	for i, model := range []string{"model-b", "model-a", "model-b"} {
		emb := &Embedding{
			EmbeddableType: EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			ChunkIndex:     i,
			Content:        "chunk",
			Vector:         Vector{1},
			EmbeddingModel: model,
		}
		require.NoError(t, db.Create(emb).Error)
	}

	names, err := DistinctEmbeddingModels(db)
	require.NoError(t, err)
	assert.Equal(t, []string{"model-a", "model-b"}, names)
}
