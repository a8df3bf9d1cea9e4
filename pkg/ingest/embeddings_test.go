package ingest

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/pkg/chunker"
	"github.com/recallhq/recall/pkg/llm"
	"github.com/recallhq/recall/pkg/models"
)

func TestGenerateEmbeddingsStep_EmbedsChunks(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock()
	gateway := newTestGateway(t, mock)
	index := &fakeVectorIndex{}

	doc := &models.Document{Location: "/docs/long.txt"}
	require.NoError(t, db.Create(doc).Error)

	content := strings.TrimSpace(strings.Repeat("The pipeline embeds every chunk of text. ", 10))
	tc := &models.TextContent{DocumentID: doc.ID, Content: content}
	require.NoError(t, db.Create(tc).Error)

	step := &GenerateEmbeddingsStep{}
	pctx := &Context{
		DB:          db,
		Document:    doc,
		Gateway:     gateway,
		VectorIndex: index,
		Logger:      hclog.NewNullLogger(),
		Options: map[string]any{
			StepGenerateEmbeddings: map[string]any{"chunk_size": 120, "overlap": 20},
		},
	}
	require.NoError(t, step.Execute(context.Background(), pctx))

	embeddings, err := models.EmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(embeddings), 2)

	for i, emb := range embeddings {
		assert.Equal(t, i, emb.ChunkIndex)
		assert.Equal(t, models.EmbeddableTypeText, emb.EmbeddableType)
		assert.Equal(t, tc.ID, emb.EmbeddableID)
		assert.Equal(t, "mock-embed-v1", emb.EmbeddingModel)
		assert.NotEmpty(t, emb.Vector)
		assert.NotEmpty(t, emb.Content)
		assert.LessOrEqual(t, utf8.RuneCountInString(emb.Content), 120)

		tokens, ok := emb.Metadata["token_count"].(float64)
		require.True(t, ok, "token_count missing from embedding metadata")
		assert.GreaterOrEqual(t, tokens, float64(1))
		assert.EqualValues(t, 120, emb.Metadata["chunk_size"])
		assert.EqualValues(t, 20, emb.Metadata["overlap"])
	}

	// One batched provider call for the whole record.
	assert.Equal(t, 1, mock.EmbedCalls())

	// Chunking parameters are recorded on the text record.
	var reloaded models.TextContent
	require.NoError(t, db.First(&reloaded, "id = ?", tc.ID).Error)
	assert.Equal(t, "mock-embed-v1", reloaded.EmbeddingModel)
	assert.Equal(t, 120, reloaded.ChunkSize)
	assert.Equal(t, 20, reloaded.Overlap)

	// Every stored embedding was mirrored into the vector index.
	require.Len(t, index.entries, len(embeddings))
	for i, entry := range index.entries {
		assert.Equal(t, embeddings[i].ID, entry.EmbeddingID)
		assert.Equal(t, doc.ID, entry.DocumentID)
		assert.Equal(t, "mock-embed-v1", entry.Model)
	}
}

func TestGenerateEmbeddingsStep_NoOpWhenEmbeddingsExist(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock()
	gateway := newTestGateway(t, mock)

	doc := &models.Document{Location: "/docs/once.txt"}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&models.TextContent{
		DocumentID: doc.ID,
		Content:    "Embed me exactly once.",
	}).Error)

	step := &GenerateEmbeddingsStep{}
	pctx := &Context{DB: db, Document: doc, Gateway: gateway, Logger: hclog.NewNullLogger()}

	require.NoError(t, step.Execute(context.Background(), pctx))
	first, err := models.CountEmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	require.Positive(t, first)

	require.NoError(t, step.Execute(context.Background(), pctx))
	second, err := models.CountEmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.EmbedCalls())
}

func TestGenerateEmbeddingsStep_NoTextIsNoOp(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock()
	gateway := newTestGateway(t, mock)

	doc := &models.Document{Location: "photo.png", DocumentType: models.TypeImage}
	require.NoError(t, db.Create(doc).Error)

	step := &GenerateEmbeddingsStep{}
	pctx := &Context{DB: db, Document: doc, Gateway: gateway, Logger: hclog.NewNullLogger()}
	require.NoError(t, step.Execute(context.Background(), pctx))

	count, err := models.CountEmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Equal(t, 0, mock.EmbedCalls())
}

func TestGenerateEmbeddingsStep_SharedChunker(t *testing.T) {
	db := setupTest(t)
	gateway := newTestGateway(t, llm.NewMock())

	doc := &models.Document{Location: "/docs/short.txt"}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&models.TextContent{
		DocumentID: doc.ID,
		Content:    "Short enough for a single chunk.",
	}).Error)

	step := &GenerateEmbeddingsStep{}
	pctx := &Context{
		DB:       db,
		Document: doc,
		Gateway:  gateway,
		Chunker:  chunker.New(0, 0),
		Logger:   hclog.NewNullLogger(),
	}
	require.NoError(t, step.Execute(context.Background(), pctx))

	embeddings, err := models.EmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Equal(t, 0, embeddings[0].ChunkIndex)
	assert.EqualValues(t, chunker.DefaultSize, embeddings[0].Metadata["chunk_size"])
}

func TestGenerateEmbeddingsStep_ProviderFailureDegrades(t *testing.T) {
	db := setupTest(t)
	mock := llm.NewMock().WithEmbedError(&llm.APIError{
		Provider:   "mock",
		StatusCode: 401,
		Message:    "unauthorized",
	})
	gateway := newTestGateway(t, mock)

	doc := &models.Document{Location: "/docs/degraded.txt"}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&models.TextContent{
		DocumentID: doc.ID,
		Content:    "Vectors still appear when the provider is down.",
	}).Error)

	step := &GenerateEmbeddingsStep{}
	pctx := &Context{DB: db, Document: doc, Gateway: gateway, Logger: hclog.NewNullLogger()}
	require.NoError(t, step.Execute(context.Background(), pctx))

	embeddings, err := models.EmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	require.Len(t, embeddings, 1)
	assert.Len(t, []float32(embeddings[0].Vector), gateway.Dimensions())
}

func TestGenerateEmbeddingsStep_IndexFailureIsAbsorbed(t *testing.T) {
	db := setupTest(t)
	gateway := newTestGateway(t, llm.NewMock())
	index := &fakeVectorIndex{indexErr: assert.AnError}

	doc := &models.Document{Location: "/docs/mirror.txt"}
	require.NoError(t, db.Create(doc).Error)
	require.NoError(t, db.Create(&models.TextContent{
		DocumentID: doc.ID,
		Content:    "The store stays authoritative when the mirror fails.",
	}).Error)

	step := &GenerateEmbeddingsStep{}
	pctx := &Context{
		DB:          db,
		Document:    doc,
		Gateway:     gateway,
		VectorIndex: index,
		Logger:      hclog.NewNullLogger(),
	}
	require.NoError(t, step.Execute(context.Background(), pctx))

	count, err := models.CountEmbeddingsForDocument(db, doc.ID)
	require.NoError(t, err)
	assert.Positive(t, count)
}
