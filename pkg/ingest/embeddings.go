package ingest

import (
	"context"
	"fmt"

	"github.com/recallhq/recall/pkg/chunker"
	"github.com/recallhq/recall/pkg/models"
	"github.com/recallhq/recall/pkg/search"
)

// embeddingOptions are the tunables the embeddings step accepts.
type embeddingOptions struct {
	ChunkSize int `mapstructure:"chunk_size"`
	Overlap   int `mapstructure:"overlap"`
}

// GenerateEmbeddingsStep chunks each text record, embeds the chunks in one
// batch, and persists an Embedding row per chunk with its position as the
// chunk index. The step runs once per document: any existing embedding
// makes it a no-op.
type GenerateEmbeddingsStep struct{}

// Name returns the step name.
func (s *GenerateEmbeddingsStep) Name() string {
	return StepGenerateEmbeddings
}

// Execute generates embeddings for the document in pctx.
func (s *GenerateEmbeddingsStep) Execute(ctx context.Context, pctx *Context) error {
	doc := pctx.Document

	count, err := models.CountEmbeddingsForDocument(pctx.DB, doc.ID)
	if err != nil {
		return err
	}
	if count > 0 {
		pctx.Logger.Debug("embeddings already exist, skipping",
			"document_id", doc.ID,
			"count", count)
		return nil
	}

	var opts embeddingOptions
	if err := decodeOptions(pctx.StepOptions(s.Name()), &opts); err != nil {
		return fmt.Errorf("invalid embedding options: %w", err)
	}

	ch := pctx.Chunker
	if ch == nil || opts.ChunkSize > 0 || opts.Overlap > 0 {
		ch = chunker.New(opts.ChunkSize, opts.Overlap)
	}

	contents, err := models.TextContentsForDocument(pctx.DB, doc.ID)
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		pctx.Logger.Debug("document has no text to embed",
			"document_id", doc.ID)
		return nil
	}

	model := pctx.Gateway.EmbeddingModel()
	for i := range contents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.embedContent(ctx, pctx, ch, &contents[i], model); err != nil {
			return err
		}
	}
	return nil
}

// embedContent chunks one text record, embeds the whole batch, and persists
// the results. Provider responses missing a vector are skipped, not errored.
func (s *GenerateEmbeddingsStep) embedContent(ctx context.Context, pctx *Context, ch *chunker.Chunker, tc *models.TextContent, model string) error {
	pieces := ch.Chunk(tc.Content)
	if len(pieces) == 0 {
		return nil
	}

	vectors, err := pctx.Gateway.Embed(ctx, pieces)
	if err != nil {
		return fmt.Errorf("failed to embed %d chunks: %w", len(pieces), err)
	}
	if len(vectors) != len(pieces) {
		return fmt.Errorf("embedding count mismatch: %d chunks, %d vectors", len(pieces), len(vectors))
	}

	entries := make([]search.Entry, 0, len(pieces))
	stored := 0
	for i, vec := range vectors {
		if len(vec) == 0 {
			pctx.Logger.Warn("no vector returned for chunk, skipping",
				"document_id", tc.DocumentID,
				"content_id", tc.ID,
				"chunk_index", i)
			continue
		}

		embedding := &models.Embedding{
			EmbeddableType: models.EmbeddableTypeText,
			EmbeddableID:   tc.ID,
			ChunkIndex:     i,
			Content:        pieces[i],
			Vector:         models.Vector(vec),
			EmbeddingModel: model,
			Metadata: models.JSONMap{
				"token_count": tokenCount(model, pieces[i]),
				"chunk_size":  ch.Size,
				"overlap":     ch.Overlap,
			},
		}
		if err := pctx.DB.Create(embedding).Error; err != nil {
			return models.TranslateError(err)
		}
		stored++

		entries = append(entries, search.Entry{
			EmbeddingID: embedding.ID,
			DocumentID:  tc.DocumentID,
			Content:     pieces[i],
			Vector:      vec,
			Model:       model,
			ChunkIndex:  i,
		})
	}

	err = pctx.DB.Model(tc).Updates(map[string]interface{}{
		"embedding_model": model,
		"chunk_size":      ch.Size,
		"overlap":         ch.Overlap,
	}).Error
	if err != nil {
		return models.TranslateError(err)
	}

	if pctx.VectorIndex != nil && len(entries) > 0 {
		// The store holds every vector, so a missed mirror write costs a
		// rebuild, not data.
		if err := pctx.VectorIndex.Index(ctx, entries); err != nil {
			pctx.Logger.Warn("failed to mirror embeddings into vector index",
				"index", pctx.VectorIndex.Name(),
				"document_id", tc.DocumentID,
				"error", err)
		}
	}

	pctx.Logger.Debug("embedded text content",
		"document_id", tc.DocumentID,
		"content_id", tc.ID,
		"chunks", len(pieces),
		"stored", stored,
		"model", model)
	return nil
}

// IsRetryable defers to the shared transient-error classification.
func (s *GenerateEmbeddingsStep) IsRetryable(err error) bool {
	return retryableError(err)
}
