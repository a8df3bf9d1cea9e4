package ingest

import (
	"context"

	"github.com/recallhq/recall/pkg/metadata"
	"github.com/recallhq/recall/pkg/models"
)

// GenerateMetadataStep fills the document's AI metadata through the
// generator. Documents whose schema-required keys are all present are left
// untouched, so caller-set metadata survives reprocessing.
type GenerateMetadataStep struct{}

// Name returns the step name.
func (s *GenerateMetadataStep) Name() string {
	return StepGenerateMetadata
}

// Execute generates and merges metadata for the document in pctx.
func (s *GenerateMetadataStep) Execute(ctx context.Context, pctx *Context) error {
	doc := pctx.Document

	schema := metadata.SchemaFor(doc.DocumentType)
	if len(schema.MissingRequired(doc.Metadata)) == 0 {
		pctx.Logger.Debug("required metadata already present, skipping",
			"document_id", doc.ID,
			"schema", schema.Name)
		return nil
	}

	content, err := documentText(pctx.DB, doc.ID)
	if err != nil {
		return err
	}

	generated, err := pctx.Generator.Generate(ctx, doc, content)
	if err != nil {
		return err
	}

	updated, err := models.MergeDocumentMetadata(pctx.DB, doc.ID, models.JSONMap(generated))
	if err != nil {
		return err
	}
	doc.Metadata = updated.Metadata

	pctx.Logger.Debug("metadata generated",
		"document_id", doc.ID,
		"schema", schema.Name,
		"fields", len(generated))
	return nil
}

// IsRetryable defers to the shared transient-error classification; the
// generator degrades provider failures internally, so surfaced errors are
// usually storage trouble.
func (s *GenerateMetadataStep) IsRetryable(err error) bool {
	return retryableError(err)
}
