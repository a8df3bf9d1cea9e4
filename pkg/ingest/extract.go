package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/models"
	"github.com/recallhq/recall/pkg/parser"
)

// ExtractTextStep parses the document source and persists what the parser
// found: extracted text becomes a TextContent record, recognized media
// formats get an image or audio record, and file facts are merged into
// file_metadata. Documents that already carry content are left untouched.
type ExtractTextStep struct{}

// Name returns the step name.
func (s *ExtractTextStep) Name() string {
	return StepExtractText
}

// Execute extracts content for the document in pctx.
func (s *ExtractTextStep) Execute(ctx context.Context, pctx *Context) error {
	doc := pctx.Document

	extracted, err := hasExtractedContent(pctx.DB, doc.ID)
	if err != nil {
		return err
	}
	if extracted {
		pctx.Logger.Debug("content already extracted, skipping",
			"document_id", doc.ID)
		return nil
	}

	if len(doc.FileBlob) == 0 && doc.Location == "" {
		return fmt.Errorf("document %s has no blob or location to extract from", doc.ID)
	}

	if err := doc.TransitionTo(pctx.DB, models.StatusProcessing); err != nil {
		return err
	}

	var result *parser.Result
	if len(doc.FileBlob) > 0 {
		result, err = pctx.Parser.ParseBytes(ctx, doc.Location, doc.FileBlob)
	} else {
		result, err = pctx.Parser.Parse(ctx, doc.Location)
	}
	if err != nil {
		return err
	}

	updates := map[string]interface{}{}
	if result.DocumentType != "" && result.DocumentType != doc.DocumentType {
		updates["document_type"] = result.DocumentType
		doc.DocumentType = result.DocumentType
	}
	if doc.Title == "" && result.Title != "" {
		updates["title"] = result.Title
		doc.Title = result.Title
	}
	if len(result.FileMetadata) > 0 {
		merged := doc.FileMetadata.Clone()
		if merged == nil {
			merged = models.JSONMap{}
		}
		for k, v := range result.FileMetadata {
			merged[k] = v
		}
		updates["file_metadata"] = merged
		doc.FileMetadata = merged
	}

	switch {
	case result.Content != "":
		hash := sha256.Sum256([]byte(result.Content))
		doc.ContentHash = hex.EncodeToString(hash[:])
		updates["content_hash"] = doc.ContentHash

		tc := &models.TextContent{DocumentID: doc.ID, Content: result.Content}
		if err := pctx.DB.Create(tc).Error; err != nil {
			return models.TranslateError(err)
		}
		pctx.Logger.Debug("extracted text content",
			"document_id", doc.ID,
			"document_type", doc.DocumentType,
			"content_length", len(result.Content))

	case result.DocumentType == models.TypeImage:
		ic := &models.ImageContent{DocumentID: doc.ID, Data: doc.FileBlob}
		if err := pctx.DB.Create(ic).Error; err != nil {
			return models.TranslateError(err)
		}
		s.hashBlob(doc, updates)

	case result.DocumentType == models.TypeAudio:
		ac := &models.AudioContent{DocumentID: doc.ID, Data: doc.FileBlob}
		if d, ok := result.FileMetadata["duration"].(float64); ok {
			ac.Duration = d
		}
		if err := pctx.DB.Create(ac).Error; err != nil {
			return models.TranslateError(err)
		}
		s.hashBlob(doc, updates)

	default:
		return fmt.Errorf("no text extracted from document %s (%s)", doc.ID, doc.Location)
	}

	if len(updates) > 0 {
		if err := pctx.DB.Model(doc).Updates(updates).Error; err != nil {
			return models.TranslateError(err)
		}
	}
	return nil
}

// IsRetryable treats parse failures as permanent; the document will not get
// less malformed on a retry.
func (s *ExtractTextStep) IsRetryable(err error) bool {
	var parseErr *parser.ParseError
	if errors.As(err, &parseErr) {
		return false
	}
	if errors.Is(err, models.ErrInvalidTransition) {
		return false
	}
	return retryableError(err)
}

// hashBlob records the content hash of the raw source bytes for media
// documents, which have no extracted text to hash.
func (s *ExtractTextStep) hashBlob(doc *models.Document, updates map[string]interface{}) {
	if len(doc.FileBlob) == 0 {
		return
	}
	hash := sha256.Sum256(doc.FileBlob)
	doc.ContentHash = hex.EncodeToString(hash[:])
	updates["content_hash"] = doc.ContentHash
}

// hasExtractedContent reports whether any content record exists for the
// document, across all modalities.
func hasExtractedContent(db *gorm.DB, documentID uuid.UUID) (bool, error) {
	has, err := models.HasTextContent(db, documentID)
	if err != nil || has {
		return has, err
	}

	for _, model := range []interface{}{&models.ImageContent{}, &models.AudioContent{}} {
		var count int64
		if err := db.Model(model).Where("document_id = ?", documentID).Count(&count).Error; err != nil {
			return false, models.TranslateError(err)
		}
		if count > 0 {
			return true, nil
		}
	}
	return false, nil
}
