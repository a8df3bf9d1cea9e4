package client

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recallhq/recall/pkg/models"
)

// DocumentStatus summarizes where a document sits in its pipeline.
type DocumentStatus struct {
	DocumentID   uuid.UUID `json:"documentId"`
	Status       string    `json:"status"`
	Title        string    `json:"title,omitempty"`
	DocumentType string    `json:"documentType,omitempty"`
	Contents     int       `json:"contents"`
	Embeddings   int64     `json:"embeddings"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// GetDocument loads a document with its content records.
func (c *Client) GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error) {
	return models.GetDocumentWithContents(c.current().db.WithContext(ctx), id)
}

// DocumentStatus reports a document's pipeline state and what it has
// produced so far.
func (c *Client) DocumentStatus(ctx context.Context, id uuid.UUID) (*DocumentStatus, error) {
	db := c.current().db.WithContext(ctx)

	doc, err := models.GetDocumentWithContents(db, id)
	if err != nil {
		return nil, err
	}
	count, err := models.CountEmbeddingsForDocument(db, id)
	if err != nil {
		return nil, err
	}

	return &DocumentStatus{
		DocumentID:   doc.ID,
		Status:       doc.Status,
		Title:        doc.Title,
		DocumentType: doc.DocumentType,
		Contents:     len(doc.TextContents) + len(doc.ImageContents) + len(doc.AudioContents),
		Embeddings:   count,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

// UpdateDocument applies updates to a document's editable fields and
// returns the updated row. Unknown fields are rejected.
func (c *Client) UpdateDocument(ctx context.Context, id uuid.UUID, updates map[string]interface{}) (*models.Document, error) {
	return models.UpdateDocumentFields(c.current().db.WithContext(ctx), id, updates)
}

// DeleteDocument removes a document, its contents and embeddings, and
// drops it from the search indexes. The store is authoritative; index
// cleanup failures are logged, not fatal.
func (c *Client) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	svc := c.current()
	db := svc.db.WithContext(ctx)

	embeddings, err := models.EmbeddingsForDocument(db, id)
	if err != nil {
		return err
	}

	if err := models.DeleteDocumentCascade(db, id); err != nil {
		return err
	}

	if svc.lexical != nil {
		if err := svc.lexical.DeleteDocument(ctx, id); err != nil {
			svc.logger.Warn("failed to remove document from keyword index",
				"document_id", id, "error", err)
		}
	}
	if svc.vector != nil && len(embeddings) > 0 {
		ids := make([]uuid.UUID, len(embeddings))
		for i, e := range embeddings {
			ids[i] = e.ID
		}
		if err := svc.vector.Remove(ctx, ids); err != nil {
			svc.logger.Warn("failed to remove embeddings from vector index",
				"document_id", id, "error", err)
		}
	}
	return nil
}

// ListDocuments returns documents matching the options, newest first.
func (c *Client) ListDocuments(ctx context.Context, opts models.ListDocumentsOptions) ([]models.Document, error) {
	return models.ListDocuments(c.current().db.WithContext(ctx), opts)
}
