package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Document status values. Transitions flow only along
// pending -> processing -> {processed, error}.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusError      = "error"
)

// Document types recognized by the parser and metadata schemas.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypePDF      = "pdf"
	TypeDOCX     = "docx"
	TypeHTML     = "html"
	TypeMarkdown = "markdown"
	TypeMixed    = "mixed"
)

// validStatusTransitions encodes the allowed status graph.
var validStatusTransitions = map[string][]string{
	StatusPending:    {StatusProcessing},
	StatusProcessing: {StatusProcessed, StatusError},
	StatusProcessed:  {},
	StatusError:      {},
}

// DocumentTypes lists every recognized document type.
func DocumentTypes() []string {
	return []string{TypeText, TypeImage, TypeAudio, TypePDF, TypeDOCX, TypeHTML, TypeMarkdown, TypeMixed}
}

// Document is one ingested source. Content lives in modality-specific child
// records; AI-derived metadata and system-derived file metadata are disjoint
// columns and writes to one never touch the other.
type Document struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Location is the origin URI or path of the source.
	Location string `gorm:"type:varchar(2048);not null;index:idx_documents_location" json:"location"`
	Title    string `gorm:"type:varchar(500)" json:"title"`

	DocumentType string `gorm:"type:varchar(20);not null;default:'text';index:idx_documents_type" json:"documentType"`
	Status       string `gorm:"type:varchar(20);not null;default:'pending';index:idx_documents_status" json:"status"`

	// Metadata holds AI-derived fields conforming to the schema for
	// DocumentType. FileMetadata holds system-derived facts (size, MIME,
	// dimensions, duration, author, dates).
	Metadata     JSONMap `gorm:"type:jsonb" json:"metadata"`
	FileMetadata JSONMap `gorm:"type:jsonb" json:"fileMetadata"`

	// FileBlob optionally retains the raw source bytes for reprocessing.
	FileBlob []byte `gorm:"type:bytea" json:"-"`

	// ContentHash is the SHA-256 of the extracted content, used for
	// idempotent reprocessing and event deduplication.
	ContentHash string `gorm:"type:varchar(64);index:idx_documents_content_hash" json:"contentHash,omitempty"`

	TextContents  []TextContent  `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"textContents,omitempty"`
	ImageContents []ImageContent `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"imageContents,omitempty"`
	AudioContents []AudioContent `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE" json:"audioContents,omitempty"`
}

// TableName specifies the table name.
func (Document) TableName() string {
	return "documents"
}

// BeforeCreate assigns an ID and defaults, and rejects unknown enum values.
func (d *Document) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.DocumentType == "" {
		d.DocumentType = TypeText
	}
	if d.Status == "" {
		d.Status = StatusPending
	}

	if _, ok := validStatusTransitions[d.Status]; !ok {
		return fmt.Errorf("unknown document status %q", d.Status)
	}
	if !isKnownDocumentType(d.DocumentType) {
		return fmt.Errorf("unknown document type %q", d.DocumentType)
	}
	return nil
}

func isKnownDocumentType(t string) bool {
	for _, known := range DocumentTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the status graph permits moving to next.
func (d *Document) CanTransitionTo(next string) bool {
	for _, allowed := range validStatusTransitions[d.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// TransitionTo moves the document to the next status, enforcing the
// transition graph. The in-memory struct is updated on success.
func (d *Document) TransitionTo(db *gorm.DB, next string) error {
	if d.Status == next {
		return nil
	}
	if !d.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, d.Status, next)
	}
	if err := db.Model(d).Update("status", next).Error; err != nil {
		return TranslateError(err)
	}
	d.Status = next
	return nil
}

// ResetForReprocessing moves an errored document back to pending so its
// pipeline can run again. This is an explicit operator action, not part of
// the normal transition graph.
func (d *Document) ResetForReprocessing(db *gorm.DB) error {
	if d.Status != StatusError && d.Status != StatusProcessed {
		return fmt.Errorf("%w: cannot reset from %s", ErrInvalidTransition, d.Status)
	}
	if err := db.Model(d).Update("status", StatusPending).Error; err != nil {
		return TranslateError(err)
	}
	d.Status = StatusPending
	return nil
}

// Processed reports whether the pipeline completed for this document.
func (d *Document) Processed() bool {
	return d.Status == StatusProcessed
}

// GetDocument retrieves a document by ID.
func GetDocument(db *gorm.DB, id uuid.UUID) (*Document, error) {
	var doc Document
	if err := db.First(&doc, "id = ?", id).Error; err != nil {
		return nil, TranslateError(err)
	}
	return &doc, nil
}

// GetDocumentWithContents retrieves a document with all content children.
func GetDocumentWithContents(db *gorm.DB, id uuid.UUID) (*Document, error) {
	var doc Document
	err := db.
		Preload("TextContents").
		Preload("ImageContents").
		Preload("AudioContents").
		First(&doc, "id = ?", id).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return &doc, nil
}

// GetDocumentByLocation retrieves the most recent document for a location.
func GetDocumentByLocation(db *gorm.DB, location string) (*Document, error) {
	var doc Document
	err := db.Where("location = ?", location).
		Order("created_at DESC").
		First(&doc).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return &doc, nil
}

// ListDocumentsOptions filters and paginates ListDocuments.
type ListDocumentsOptions struct {
	Status       string
	DocumentType string
	Limit        int
	Offset       int
}

// ListDocuments returns documents matching the options, newest first.
func ListDocuments(db *gorm.DB, opts ListDocumentsOptions) ([]Document, error) {
	q := db.Model(&Document{}).Order("created_at DESC")
	if opts.Status != "" {
		q = q.Where("status = ?", opts.Status)
	}
	if opts.DocumentType != "" {
		q = q.Where("document_type = ?", opts.DocumentType)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	var docs []Document
	if err := q.Find(&docs).Error; err != nil {
		return nil, TranslateError(err)
	}
	return docs, nil
}

// CountDocuments returns the total number of documents.
func CountDocuments(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Document{}).Count(&count).Error
	return count, TranslateError(err)
}

// CountDocumentsByStatus returns document counts grouped by status.
func CountDocumentsByStatus(db *gorm.DB) (map[string]int64, error) {
	return countDocumentsGrouped(db, "status")
}

// CountDocumentsByType returns document counts grouped by document type.
func CountDocumentsByType(db *gorm.DB) (map[string]int64, error) {
	return countDocumentsGrouped(db, "document_type")
}

func countDocumentsGrouped(db *gorm.DB, column string) (map[string]int64, error) {
	type row struct {
		Key   string
		Count int64
	}
	var rows []row
	err := db.Model(&Document{}).
		Select(column + " as key, count(*) as count").
		Group(column).
		Scan(&rows).Error
	if err != nil {
		return nil, TranslateError(err)
	}

	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Count
	}
	return out, nil
}

// UpdateDocumentFields updates whitelisted top-level document fields.
// Metadata and FileMetadata are replaced wholesale when present in updates;
// they are separate namespaces and one is never derived from the other.
func UpdateDocumentFields(db *gorm.DB, id uuid.UUID, updates map[string]interface{}) (*Document, error) {
	allowed := map[string]bool{
		"title":         true,
		"location":      true,
		"document_type": true,
		"metadata":      true,
		"file_metadata": true,
	}
	filtered := make(map[string]interface{}, len(updates))
	for k, v := range updates {
		if !allowed[k] {
			return nil, fmt.Errorf("field %q is not updatable", k)
		}
		if m, ok := v.(map[string]interface{}); ok {
			v = JSONMap(m)
		}
		filtered[k] = v
	}
	if len(filtered) == 0 {
		return GetDocument(db, id)
	}

	result := db.Model(&Document{}).Where("id = ?", id).Updates(filtered)
	if result.Error != nil {
		return nil, TranslateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return GetDocument(db, id)
}

// MergeDocumentMetadata merges generated metadata under existing keys:
// values already present win. FileMetadata is never touched.
func MergeDocumentMetadata(db *gorm.DB, id uuid.UUID, generated JSONMap) (*Document, error) {
	doc, err := GetDocument(db, id)
	if err != nil {
		return nil, err
	}

	merged := generated.Clone()
	if merged == nil {
		merged = JSONMap{}
	}
	for k, v := range doc.Metadata {
		merged[k] = v
	}

	if err := db.Model(doc).Update("metadata", merged).Error; err != nil {
		return nil, TranslateError(err)
	}
	doc.Metadata = merged
	return doc, nil
}

// DeleteDocumentCascade removes a document, its content records, and their
// embeddings in a single transaction.
func DeleteDocumentCascade(db *gorm.DB, id uuid.UUID) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var textIDs, imageIDs, audioIDs []uuid.UUID

		if err := tx.Model(&TextContent{}).Where("document_id = ?", id).Pluck("id", &textIDs).Error; err != nil {
			return TranslateError(err)
		}
		if err := tx.Model(&ImageContent{}).Where("document_id = ?", id).Pluck("id", &imageIDs).Error; err != nil {
			return TranslateError(err)
		}
		if err := tx.Model(&AudioContent{}).Where("document_id = ?", id).Pluck("id", &audioIDs).Error; err != nil {
			return TranslateError(err)
		}

		for kind, ids := range map[string][]uuid.UUID{
			EmbeddableTypeText:  textIDs,
			EmbeddableTypeImage: imageIDs,
			EmbeddableTypeAudio: audioIDs,
		} {
			if len(ids) == 0 {
				continue
			}
			if err := tx.Where("embeddable_type = ? AND embeddable_id IN ?", kind, ids).
				Delete(&Embedding{}).Error; err != nil {
				return TranslateError(err)
			}
		}

		if err := tx.Where("document_id = ?", id).Delete(&TextContent{}).Error; err != nil {
			return TranslateError(err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&ImageContent{}).Error; err != nil {
			return TranslateError(err)
		}
		if err := tx.Where("document_id = ?", id).Delete(&AudioContent{}).Error; err != nil {
			return TranslateError(err)
		}

		result := tx.Delete(&Document{}, "id = ?", id)
		if result.Error != nil {
			return TranslateError(result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
