package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TextContent holds the extracted text of a document. A document may carry
// several text records (mixed media sources produce one per text region).
type TextContent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_text_contents_document" json:"documentId"`

	Content        string `gorm:"type:text;not null" json:"content"`
	EmbeddingModel string `gorm:"type:varchar(100)" json:"embeddingModel,omitempty"`

	// Chunking parameters used when this content was embedded.
	ChunkSize int `gorm:"default:0" json:"chunkSize,omitempty"`
	Overlap   int `gorm:"default:0" json:"overlap,omitempty"`

	Metadata JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	Document *Document `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName specifies the table name.
func (TextContent) TableName() string {
	return "text_contents"
}

// BeforeCreate assigns an ID.
func (tc *TextContent) BeforeCreate(tx *gorm.DB) error {
	if tc.ID == uuid.Nil {
		tc.ID = uuid.New()
	}
	return nil
}

// ContentID implements Content.
func (tc *TextContent) ContentID() uuid.UUID { return tc.ID }

// ContentKind implements Content.
func (tc *TextContent) ContentKind() string { return EmbeddableTypeText }

// OwnerID implements Content.
func (tc *TextContent) OwnerID() uuid.UUID { return tc.DocumentID }

// EmbeddableText implements Content: the full extracted text is embedded.
func (tc *TextContent) EmbeddableText() string { return tc.Content }

// TextContentsForDocument returns the text records of a document, oldest first.
func TextContentsForDocument(db *gorm.DB, documentID uuid.UUID) ([]TextContent, error) {
	var contents []TextContent
	err := db.Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&contents).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return contents, nil
}

// HasTextContent reports whether the document has at least one non-empty
// text record.
func HasTextContent(db *gorm.DB, documentID uuid.UUID) (bool, error) {
	var count int64
	err := db.Model(&TextContent{}).
		Where("document_id = ? AND content <> ''", documentID).
		Count(&count).Error
	if err != nil {
		return false, TranslateError(err)
	}
	return count > 0, nil
}
