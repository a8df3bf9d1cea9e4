package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ImageContent holds an image belonging to a document. The embedded text is
// the AI description when present, otherwise the alt text.
type ImageContent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_image_contents_document" json:"documentId"`

	Description    string `gorm:"type:text" json:"description,omitempty"`
	AltText        string `gorm:"type:varchar(1000)" json:"altText,omitempty"`
	Data           []byte `gorm:"type:bytea" json:"-"`
	EmbeddingModel string `gorm:"type:varchar(100)" json:"embeddingModel,omitempty"`

	Metadata JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	Document *Document `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName specifies the table name.
func (ImageContent) TableName() string {
	return "image_contents"
}

// BeforeCreate assigns an ID.
func (ic *ImageContent) BeforeCreate(tx *gorm.DB) error {
	if ic.ID == uuid.Nil {
		ic.ID = uuid.New()
	}
	return nil
}

// ContentID implements Content.
func (ic *ImageContent) ContentID() uuid.UUID { return ic.ID }

// ContentKind implements Content.
func (ic *ImageContent) ContentKind() string { return EmbeddableTypeImage }

// OwnerID implements Content.
func (ic *ImageContent) OwnerID() uuid.UUID { return ic.DocumentID }

// EmbeddableText implements Content.
func (ic *ImageContent) EmbeddableText() string {
	if ic.Description != "" {
		return ic.Description
	}
	return ic.AltText
}

// ImageContentsForDocument returns the image records of a document.
func ImageContentsForDocument(db *gorm.DB, documentID uuid.UUID) ([]ImageContent, error) {
	var contents []ImageContent
	err := db.Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&contents).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return contents, nil
}
