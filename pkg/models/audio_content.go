package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AudioContent holds an audio track belonging to a document. The embedded
// text is the transcript.
type AudioContent struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_audio_contents_document" json:"documentId"`

	Transcript     string  `gorm:"type:text" json:"transcript,omitempty"`
	Duration       float64 `gorm:"default:0" json:"duration,omitempty"`
	SampleRate     int     `gorm:"default:0" json:"sampleRate,omitempty"`
	Data           []byte  `gorm:"type:bytea" json:"-"`
	EmbeddingModel string  `gorm:"type:varchar(100)" json:"embeddingModel,omitempty"`

	Metadata JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`

	Document *Document `gorm:"foreignKey:DocumentID" json:"-"`
}

// TableName specifies the table name.
func (AudioContent) TableName() string {
	return "audio_contents"
}

// BeforeCreate assigns an ID.
func (ac *AudioContent) BeforeCreate(tx *gorm.DB) error {
	if ac.ID == uuid.Nil {
		ac.ID = uuid.New()
	}
	return nil
}

// ContentID implements Content.
func (ac *AudioContent) ContentID() uuid.UUID { return ac.ID }

// ContentKind implements Content.
func (ac *AudioContent) ContentKind() string { return EmbeddableTypeAudio }

// OwnerID implements Content.
func (ac *AudioContent) OwnerID() uuid.UUID { return ac.DocumentID }

// EmbeddableText implements Content.
func (ac *AudioContent) EmbeddableText() string { return ac.Transcript }

// AudioContentsForDocument returns the audio records of a document.
func AudioContentsForDocument(db *gorm.DB, documentID uuid.UUID) ([]AudioContent, error) {
	var contents []AudioContent
	err := db.Where("document_id = ?", documentID).
		Order("created_at ASC").
		Find(&contents).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return contents, nil
}
