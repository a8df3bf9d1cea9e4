package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Embedding is a fixed-dimension vector derived from one chunk of a content
// record. The (embeddable_type, embeddable_id, chunk_index) triple is unique
// and chunk indexes form a contiguous prefix 0..n-1 per content record.
type Embedding struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	EmbeddableType string    `gorm:"type:varchar(30);not null;uniqueIndex:idx_embeddings_chunk,priority:1;index:idx_embeddings_embeddable,priority:1" json:"embeddableType"`
	EmbeddableID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_embeddings_chunk,priority:2;index:idx_embeddings_embeddable,priority:2" json:"embeddableId"`
	ChunkIndex     int       `gorm:"not null;default:0;uniqueIndex:idx_embeddings_chunk,priority:3" json:"chunkIndex"`

	// Content is the embedded text span, stored for re-display in results.
	Content string `gorm:"type:text;not null" json:"content"`

	Vector         Vector `gorm:"column:embedding_vector;type:jsonb" json:"vector,omitempty"`
	EmbeddingModel string `gorm:"type:varchar(100);not null;index:idx_embeddings_model" json:"embeddingModel"`

	// Usage tracking, mutated only by the search engine when this record
	// appears in a returned result set.
	UsageCount int        `gorm:"not null;default:0" json:"usageCount"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty"`

	// Metadata is a bag of processing parameters (chunk bounds, token
	// counts, generation timings).
	Metadata JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName specifies the table name.
func (Embedding) TableName() string {
	return "embeddings"
}

// BeforeCreate assigns an ID and enforces the vector and discriminator
// invariants: an embedding never exists without a valid vector.
func (e *Embedding) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if len(e.Vector) == 0 {
		return ErrMissingVector
	}
	switch e.EmbeddableType {
	case EmbeddableTypeText, EmbeddableTypeImage, EmbeddableTypeAudio:
	default:
		return fmt.Errorf("unknown embeddable type %q", e.EmbeddableType)
	}
	if e.EmbeddableID == uuid.Nil {
		return fmt.Errorf("embeddable_id is required")
	}
	if e.EmbeddingModel == "" {
		return fmt.Errorf("embedding_model is required")
	}
	return nil
}

// EmbeddingsForContent returns the embeddings of one content record in
// chunk order.
func EmbeddingsForContent(db *gorm.DB, embeddableType string, embeddableID uuid.UUID) ([]Embedding, error) {
	var embeddings []Embedding
	err := db.Where("embeddable_type = ? AND embeddable_id = ?", embeddableType, embeddableID).
		Order("chunk_index ASC").
		Find(&embeddings).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return embeddings, nil
}

// EmbeddingsForDocument returns every embedding belonging to a document
// across all content modalities.
func EmbeddingsForDocument(db *gorm.DB, documentID uuid.UUID) ([]Embedding, error) {
	var out []Embedding
	for kind, table := range map[string]string{
		EmbeddableTypeText:  "text_contents",
		EmbeddableTypeImage: "image_contents",
		EmbeddableTypeAudio: "audio_contents",
	} {
		var embeddings []Embedding
		err := db.Where(
			"embeddable_type = ? AND embeddable_id IN (?)",
			kind,
			db.Table(table).Select("id").Where("document_id = ?", documentID),
		).Order("chunk_index ASC").Find(&embeddings).Error
		if err != nil {
			return nil, TranslateError(err)
		}
		out = append(out, embeddings...)
	}
	return out, nil
}

// CountEmbeddingsForDocument returns the embedding count for a document.
func CountEmbeddingsForDocument(db *gorm.DB, documentID uuid.UUID) (int64, error) {
	embeddings, err := EmbeddingsForDocument(db, documentID)
	if err != nil {
		return 0, err
	}
	return int64(len(embeddings)), nil
}

// CountEmbeddings returns the total embedding count.
func CountEmbeddings(db *gorm.DB) (int64, error) {
	var count int64
	err := db.Model(&Embedding{}).Count(&count).Error
	return count, TranslateError(err)
}

// NextChunkIndex returns the next contiguous chunk index for a content
// record (0 when the record has no embeddings yet).
func NextChunkIndex(db *gorm.DB, embeddableType string, embeddableID uuid.UUID) (int, error) {
	var next int
	err := db.Model(&Embedding{}).
		Select("COALESCE(MAX(chunk_index) + 1, 0)").
		Where("embeddable_type = ? AND embeddable_id = ?", embeddableType, embeddableID).
		Scan(&next).Error
	if err != nil {
		return 0, TranslateError(err)
	}
	return next, nil
}

// BatchMarkReturned increments usage_count and stamps returned_at for every
// id in one UPDATE. Called once per search with the full returned set to
// bound write amplification.
func BatchMarkReturned(db *gorm.DB, ids []uuid.UUID, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := db.Model(&Embedding{}).
		Where("id IN ?", ids).
		UpdateColumns(map[string]interface{}{
			"usage_count": gorm.Expr("usage_count + 1"),
			"returned_at": now,
			"updated_at":  now,
		}).Error
	return TranslateError(err)
}

// DistinctEmbeddingModels lists the models present in the embeddings table.
func DistinctEmbeddingModels(db *gorm.DB) ([]string, error) {
	var names []string
	err := db.Model(&Embedding{}).
		Distinct("embedding_model").
		Order("embedding_model ASC").
		Pluck("embedding_model", &names).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return names, nil
}
