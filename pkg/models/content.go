package models

import "github.com/google/uuid"

// Embeddable type discriminators stored in embeddings.embeddable_type.
// Values are the owning content table names.
const (
	EmbeddableTypeText  = "text_contents"
	EmbeddableTypeImage = "image_contents"
	EmbeddableTypeAudio = "audio_contents"
)

// Content is the tagged-variant view over the modality-specific content
// records. Each variant knows which text span of it gets embedded.
type Content interface {
	// ContentID returns the record's primary key.
	ContentID() uuid.UUID
	// ContentKind returns the embeddable_type discriminator.
	ContentKind() string
	// OwnerID returns the owning document's ID.
	OwnerID() uuid.UUID
	// EmbeddableText returns the text that is chunked and embedded for
	// this record. Empty means nothing to embed.
	EmbeddableText() string
}
