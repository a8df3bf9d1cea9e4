package models

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox entry statuses.
const (
	OutboxStatusPending   = "pending"
	OutboxStatusPublished = "published"
	OutboxStatusFailed    = "failed"
	OutboxStatusConsumed  = "consumed"
)

// IngestOutbox implements the transactional outbox pattern for ingest job
// announcements. Entries are written in the same transaction as the
// document row and relayed to Kafka by a separate process, so a document
// is never visible to workers before it is committed.
type IngestOutbox struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	DocumentID uuid.UUID `gorm:"type:uuid;not null;index:idx_ingest_outbox_document" json:"documentId"`

	// IdempotentKey deduplicates announcements for the same document and
	// payload across retries of the enqueue path.
	IdempotentKey string `gorm:"type:varchar(100);not null;uniqueIndex:idx_ingest_outbox_idempotent" json:"idempotentKey"`

	Topic   string  `gorm:"type:varchar(200);not null" json:"topic"`
	Payload JSONMap `gorm:"type:jsonb;not null" json:"payload"`

	Status      string     `gorm:"type:varchar(20);not null;default:'pending';index:idx_ingest_outbox_status" json:"status"`
	Retries     int        `gorm:"not null;default:0" json:"retries"`
	LastError   string     `gorm:"type:text" json:"lastError,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
}

// TableName specifies the table name.
func (IngestOutbox) TableName() string {
	return "ingest_outbox"
}

// NewIngestOutboxEntry builds a pending outbox entry announcing that a
// document is ready for the given pipeline stages.
func NewIngestOutboxEntry(documentID uuid.UUID, topic string, stages []string) (*IngestOutbox, error) {
	if documentID == uuid.Nil {
		return nil, fmt.Errorf("document id is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	payload := JSONMap{
		"document_id": documentID.String(),
		"stages":      stages,
		"enqueued_at": time.Now().UTC().Format(time.RFC3339),
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	hash := sha256.Sum256(raw)

	return &IngestOutbox{
		DocumentID:    documentID,
		IdempotentKey: fmt.Sprintf("%s:%x", documentID, hash[:8]),
		Topic:         topic,
		Payload:       payload,
		Status:        OutboxStatusPending,
	}, nil
}

// MarkAsPublished records a successful relay to the broker.
func (o *IngestOutbox) MarkAsPublished(db *gorm.DB) error {
	now := time.Now()
	o.Status = OutboxStatusPublished
	o.PublishedAt = &now
	o.LastError = ""
	return TranslateError(db.Save(o).Error)
}

// MarkAsFailed records a relay failure and increments the retry counter.
func (o *IngestOutbox) MarkAsFailed(db *gorm.DB, errMsg string) error {
	o.Status = OutboxStatusFailed
	o.Retries++
	o.LastError = errMsg
	return TranslateError(db.Save(o).Error)
}

// MarkAsConsumed records that a consumer finished processing the entry.
// Consumers use this as the idempotency marker for redelivered events.
func (o *IngestOutbox) MarkAsConsumed(db *gorm.DB) error {
	o.Status = OutboxStatusConsumed
	return TranslateError(db.Save(o).Error)
}

// Retry moves a failed entry back to pending so the relay picks it up
// again.
func (o *IngestOutbox) Retry(db *gorm.DB) error {
	if o.Status != OutboxStatusFailed {
		return fmt.Errorf("can only retry failed entries, got status %q", o.Status)
	}
	o.Status = OutboxStatusPending
	o.LastError = ""
	return TranslateError(db.Save(o).Error)
}

// FindPendingOutboxEntries returns pending entries oldest first, bounded by
// limit.
func FindPendingOutboxEntries(db *gorm.DB, limit int) ([]IngestOutbox, error) {
	var entries []IngestOutbox
	err := db.Where("status = ?", OutboxStatusPending).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return entries, nil
}

// FindFailedOutboxEntries returns failed entries oldest first, bounded by
// limit.
func FindFailedOutboxEntries(db *gorm.DB, limit int) ([]IngestOutbox, error) {
	var entries []IngestOutbox
	err := db.Where("status = ?", OutboxStatusFailed).
		Order("created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, TranslateError(err)
	}
	return entries, nil
}

// FindOutboxByIdempotentKey returns the entry carrying an idempotent key.
func FindOutboxByIdempotentKey(db *gorm.DB, key string) (*IngestOutbox, error) {
	var entry IngestOutbox
	if err := db.Where("idempotent_key = ?", key).First(&entry).Error; err != nil {
		return nil, TranslateError(err)
	}
	return &entry, nil
}

// CountOutboxByStatus returns outbox entry counts grouped by status.
func CountOutboxByStatus(db *gorm.DB) (map[string]int64, error) {
	type row struct {
		Key   string
		Count int64
	}
	var rows []row
	err := db.Model(&IngestOutbox{}).
		Select("status as key, count(*) as count").
		Group("status").
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

// DeleteOldPublishedEntries prunes published entries older than the cutoff
// and reports how many rows were removed.
func DeleteOldPublishedEntries(db *gorm.DB, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := db.Where("status = ? AND published_at < ?", OutboxStatusPublished, cutoff).
		Delete(&IngestOutbox{})
	if result.Error != nil {
		return 0, TranslateError(result.Error)
	}
	return result.RowsAffected, nil
}
