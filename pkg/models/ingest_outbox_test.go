package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIngestOutboxEntry(t *testing.T) {
	t.Run("builds a pending entry with an idempotent key", func(t *testing.T) {
		docID := uuid.New()
		entry, err := NewIngestOutboxEntry(docID, "recall.documents", []string{"extract_text"})
		require.NoError(t, err)

		assert.Equal(t, OutboxStatusPending, entry.Status)
		assert.Equal(t, docID, entry.DocumentID)
		assert.Contains(t, entry.IdempotentKey, docID.String())
		assert.Equal(t, "recall.documents", entry.Topic)
		assert.Equal(t, docID.String(), entry.Payload.GetString("document_id"))
	})

	t.Run("requires a document id", func(t *testing.T) {
		_, err := NewIngestOutboxEntry(uuid.Nil, "recall.documents", nil)
		assert.Error(t, err)
	})

	t.Run("requires a topic", func(t *testing.T) {
		_, err := NewIngestOutboxEntry(uuid.New(), "", nil)
		assert.Error(t, err)
	})
}

func TestIngestOutbox_Lifecycle(t *testing.T) {
	db := setupTest(t)

	doc := &Document{Location: "/tmp/outbox.txt"}
	require.NoError(t, db.Create(doc).Error)

	entry, err := NewIngestOutboxEntry(doc.ID, "recall.documents", []string{"extract_text", "generate_metadata"})
	require.NoError(t, err)
	require.NoError(t, db.Create(entry).Error)

	t.Run("pending entries are found oldest first", func(t *testing.T) {
		pending, err := FindPendingOutboxEntries(db, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, entry.ID, pending[0].ID)
	})

	t.Run("mark as published clears it from pending", func(t *testing.T) {
		require.NoError(t, entry.MarkAsPublished(db))
		assert.Equal(t, OutboxStatusPublished, entry.Status)
		require.NotNil(t, entry.PublishedAt)

		pending, err := FindPendingOutboxEntries(db, 10)
		require.NoError(t, err)
		assert.Empty(t, pending)
	})

	t.Run("consumers mark entries consumed by idempotent key", func(t *testing.T) {
		found, err := FindOutboxByIdempotentKey(db, entry.IdempotentKey)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, found.ID)

		require.NoError(t, found.MarkAsConsumed(db))
		assert.Equal(t, OutboxStatusConsumed, found.Status)

		entry = found
	})

	t.Run("unknown idempotent key is not found", func(t *testing.T) {
		_, err := FindOutboxByIdempotentKey(db, "no-such-key")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("failed entries can be retried", func(t *testing.T) {
		failing, err := NewIngestOutboxEntry(doc.ID, "recall.documents", []string{"generate_embeddings"})
		require.NoError(t, err)
		require.NoError(t, db.Create(failing).Error)

		require.NoError(t, failing.MarkAsFailed(db, "broker unreachable"))
		assert.Equal(t, OutboxStatusFailed, failing.Status)
		assert.Equal(t, 1, failing.Retries)
		assert.Equal(t, "broker unreachable", failing.LastError)

		failed, err := FindFailedOutboxEntries(db, 10)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, failing.ID, failed[0].ID)

		require.NoError(t, failing.Retry(db))
		assert.Equal(t, OutboxStatusPending, failing.Status)
		assert.Empty(t, failing.LastError)
	})

	t.Run("retry is only valid from failed", func(t *testing.T) {
		err := entry.Retry(db)
		assert.Error(t, err)
	})

	t.Run("duplicate idempotent key is rejected", func(t *testing.T) {
		dup, err := NewIngestOutboxEntry(doc.ID, "recall.documents", []string{"extract_text", "generate_metadata"})
		require.NoError(t, err)
		// Payload includes enqueued_at, so force the collision explicitly.
		dup.IdempotentKey = entry.IdempotentKey
		err = db.Create(dup).Error
		assert.ErrorIs(t, TranslateError(err), ErrDuplicate)
	})
}

func TestDeleteOldPublishedEntries(t *testing.T) {
	db := setupTest(t)

	doc := &Document{Location: "/tmp/prune.txt"}
	require.NoError(t, db.Create(doc).Error)

	old, err := NewIngestOutboxEntry(doc.ID, "recall.documents", []string{"extract_text"})
	require.NoError(t, err)
	require.NoError(t, db.Create(old).Error)

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, db.Model(old).UpdateColumns(map[string]interface{}{
		"status":       OutboxStatusPublished,
		"published_at": past,
	}).Error)

	fresh, err := NewIngestOutboxEntry(doc.ID, "recall.documents", []string{"generate_metadata"})
	require.NoError(t, err)
	require.NoError(t, db.Create(fresh).Error)
	require.NoError(t, fresh.MarkAsPublished(db))

	deleted, err := DeleteOldPublishedEntries(db, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	var remaining int64
	require.NoError(t, db.Model(&IngestOutbox{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
