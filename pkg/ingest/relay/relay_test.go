package relay

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/database"
	"github.com/recallhq/recall/pkg/models"
)

func setupTest(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Connect(database.Config{
		Driver: database.DriverSQLite,
		Path:   "file::memory:",
	}, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

// newTestRelay builds a relay against brokers that are never dialed; the
// client connects lazily, so everything short of publishing works offline.
func newTestRelay(t *testing.T, db *gorm.DB) *Relay {
	t.Helper()
	relay, err := New(Config{
		DB:      db,
		Brokers: []string{"localhost:19092"},
		Topic:   "recall.ingest",
	})
	require.NoError(t, err)
	return relay
}

func createOutboxEntry(t *testing.T, db *gorm.DB, stages []string) *models.IngestOutbox {
	t.Helper()
	doc := &models.Document{Location: "/docs/outbox.txt"}
	require.NoError(t, db.Create(doc).Error)

	entry, err := models.NewIngestOutboxEntry(doc.ID, "recall.ingest", stages)
	require.NoError(t, err)
	require.NoError(t, db.Create(entry).Error)
	return entry
}

func TestNew_Validation(t *testing.T) {
	db := setupTest(t)

	_, err := New(Config{Brokers: []string{"localhost:19092"}, Topic: "recall.ingest"})
	assert.ErrorContains(t, err, "database is required")

	_, err = New(Config{DB: db, Topic: "recall.ingest"})
	assert.ErrorContains(t, err, "at least one broker is required")

	_, err = New(Config{DB: db, Brokers: []string{"localhost:19092"}})
	assert.ErrorContains(t, err, "topic is required")
}

func TestNew_Defaults(t *testing.T) {
	db := setupTest(t)
	relay := newTestRelay(t, db)
	defer relay.Stop()

	assert.Equal(t, 1*time.Second, relay.pollInterval)
	assert.Equal(t, 100, relay.batchSize)
	assert.Equal(t, "recall.ingest", relay.topic)
}

func TestDocumentEvent_JSONShape(t *testing.T) {
	event := DocumentEvent{
		ID:            7,
		DocumentID:    "0d4b7c3e-54a1-4cbb-9f34-0a5b1c2d3e4f",
		IdempotentKey: "0d4b7c3e:deadbeef",
		Stages:        []string{"extract_text", "generate_embeddings"},
		Payload:       models.JSONMap{"document_id": "0d4b7c3e-54a1-4cbb-9f34-0a5b1c2d3e4f"},
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	assert.Contains(t, string(data), `"document_id"`)
	assert.Contains(t, string(data), `"idempotent_key"`)
	assert.Contains(t, string(data), `"stages"`)
	assert.Contains(t, string(data), `"payload"`)
	assert.Contains(t, string(data), `"timestamp"`)

	// A full-pipeline event omits the stages key entirely.
	data, err = json.Marshal(DocumentEvent{ID: 8, DocumentID: event.DocumentID})
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"stages"`)
}

func TestRelay_Stats(t *testing.T) {
	db := setupTest(t)
	relay := newTestRelay(t, db)
	defer relay.Stop()

	createOutboxEntry(t, db, nil)
	published := createOutboxEntry(t, db, nil)
	require.NoError(t, published.MarkAsPublished(db))

	stats, err := relay.Stats()
	require.NoError(t, err)
	assert.EqualValues(t, 1, stats[models.OutboxStatusPending])
	assert.EqualValues(t, 1, stats[models.OutboxStatusPublished])
}

func TestRelay_CleanupOldEntries(t *testing.T) {
	db := setupTest(t)
	relay := newTestRelay(t, db)
	defer relay.Stop()

	pending := createOutboxEntry(t, db, nil)
	published := createOutboxEntry(t, db, []string{"extract_text"})
	require.NoError(t, published.MarkAsPublished(db))

	require.NoError(t, relay.CleanupOldEntries(0))

	// Only the published entry is gone; pending work is never dropped.
	var count int64
	require.NoError(t, db.Model(&models.IngestOutbox{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	remaining, err := models.FindPendingOutboxEntries(db, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, pending.ID, remaining[0].ID)
}
