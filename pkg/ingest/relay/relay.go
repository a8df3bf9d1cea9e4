// Package relay publishes pending ingest outbox entries to Kafka or
// Redpanda. Together with the outbox rows written alongside documents it
// completes the transactional outbox pattern: a document and its ingest
// announcement commit atomically, and the relay makes the announcement
// visible to consumers afterwards.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/models"
)

// EventTypeIngest marks records announcing a document ready for ingestion.
const EventTypeIngest = "document_ingest"

// Relay polls the ingest_outbox table and publishes pending entries.
type Relay struct {
	db           *gorm.DB
	kafkaClient  *kgo.Client
	topic        string
	logger       hclog.Logger
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// Config holds configuration for the relay service.
type Config struct {
	// Database connection holding the outbox table.
	DB *gorm.DB

	// Kafka/Redpanda connection.
	Brokers []string
	Topic   string

	// PollInterval is how often the outbox is polled (default: 1s).
	PollInterval time.Duration

	// BatchSize bounds how many entries one poll publishes (default: 100).
	BatchSize int

	Logger hclog.Logger
}

// DocumentEvent is the message published for each outbox entry.
type DocumentEvent struct {
	ID            uint           `json:"id"`
	DocumentID    string         `json:"document_id"`
	IdempotentKey string         `json:"idempotent_key"`
	Stages        []string       `json:"stages,omitempty"`
	Payload       models.JSONMap `json:"payload"`
	Timestamp     time.Time      `json:"timestamp"`
}

// New creates an outbox relay service.
func New(cfg Config) (*Relay, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}

	if cfg.PollInterval == 0 {
		cfg.PollInterval = 1 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),

		// Producer reliability settings
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.GzipCompression()),

		// Retry configuration
		kgo.RetryBackoffFn(func(tries int) time.Duration {
			backoff := time.Duration(tries) * 100 * time.Millisecond
			if backoff > 60*time.Second {
				return 60 * time.Second
			}
			return backoff
		}),
		kgo.RequestRetries(10),

		// Performance settings
		kgo.ProducerLinger(10*time.Millisecond),
		kgo.ProducerBatchMaxBytes(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Relay{
		db:           cfg.DB,
		kafkaClient:  kafkaClient,
		topic:        cfg.Topic,
		logger:       cfg.Logger.Named("outbox-relay"),
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		stopCh:       make(chan struct{}),
	}, nil
}

// Start runs the polling loop. Blocks until Stop is called or the context
// is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting outbox relay",
		"poll_interval", r.pollInterval,
		"batch_size", r.batchSize,
		"topic", r.topic,
	)

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("outbox relay stopped by context")
			return ctx.Err()

		case <-r.stopCh:
			r.logger.Info("outbox relay stopped")
			return nil

		case <-ticker.C:
			if err := r.processBatch(ctx); err != nil {
				r.logger.Error("failed to process outbox batch", "error", err)
				// Keep polling; the next tick retries.
			}
		}
	}
}

// Stop gracefully stops the relay.
func (r *Relay) Stop() {
	close(r.stopCh)
	r.kafkaClient.Close()
}

// processBatch publishes one batch of pending outbox entries. Per-entry
// failures are recorded on the entry and do not stop the batch.
func (r *Relay) processBatch(ctx context.Context) error {
	entries, err := models.FindPendingOutboxEntries(r.db, r.batchSize)
	if err != nil {
		return fmt.Errorf("failed to find pending outbox entries: %w", err)
	}

	if len(entries) == 0 {
		return nil
	}

	r.logger.Debug("processing outbox batch", "count", len(entries))

	successCount := 0
	failCount := 0

	for i := range entries {
		entry := &entries[i]

		if err := r.publishEntry(ctx, entry); err != nil {
			r.logger.Error("failed to publish outbox entry",
				"outbox_id", entry.ID,
				"document_id", entry.DocumentID,
				"error", err,
			)

			if markErr := entry.MarkAsFailed(r.db, err.Error()); markErr != nil {
				r.logger.Error("failed to mark outbox entry as failed",
					"outbox_id", entry.ID,
					"error", markErr,
				)
			}

			failCount++
			continue
		}

		if err := entry.MarkAsPublished(r.db); err != nil {
			r.logger.Error("failed to mark outbox entry as published",
				"outbox_id", entry.ID,
				"error", err,
			)
			failCount++
			continue
		}

		successCount++
	}

	r.logger.Info("processed outbox batch",
		"total", len(entries),
		"success", successCount,
		"failed", failCount,
	)

	return nil
}

// publishEntry publishes a single outbox entry. The record key is the
// document id, so events for one document land on one partition and keep
// their order.
func (r *Relay) publishEntry(ctx context.Context, entry *models.IngestOutbox) error {
	event := DocumentEvent{
		ID:            entry.ID,
		DocumentID:    entry.DocumentID.String(),
		IdempotentKey: entry.IdempotentKey,
		Stages:        entry.Payload.GetStrings("stages"),
		Payload:       entry.Payload,
		Timestamp:     entry.CreatedAt,
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	record := &kgo.Record{
		Topic: r.topic,
		Key:   []byte(entry.DocumentID.String()),
		Value: eventJSON,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(EventTypeIngest)},
			{Key: "idempotent_key", Value: []byte(entry.IdempotentKey)},
		},
	}

	if err := r.kafkaClient.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}

	r.logger.Debug("published event to kafka",
		"outbox_id", entry.ID,
		"document_id", entry.DocumentID,
		"partition_key", entry.DocumentID.String(),
	)

	return nil
}

// CleanupOldEntries removes published outbox entries older than the given
// age. Run periodically to keep the table bounded.
func (r *Relay) CleanupOldEntries(olderThan time.Duration) error {
	deleted, err := models.DeleteOldPublishedEntries(r.db, olderThan)
	if err != nil {
		return fmt.Errorf("failed to cleanup old outbox entries: %w", err)
	}

	r.logger.Info("cleaned up old outbox entries",
		"deleted", deleted,
		"older_than", olderThan,
	)

	return nil
}

// RetryFailed moves failed entries back to pending and publishes them
// immediately. Meant for manual intervention after broker outages.
func (r *Relay) RetryFailed(ctx context.Context, limit int) error {
	failed, err := models.FindFailedOutboxEntries(r.db, limit)
	if err != nil {
		return fmt.Errorf("failed to find failed outbox entries: %w", err)
	}

	if len(failed) == 0 {
		r.logger.Info("no failed outbox entries to retry")
		return nil
	}

	r.logger.Info("retrying failed outbox entries", "count", len(failed))

	successCount := 0
	for i := range failed {
		entry := &failed[i]

		if err := entry.Retry(r.db); err != nil {
			r.logger.Error("failed to reset outbox entry to pending",
				"outbox_id", entry.ID,
				"error", err,
			)
			continue
		}

		if err := r.publishEntry(ctx, entry); err != nil {
			r.logger.Error("failed to republish entry",
				"outbox_id", entry.ID,
				"error", err,
			)

			if markErr := entry.MarkAsFailed(r.db, err.Error()); markErr != nil {
				r.logger.Error("failed to mark outbox entry as failed",
					"outbox_id", entry.ID,
					"error", markErr,
				)
			}
			continue
		}

		if err := entry.MarkAsPublished(r.db); err != nil {
			r.logger.Error("failed to mark outbox entry as published",
				"outbox_id", entry.ID,
				"error", err,
			)
			continue
		}

		successCount++
	}

	r.logger.Info("retried failed outbox entries",
		"total", len(failed),
		"success", successCount,
	)

	return nil
}

// Stats returns outbox entry counts by status.
func (r *Relay) Stats() (map[string]int64, error) {
	return models.CountOutboxByStatus(r.db)
}
