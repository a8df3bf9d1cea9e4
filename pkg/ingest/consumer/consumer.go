// Package consumer drives the ingest pipeline from Kafka or Redpanda.
// Consumers in the same group share partitions; because the relay keys
// records by document id, each document's events arrive in order on one
// consumer. Offsets are committed manually after a record is fully
// processed, giving at-least-once delivery on top of idempotent steps.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/twmb/franz-go/pkg/kgo"
	"gorm.io/gorm"

	"github.com/recallhq/recall/pkg/ingest"
	"github.com/recallhq/recall/pkg/models"
)

// DefaultConsumerGroup is used when the config names none.
const DefaultConsumerGroup = "recall-ingest"

// Consumer consumes document events and runs the pipeline for each.
type Consumer struct {
	kafkaClient *kgo.Client
	db          *gorm.DB
	executor    *ingest.Executor
	logger      hclog.Logger
	stopCh      chan struct{}
}

// Config holds configuration for the consumer.
type Config struct {
	// DB is optional. Without it the idempotent-key check is skipped and
	// the consumer relies on the steps' own no-op gates.
	DB *gorm.DB

	// Kafka/Redpanda connection.
	Brokers       []string
	Topic         string
	ConsumerGroup string

	// ConsumeFromStart begins at the earliest offset instead of the
	// latest. Useful for tests and index rebuilds.
	ConsumeFromStart bool

	// Executor drives the pipeline. Required.
	Executor *ingest.Executor

	Logger hclog.Logger
}

// DocumentEvent is the message structure published by the relay.
type DocumentEvent struct {
	ID            uint                   `json:"id"`
	DocumentID    string                 `json:"document_id"`
	IdempotentKey string                 `json:"idempotent_key"`
	Stages        []string               `json:"stages,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
}

// New creates a consumer.
func New(cfg Config) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("topic is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = DefaultConsumerGroup
	}
	if cfg.Logger == nil {
		cfg.Logger = hclog.NewNullLogger()
	}

	offset := kgo.NewOffset().AtEnd()
	if cfg.ConsumeFromStart {
		offset = kgo.NewOffset().AtStart()
	}

	kafkaClient, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(cfg.Topic),

		// Consumer group behavior
		kgo.ConsumeResetOffset(offset),
		kgo.SessionTimeout(10*time.Second),
		kgo.RebalanceTimeout(30*time.Second),

		// Offsets are committed manually after successful processing.
		kgo.DisableAutoCommit(),

		// Fetch settings
		kgo.FetchMaxWait(500*time.Millisecond),
		kgo.FetchMinBytes(1),
		kgo.FetchMaxBytes(5<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Consumer{
		kafkaClient: kafkaClient,
		db:          cfg.DB,
		executor:    cfg.Executor,
		logger:      cfg.Logger.Named("ingest-consumer"),
		stopCh:      make(chan struct{}),
	}, nil
}

// Start runs the polling loop. Blocks until Stop is called or the context
// is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	group, _ := c.kafkaClient.GroupMetadata()
	c.logger.Info("starting ingest consumer", "consumer_group", group)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("ingest consumer stopped by context")
			return ctx.Err()

		case <-c.stopCh:
			c.logger.Info("ingest consumer stopped")
			return nil

		default:
			fetches := c.kafkaClient.PollFetches(ctx)

			if errs := fetches.Errors(); len(errs) > 0 {
				for _, err := range errs {
					c.logger.Error("kafka fetch error", "error", err.Err)
				}
				continue
			}

			fetches.EachPartition(func(p kgo.FetchTopicPartition) {
				for _, record := range p.Records {
					if err := c.processRecord(ctx, record); err != nil {
						c.logger.Error("failed to process record",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err,
						)
						// Skip the commit so the record redelivers.
						continue
					}

					if err := c.kafkaClient.CommitRecords(ctx, record); err != nil {
						c.logger.Warn("failed to commit kafka offset",
							"partition", record.Partition,
							"offset", record.Offset,
							"error", err)
					}
				}
			})
		}
	}
}

// Stop gracefully stops the consumer.
func (c *Consumer) Stop() {
	select {
	case <-c.stopCh:
		// Already stopped
		return
	default:
		close(c.stopCh)
		c.kafkaClient.Close()
	}
}

// processRecord runs the pipeline for one event. A nil return commits the
// offset: clean successes, duplicates, and non-retryable failures all land
// there, the last so a poison document cannot wedge its partition.
func (c *Consumer) processRecord(ctx context.Context, record *kgo.Record) error {
	c.logger.Debug("processing record",
		"partition", record.Partition,
		"offset", record.Offset,
		"key", string(record.Key),
	)

	var event DocumentEvent
	if err := json.Unmarshal(record.Value, &event); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	documentID, err := uuid.Parse(event.DocumentID)
	if err != nil {
		return fmt.Errorf("invalid document id: %w", err)
	}

	// Idempotency check. The relay and consumer may race on the status
	// column; steps are idempotent, so a lost marker only costs one
	// redundant no-op pass.
	var entry *models.IngestOutbox
	if c.db != nil && event.IdempotentKey != "" {
		entry, err = models.FindOutboxByIdempotentKey(c.db, event.IdempotentKey)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to check idempotent key: %w", err)
		}

		if entry != nil && entry.Status == models.OutboxStatusConsumed {
			c.logger.Debug("event already processed, skipping",
				"document_id", documentID,
				"idempotent_key", event.IdempotentKey,
			)
			return nil
		}
	}

	err = c.executor.ExecuteStages(ctx, documentID, event.Stages)
	if err != nil {
		var stepErr *ingest.StepError
		if errors.As(err, &stepErr) && !stepErr.Retryable {
			c.logger.Error("dropping non-retryable ingest failure",
				"document_id", documentID,
				"step", stepErr.Step,
				"error", stepErr.Err,
			)
			c.markConsumed(entry, documentID)
			return nil
		}
		return err
	}

	c.markConsumed(entry, documentID)

	c.logger.Info("processed document event",
		"document_id", documentID,
		"stages", len(event.Stages),
	)
	return nil
}

// markConsumed records the idempotency marker, tolerating failures; a
// missing marker is repaired by the steps' no-op gates on redelivery.
func (c *Consumer) markConsumed(entry *models.IngestOutbox, documentID uuid.UUID) {
	if c.db == nil || entry == nil {
		return
	}
	if err := entry.MarkAsConsumed(c.db); err != nil {
		c.logger.Warn("failed to mark outbox entry consumed",
			"document_id", documentID,
			"outbox_id", entry.ID,
			"error", err)
	}
}
