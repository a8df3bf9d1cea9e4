package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/recallhq/recall/pkg/ingest/consumer"
	"github.com/recallhq/recall/pkg/ingest/relay"
)

// RunRelay runs the transactional outbox relay until ctx is cancelled,
// publishing pending ingest entries to the configured Kafka topic.
// Cancellation is a clean shutdown, not an error.
func (c *Client) RunRelay(ctx context.Context) error {
	svc := c.current()
	if !svc.kafkaEnabled() {
		return fmt.Errorf("distributed ingest is disabled; enable the ingest.kafka block")
	}

	r, err := relay.New(relay.Config{
		DB:      svc.db,
		Brokers: svc.cfg.Ingest.Kafka.Brokers,
		Topic:   svc.cfg.Ingest.Kafka.Topic,
		Logger:  svc.logger,
	})
	if err != nil {
		return err
	}

	err = r.Start(ctx)
	r.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// RunConsumer consumes ingest events from Kafka and drives the pipeline
// until ctx is cancelled. Cancellation is a clean shutdown, not an error.
func (c *Client) RunConsumer(ctx context.Context) error {
	svc := c.current()
	if !svc.kafkaEnabled() {
		return fmt.Errorf("distributed ingest is disabled; enable the ingest.kafka block")
	}

	k := svc.cfg.Ingest.Kafka
	cons, err := consumer.New(consumer.Config{
		DB:            svc.db,
		Brokers:       k.Brokers,
		Topic:         k.Topic,
		ConsumerGroup: k.ConsumerGroup,
		Executor:      svc.executor,
		Logger:        svc.logger,
	})
	if err != nil {
		return err
	}

	err = cons.Start(ctx)
	cons.Stop()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
