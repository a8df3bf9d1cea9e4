package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/hashicorp/go-hclog"

	"github.com/recallhq/recall/pkg/client"
	"github.com/recallhq/recall/pkg/config"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file")
	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:  "recall-worker",
		Level: hclog.Info,
	})

	logger.Info("starting recall-worker", "config", *configPath)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := runWorkers(ctx, cancel, cfg, logger); err != nil {
		logger.Error("worker failed", "error", err)
		cancel()
		os.Exit(1)
	}

	logger.Info("recall-worker stopped gracefully")
}

// runWorkers processes the ingest queue until the context is canceled.
// With the kafka block enabled it also relays outbox rows and consumes
// the ingest topic, so documents queued by other writers land here.
func runWorkers(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger hclog.Logger) error {
	cl, err := client.New(cfg, client.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to build client: %w", err)
	}
	defer cl.Close()

	if err := cl.StartWorkers(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	if cfg.Ingest.Kafka.Enabled {
		logger.Info("starting distributed ingest",
			"brokers", cfg.Ingest.Kafka.Brokers,
			"topic", cfg.Ingest.Kafka.Topic,
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := cl.RunRelay(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("outbox relay stopped: %w", err)
				cancel()
			}
		}()
		go func() {
			defer wg.Done()
			if err := cl.RunConsumer(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("ingest consumer stopped: %w", err)
				cancel()
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	cl.StopWorkers()

	close(errCh)
	if err := <-errCh; err != nil {
		return err
	}
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadDefault()
	}
	return config.Load(path)
}
