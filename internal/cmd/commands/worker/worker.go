package worker

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/recallhq/recall/internal/cmd/base"
	"github.com/recallhq/recall/pkg/client"
)

type Command struct {
	*base.Command

	flagConfig  string
	flagWorkers int
}

func (c *Command) Synopsis() string {
	return "Run the ingest worker pool"
}

func (c *Command) Help() string {
	return `Usage: recall worker [options]

Runs the background ingest workers until interrupted. When the kafka
ingest block is enabled this also runs the outbox relay and the topic
consumer, so queued documents from any writer get processed here.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("worker", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)
	f.IntVar(
		&c.flagWorkers, "workers", 0,
		"Worker count override, 0 uses the configured value",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	if c.flagWorkers > 0 {
		cfg.Ingest.Workers = c.flagWorkers
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		c.Log.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	// The worker runs with the config-driven logger so its output is
	// useful as service logs, unlike the quiet one-shot commands.
	cl, err := client.New(cfg)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building client: %v", err))
		return 1
	}
	defer cl.Close()

	if err := cl.StartWorkers(ctx); err != nil {
		c.UI.Error(fmt.Sprintf("error starting workers: %v", err))
		return 1
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	if cfg.Ingest.Kafka.Enabled {
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
	exit := 0
	for err := range errCh {
		c.UI.Error(err.Error())
		exit = 1
	}
	return exit
}
