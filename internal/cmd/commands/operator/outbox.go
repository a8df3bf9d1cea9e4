package operator

import (
	"context"
	"flag"
	"fmt"
	"sort"
	"time"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"

	"github.com/recallhq/recall/internal/cmd/base"
	"github.com/recallhq/recall/pkg/config"
	"github.com/recallhq/recall/pkg/database"
	"github.com/recallhq/recall/pkg/ingest/relay"
	"github.com/recallhq/recall/pkg/models"
)

// openDatabase connects to the configured store without going through the
// client facade. Operator commands work on the tables directly.
func openDatabase(cfg *config.Config, log hclog.Logger) (*gorm.DB, error) {
	connCfg, err := cfg.Database.ConnectionConfig()
	if err != nil {
		return nil, err
	}
	db, err := database.Connect(connCfg, log)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

type OutboxStatusCommand struct {
	*base.Command

	flagConfig string
}

func (c *OutboxStatusCommand) Synopsis() string {
	return "Show ingest outbox entry counts"
}

func (c *OutboxStatusCommand) Help() string {
	return `Usage: recall operator outbox-status [options]

Prints ingest outbox entry counts by status.` + c.Flags().Help()
}

func (c *OutboxStatusCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("outbox-status", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)

	return f
}

func (c *OutboxStatusCommand) Run(args []string) int {
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

	db, err := openDatabase(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}
	defer closeDatabase(db)

	counts, err := models.CountOutboxByStatus(db)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error counting outbox entries: %v", err))
		return 1
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	c.UI.Output(fmt.Sprintf("outbox entries: %d", total))
	for _, status := range sortedStatuses(counts) {
		c.UI.Output(fmt.Sprintf("  %-12s %d", status, counts[status]))
	}
	return 0
}

func sortedStatuses(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type OutboxRetryCommand struct {
	*base.Command

	flagConfig string
	flagLimit  int
}

func (c *OutboxRetryCommand) Synopsis() string {
	return "Republish failed ingest outbox entries"
}

func (c *OutboxRetryCommand) Help() string {
	return `Usage: recall operator outbox-retry [options]

Moves failed outbox entries back to pending and publishes them to the
ingest topic. Meant for manual intervention after a broker outage.` +
		c.Flags().Help()
}

func (c *OutboxRetryCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("outbox-retry", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)
	f.IntVar(
		&c.flagLimit, "limit", 50,
		"Maximum number of failed entries to republish",
	)

	return f
}

func (c *OutboxRetryCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagLimit < 1 {
		c.UI.Error("limit must be at least 1")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}
	if !cfg.Ingest.Kafka.Enabled {
		c.UI.Error("distributed ingest is not enabled in the configuration")
		return 1
	}

	db, err := openDatabase(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}
	defer closeDatabase(db)

	counts, err := models.CountOutboxByStatus(db)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error counting outbox entries: %v", err))
		return 1
	}
	failed := counts[models.OutboxStatusFailed]
	if failed == 0 {
		c.UI.Output("no failed outbox entries to retry")
		return 0
	}

	r, err := relay.New(relay.Config{
		DB:      db,
		Brokers: cfg.Ingest.Kafka.Brokers,
		Topic:   cfg.Ingest.Kafka.Topic,
		Logger:  c.Log,
	})
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building outbox relay: %v", err))
		return 1
	}
	defer r.Stop()

	if err := r.RetryFailed(context.Background(), c.flagLimit); err != nil {
		c.UI.Error(fmt.Sprintf("error retrying failed entries: %v", err))
		return 1
	}

	counts, err = models.CountOutboxByStatus(db)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error counting outbox entries: %v", err))
		return 1
	}
	remaining := counts[models.OutboxStatusFailed]
	c.UI.Output(fmt.Sprintf(
		"retry pass complete: %d failed entries remain (was %d)", remaining, failed))
	if remaining > 0 {
		return 1
	}
	return 0
}

type OutboxCleanupCommand struct {
	*base.Command

	flagConfig    string
	flagOlderThan time.Duration
}

func (c *OutboxCleanupCommand) Synopsis() string {
	return "Remove old published ingest outbox entries"
}

func (c *OutboxCleanupCommand) Help() string {
	return `Usage: recall operator outbox-cleanup [options]

Deletes published outbox entries older than the given age, keeping the
outbox table bounded.` + c.Flags().Help()
}

func (c *OutboxCleanupCommand) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("outbox-cleanup", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)
	f.DurationVar(
		&c.flagOlderThan, "older-than", 7*24*time.Hour,
		"Age beyond which published entries are removed",
	)

	return f
}

func (c *OutboxCleanupCommand) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagOlderThan <= 0 {
		c.UI.Error("older-than must be a positive duration")
		return 1
	}

	cfg, err := c.LoadConfig(c.flagConfig)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error loading configuration: %v", err))
		return 1
	}

	db, err := openDatabase(cfg, c.Log)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error connecting to database: %v", err))
		return 1
	}
	defer closeDatabase(db)

	deleted, err := models.DeleteOldPublishedEntries(db, c.flagOlderThan)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error removing outbox entries: %v", err))
		return 1
	}
	c.UI.Output(fmt.Sprintf(
		"removed %d published entries older than %s", deleted, c.flagOlderThan))
	return 0
}
