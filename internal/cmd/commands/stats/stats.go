package stats

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sort"

	"github.com/recallhq/recall/internal/cmd/base"
	"github.com/recallhq/recall/pkg/client"
)

type Command struct {
	*base.Command

	flagConfig string
	flagJSON   bool
}

func (c *Command) Synopsis() string {
	return "Show store statistics"
}

func (c *Command) Help() string {
	return `Usage: recall stats [options]

Prints document, content, and embedding counts for the configured store.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("stats", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)
	f.BoolVar(
		&c.flagJSON, "json", false,
		"Print statistics as JSON",
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

	cl, err := client.New(cfg, client.WithLogger(c.Log))
	if err != nil {
		c.UI.Error(fmt.Sprintf("error building client: %v", err))
		return 1
	}
	defer cl.Close()

	ctx := context.Background()
	stats, err := cl.Stats(ctx)
	if err != nil {
		c.UI.Error(fmt.Sprintf("error collecting statistics: %v", err))
		return 1
	}
	healthy := cl.Healthy(ctx)

	if c.flagJSON {
		out := struct {
			*client.Stats
			Healthy bool `json:"healthy"`
		}{stats, healthy}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			c.UI.Error(fmt.Sprintf("error encoding statistics: %v", err))
			return 1
		}
		c.UI.Output(string(data))
		return 0
	}

	c.UI.Output(fmt.Sprintf("storage:    %s (healthy: %t)", stats.StorageType, healthy))
	c.UI.Output(fmt.Sprintf("documents:  %d", stats.TotalDocuments))
	for _, key := range sortedKeys(stats.ByStatus) {
		c.UI.Output(fmt.Sprintf("  %-12s %d", key, stats.ByStatus[key]))
	}
	c.UI.Output(fmt.Sprintf("contents:   %d", stats.TotalContents))
	c.UI.Output(fmt.Sprintf("embeddings: %d", stats.TotalEmbeddings))
	if len(stats.ByType) > 0 {
		c.UI.Output("types:")
		for _, key := range sortedKeys(stats.ByType) {
			c.UI.Output(fmt.Sprintf("  %-12s %d", key, stats.ByType[key]))
		}
	}
	return 0
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
