package add

import (
	"context"
	"flag"
	"fmt"

	"github.com/recallhq/recall/internal/cmd/base"
	"github.com/recallhq/recall/pkg/client"
)

type Command struct {
	*base.Command

	flagConfig    string
	flagTitle     string
	flagDir       bool
	flagRecursive bool
	flagSync      bool
	flagImages    bool
}

func (c *Command) Synopsis() string {
	return "Ingest documents into the store"
}

func (c *Command) Help() string {
	return `Usage: recall add [options] PATH ...

Ingests each PATH, a local file or an s3://bucket/key URI. With -dir,
each PATH is a directory (or s3:// prefix) whose files are ingested.` +
		c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("add", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)
	f.StringVar(
		&c.flagTitle, "title", "",
		"Title override, single document only",
	)
	f.BoolVar(
		&c.flagDir, "dir", false,
		"Treat each PATH as a directory",
	)
	f.BoolVar(
		&c.flagRecursive, "recursive", false,
		"Recurse into subdirectories with -dir",
	)
	f.BoolVar(
		&c.flagSync, "sync", false,
		"Process inline instead of queueing",
	)
	f.BoolVar(
		&c.flagImages, "images", false,
		"Ingest image files during directory walks",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	paths := f.Args()
	if len(paths) == 0 {
		c.UI.Error("at least one PATH is required")
		return 1
	}
	if c.flagTitle != "" && (c.flagDir || len(paths) > 1) {
		c.UI.Error("-title applies to a single document")
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

	var opts []client.AddOption
	if c.flagTitle != "" {
		opts = append(opts, client.WithTitle(c.flagTitle))
	}
	if c.flagSync {
		opts = append(opts, client.WithSync())
	}
	if c.flagImages {
		opts = append(opts, client.WithImages())
	}

	ctx := context.Background()
	failed := 0
	for _, p := range paths {
		if c.flagDir {
			failed += c.addDirectory(ctx, cl, p, opts)
			continue
		}
		res := cl.AddDocument(ctx, p, opts...)
		if res.Error != nil {
			c.UI.Error(fmt.Sprintf("%s: %s: %v", p, res.Message, res.Error))
			failed++
			continue
		}
		c.UI.Output(fmt.Sprintf("%s: %s (id=%s embeddings=%d)",
			p, res.Message, res.DocumentID, res.EmbeddingsQueued))
	}

	if failed > 0 {
		c.UI.Error(fmt.Sprintf("%d of %d paths failed", failed, len(paths)))
		return 1
	}
	return 0
}

// addDirectory ingests one directory root and reports per-file results.
// Returns 1 when any file failed so the caller can aggregate.
func (c *Command) addDirectory(ctx context.Context, cl *client.Client, root string, opts []client.AddOption) int {
	results, err := cl.AddDirectory(ctx, root, c.flagRecursive, opts...)
	if err != nil {
		c.UI.Error(fmt.Sprintf("%s: %v", root, err))
		return 1
	}

	failed := 0
	for _, r := range results {
		switch {
		case r.Skipped:
			c.UI.Info(fmt.Sprintf("%s: skipped, %s", r.Path, r.Message))
		case r.Error != nil:
			c.UI.Error(fmt.Sprintf("%s: %v", r.Path, r.Error))
			failed++
		default:
			c.UI.Output(fmt.Sprintf("%s: %s (id=%s)", r.Path, r.Message, r.DocumentID))
		}
	}

	c.UI.Output(fmt.Sprintf("%s: %d files listed, %d failed", root, len(results), failed))
	if failed > 0 {
		return 1
	}
	return 0
}
