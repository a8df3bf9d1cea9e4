package search

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"strings"

	"github.com/recallhq/recall/internal/cmd/base"
	"github.com/recallhq/recall/pkg/client"
	"github.com/recallhq/recall/pkg/search"
)

type Command struct {
	*base.Command

	flagConfig    string
	flagLimit     int
	flagThreshold float64
	flagHybrid    bool
	flagContext   bool
	flagJSON      bool
}

func (c *Command) Synopsis() string {
	return "Search stored documents"
}

func (c *Command) Help() string {
	return `Usage: recall search [options] QUERY ...

Runs a semantic search over stored documents. The QUERY words are joined
into one query string.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("search", flag.ExitOnError))

	f.StringVar(
		&c.flagConfig, "config", "",
		"[RECALL_CONFIG] Path to the configuration file",
	)
	f.IntVar(
		&c.flagLimit, "limit", 10,
		"Maximum results to return",
	)
	f.Float64Var(
		&c.flagThreshold, "threshold", -1,
		"Similarity threshold override, 0 to 1",
	)
	f.BoolVar(
		&c.flagHybrid, "hybrid", false,
		"Fuse semantic and keyword results",
	)
	f.BoolVar(
		&c.flagContext, "context", false,
		"Print the assembled context block instead of hits",
	)
	f.BoolVar(
		&c.flagJSON, "json", false,
		"Print results as JSON",
	)

	return f
}

func (c *Command) Run(args []string) int {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		c.UI.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}

	query := strings.TrimSpace(strings.Join(f.Args(), " "))
	if query == "" {
		c.UI.Error("a QUERY is required")
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

	if c.flagContext {
		return c.printContext(ctx, cl, query)
	}

	opts := search.Options{Limit: c.flagLimit}
	if c.flagThreshold >= 0 {
		opts.Threshold = &c.flagThreshold
	}

	var resp *client.SearchResponse
	if c.flagHybrid {
		resp, err = cl.HybridSearch(ctx, query, nil, opts)
	} else {
		resp, err = cl.Search(ctx, query, opts)
	}
	if err != nil {
		c.UI.Error(fmt.Sprintf("search failed: %v", err))
		return 1
	}

	if c.flagJSON {
		return c.printJSON(resp)
	}

	if resp.TotalResults == 0 {
		c.UI.Output("no results")
		return 0
	}
	for i, hit := range resp.Results {
		title := hit.DocumentTitle
		if title == "" {
			title = hit.DocumentLocation
		}
		c.UI.Output(fmt.Sprintf("%2d. %.3f  %s  (%s)", i+1, hit.CombinedScore, title, hit.DocumentLocation))
		c.UI.Output("    " + snippet(hit.Content, 160))
	}
	return 0
}

func (c *Command) printContext(ctx context.Context, cl *client.Client, query string) int {
	result, err := cl.GetContext(ctx, query, c.flagLimit)
	if err != nil {
		c.UI.Error(fmt.Sprintf("context retrieval failed: %v", err))
		return 1
	}

	if c.flagJSON {
		return c.printJSON(result)
	}
	if result.TotalChunks == 0 {
		c.UI.Output("no context found")
		return 0
	}
	c.UI.Output(result.CombinedContext)
	return 0
}

func (c *Command) printJSON(v interface{}) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		c.UI.Error(fmt.Sprintf("error encoding results: %v", err))
		return 1
	}
	c.UI.Output(string(data))
	return 0
}

// snippet truncates content to one max-length line.
func snippet(content string, max int) string {
	content = strings.Join(strings.Fields(content), " ")
	runes := []rune(content)
	if len(runes) <= max {
		return content
	}
	return string(runes[:max-1]) + "…"
}
