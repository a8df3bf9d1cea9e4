package operator

import (
	"github.com/mitchellh/cli"

	"github.com/recallhq/recall/internal/cmd/base"
)

type Command struct {
	*base.Command
}

func (c *Command) Synopsis() string {
	return "Perform maintenance tasks on a store"
}

func (c *Command) Help() string {
	return `Usage: recall operator <subcommand> [options]

  This command groups subcommands for operators maintaining a recall
  deployment. The outbox subcommands inspect and repair the queue that
  feeds distributed ingest workers.`
}

func (c *Command) Run(args []string) int {
	return cli.RunResultHelp
}
