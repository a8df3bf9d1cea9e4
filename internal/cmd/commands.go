package cmd

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/recallhq/recall/internal/cmd/base"
	addcmd "github.com/recallhq/recall/internal/cmd/commands/add"
	operatorcmd "github.com/recallhq/recall/internal/cmd/commands/operator"
	searchcmd "github.com/recallhq/recall/internal/cmd/commands/search"
	statscmd "github.com/recallhq/recall/internal/cmd/commands/stats"
	workercmd "github.com/recallhq/recall/internal/cmd/commands/worker"
)

// Commands is the mapping of all available CLI commands.
var Commands map[string]cli.CommandFactory

func initCommands(log hclog.Logger, ui cli.Ui) {
	b := &base.Command{
		UI:  ui,
		Log: log,
	}

	Commands = map[string]cli.CommandFactory{
		"add": func() (cli.Command, error) {
			return &addcmd.Command{Command: b}, nil
		},
		"operator": func() (cli.Command, error) {
			return &operatorcmd.Command{Command: b}, nil
		},
		"operator outbox-status": func() (cli.Command, error) {
			return &operatorcmd.OutboxStatusCommand{Command: b}, nil
		},
		"operator outbox-retry": func() (cli.Command, error) {
			return &operatorcmd.OutboxRetryCommand{Command: b}, nil
		},
		"operator outbox-cleanup": func() (cli.Command, error) {
			return &operatorcmd.OutboxCleanupCommand{Command: b}, nil
		},
		"search": func() (cli.Command, error) {
			return &searchcmd.Command{Command: b}, nil
		},
		"stats": func() (cli.Command, error) {
			return &statscmd.Command{Command: b}, nil
		},
		"worker": func() (cli.Command, error) {
			return &workercmd.Command{Command: b}, nil
		},
	}
}
