// Package base carries the pieces shared by every CLI command: the UI,
// the logger, configuration loading, and flag help rendering.
package base

import (
	"flag"
	"fmt"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/mitchellh/cli"

	"github.com/recallhq/recall/pkg/config"
)

// Command is embedded by every subcommand.
type Command struct {
	UI  cli.Ui
	Log hclog.Logger
}

// LoadConfig resolves the effective configuration. An explicit path must
// exist; without one the default path is tried, and built-in defaults
// apply when no file is present there.
func (c *Command) LoadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}
	return config.LoadDefault()
}

// FlagSet wraps the standard flag set with help text rendering.
type FlagSet struct {
	*flag.FlagSet
}

// NewFlagSet wraps fs. Usage output is suppressed; commands render their
// own help through Help.
func NewFlagSet(fs *flag.FlagSet) *FlagSet {
	fs.Usage = func() {}
	return &FlagSet{FlagSet: fs}
}

// Help renders the options block appended to a command's help text.
func (f *FlagSet) Help() string {
	var b strings.Builder
	b.WriteString("\n\nOptions:\n")
	f.VisitAll(func(fl *flag.Flag) {
		fmt.Fprintf(&b, "\n  -%s\n      %s", fl.Name, fl.Usage)
		if fl.DefValue != "" && fl.DefValue != "false" && fl.DefValue != "0" {
			fmt.Fprintf(&b, " (default: %s)", fl.DefValue)
		}
	})
	return b.String()
}
