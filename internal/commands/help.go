package commands

import (
	"context"
	"flag"
	"fmt"
	"io"

	"slidetasks/internal/config"
	"slidetasks/internal/exitcode"
	"slidetasks/internal/gateway"
)

func init() {
	Register(&HelpCmd{})
}

// HelpCmd implements the help command.
type HelpCmd struct{}

func (c *HelpCmd) Name() string     { return "help" }
func (c *HelpCmd) Synopsis() string { return "Print usage" }
func (c *HelpCmd) Usage() string    { return "slidetasks help" }
func (c *HelpCmd) NeedsAuth() bool  { return false }

func (c *HelpCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *HelpCmd) Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int {
	fmt.Fprint(out, helpText)
	return exitcode.Success
}

const helpText = `Usage:
  slidetasks                                         Open the task panel
  slidetasks panel [common flags] [--list <id>]      Open the task panel
  slidetasks add [common flags] [--list <id>] <title...>
  slidetasks done [common flags] [--list <id>] <ref>
  slidetasks lists [common flags]
  slidetasks history [common flags] [--days <n>]
  slidetasks login [common flags]
  slidetasks logout [common flags]
  slidetasks help
  slidetasks version

Common flags:
  --config <dir>   Override config directory
  --quiet          Suppress informational output
`
