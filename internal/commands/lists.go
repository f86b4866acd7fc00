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
	Register(&ListsCmd{})
}

// ListsCmd implements the lists command.
type ListsCmd struct{}

func (c *ListsCmd) Name() string     { return "lists" }
func (c *ListsCmd) Synopsis() string { return "Show task lists" }
func (c *ListsCmd) Usage() string    { return "slidetasks lists [common flags]" }
func (c *ListsCmd) NeedsAuth() bool  { return true }

func (c *ListsCmd) RegisterFlags(fs *flag.FlagSet) {}

func (c *ListsCmd) Run(ctx context.Context, cfg *config.Config, gw gateway.Gateway, args []string, out, errOut io.Writer) int {
	env, err := openEnv(cfg, gw, "", true)
	if err != nil {
		fmt.Fprintf(errOut, "error: %v\n", err)
		return exitcode.BackendError
	}
	defer env.Close()

	// Best effort refresh; offline the cached lists are shown.
	env.eng.RunSyncCycle(ctx)

	view := env.eng.Snapshot()
	if len(view.Lists) == 0 {
		if !cfg.Quiet {
			fmt.Fprintln(errOut, "no lists cached yet (run once while online)")
		}
		return exitcode.Success
	}

	for _, l := range view.Lists {
		marker := " "
		if l.ID == view.ActiveListID {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %-24s %s\n", marker, l.ID, l.Title)
	}
	return exitcode.Success
}
